package cryptoutils

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
)

// KeySize is the modulus size of generated device keys.
const KeySize = 2048

var (
	// ErrKeyGeneration is returned when a new keypair cannot be created.
	ErrKeyGeneration = errors.New("key generation failed")

	// ErrKeyFormat is returned when PEM data does not hold a usable RSA key.
	// Persisted keys failing to parse indicate corrupted storage.
	ErrKeyFormat = errors.New("malformed key")
)

// KeyPair holds a device signing key and its public half.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// GenerateKeyPair creates a new RSA keypair suitable for SHA-256 signatures.
func GenerateKeyPair() (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	return &KeyPair{
		Private: privateKey,
		Public:  &privateKey.PublicKey,
	}, nil
}

// PrivateKeyToPEM encodes a private key as a PKCS#8 "PRIVATE KEY" PEM block.
func PrivateKeyToPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// PublicKeyToPEM encodes a public key as a PKIX "PUBLIC KEY" PEM block.
func PublicKeyToPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes an RSA private key in PKCS#8 or PKCS#1 form.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrKeyFormat, key)
		}
		return rsaKey, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block type %q", ErrKeyFormat, block.Type)
	}
}

// ParsePublicKeyPEM decodes an RSA public key in PKIX or PKCS#1 form.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA key, got %T", ErrKeyFormat, key)
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block type %q", ErrKeyFormat, block.Type)
	}
}

// SignBody signs the SHA-256 digest of body with PKCS#1 v1.5 and returns the
// base64 (standard encoding) signature.
func SignBody(key *rsa.PrivateKey, body []byte) (string, error) {
	hash := sha256.Sum256(body)

	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", fmt.Errorf("failed to sign body: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// VerifyBody reports whether signature is a valid base64 PKCS#1 v1.5 SHA-256
// signature of body under key.
func VerifyBody(key *rsa.PublicKey, body []byte, signature string) bool {
	if key == nil || signature == "" {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	hash := sha256.Sum256(body)
	return rsa.VerifyPKCS1v15(key, crypto.SHA256, hash[:], decoded) == nil
}
