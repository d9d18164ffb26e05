package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedData is returned when sealed data cannot be opened, either because
// it is corrupted or because the passphrase is wrong.
var ErrSealedData = errors.New("cannot open sealed data")

var sealMagic = []byte("BSC1")

const saltSize = 16

// deriveSealingKey stretches a passphrase into an XChaCha20-Poly1305 key using Argon2id.
//
// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
func deriveSealingKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// Seal encrypts plaintext under a passphrase.
//
// Output layout: magic || salt || nonce || ciphertext. The magic prefix is
// authenticated as additional data.
func Seal(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(deriveSealingKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(sealMagic)+len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, sealMagic), nil
}

// Open decrypts data produced by Seal.
func Open(sealed, passphrase []byte) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, fmt.Errorf("%w: missing header", ErrSealedData)
	}
	rest := sealed[len(sealMagic):]
	if len(rest) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: truncated", ErrSealedData)
	}

	salt := rest[:saltSize]
	nonce := rest[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := rest[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(deriveSealingKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, sealMagic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealedData, err)
	}
	return plaintext, nil
}

// IsSealed reports whether data carries the Seal header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}
