// Package cryptoutils holds the cryptographic primitives of the client.
//
// # Device keys
//
// Devices sign with RSA-2048 keys. GenerateKeyPair creates one; keys are
// exchanged as PEM ("PRIVATE KEY" in PKCS#8, "PUBLIC KEY" in PKIX) and the
// parsers also accept the PKCS#1 forms. Malformed input fails with
// ErrKeyFormat.
//
// SignBody and VerifyBody implement the body signature scheme: PKCS#1 v1.5
// over the SHA-256 digest of the raw body bytes, carried as standard base64.
//
// # Sealing
//
// Seal and Open protect the stored credential record with a passphrase:
//
//   - Argon2id derives a 256-bit key from the passphrase and a random salt
//   - XChaCha20-Poly1305 encrypts the record under a random nonce
//
// The sealed layout is magic || salt || nonce || ciphertext. IsSealed checks
// for the magic prefix so plain and sealed records can coexist during a
// migration.
package cryptoutils
