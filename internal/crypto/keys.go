// Package crypto implements per-user key derivation and the encrypt/decrypt
// codec for journal entry text.
//
// Known weakness, carried forward deliberately: the PBKDF2 salt is sliced
// from the secret's own bytes instead of being an independently stored random
// salt. Two users with the same secret derive the same key, and the salt adds
// no independence to the derivation. A stored per-user random salt would be
// the stronger design.
package crypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the derived AES-256 key length in bytes.
	KeySize = 32

	saltSize = 16

	// DefaultIterations is the PBKDF2 iteration count used when the config
	// does not override it.
	DefaultIterations = 150000
)

// DeriveKey derives symmetric key material from a user secret using
// PBKDF2-HMAC-SHA256. Deterministic: the same (secret, iterations) pair
// always yields the same key.
func DeriveKey(secret string, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(secret), deriveSalt(secret), iterations, KeySize, sha256.New)
}

// deriveSalt slices salt material from the secret itself. See the package
// doc for why this is weaker than a stored random salt.
func deriveSalt(secret string) []byte {
	raw := []byte(secret)
	if len(raw) >= saltSize {
		return raw[:saltSize]
	}
	// Short secrets are padded out via a digest so the salt is always
	// saltSize bytes.
	sum := sha256.Sum256(raw)
	return sum[:saltSize]
}
