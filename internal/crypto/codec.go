package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrNoSecret is returned when an encrypt operation is attempted without a
// secret. Secret absence is a fatal precondition: storing plaintext as if it
// were encrypted is never acceptable.
var ErrNoSecret = errors.New("no encryption secret available")

// Outcome classifies the result of a decrypt attempt.
type Outcome int

const (
	// OutcomeDecrypted means the blob decrypted cleanly.
	OutcomeDecrypted Outcome = iota
	// OutcomeLegacyPlaintext means the blob does not look like ciphertext
	// (not base64, or too short to hold an IV). It is treated as content
	// written before encryption was introduced and returned unchanged.
	OutcomeLegacyPlaintext
	// OutcomeCorrupted means the blob decoded as ciphertext-shaped data but
	// failed block or padding validation: wrong key, truncation, or bit rot.
	OutcomeCorrupted
)

// Result is the tagged outcome of a decrypt. Callers that only want the
// original fallback behaviour use Value, which degrades every outcome to a
// displayable string.
type Result struct {
	Outcome Outcome
	Text    string // plaintext when Outcome == OutcomeDecrypted
	Raw     string // the stored blob, unchanged
	Err     error  // diagnostic detail for OutcomeCorrupted
}

// Value returns the plaintext for a clean decrypt and the raw stored value
// for every fallback case, so a read path never loses data.
func (r Result) Value() string {
	if r.Outcome == OutcomeDecrypted {
		return r.Text
	}
	return r.Raw
}

// Codec encrypts and decrypts entry text with AES-256-CBC under keys derived
// from per-user secrets. Codec operations are pure functions of their inputs
// and safe for concurrent use.
type Codec struct {
	iterations int
}

// NewCodec returns a Codec whose key derivation uses the given PBKDF2
// iteration count. Zero or negative falls back to DefaultIterations.
func NewCodec(iterations int) *Codec {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Codec{iterations: iterations}
}

// Encrypt encrypts plaintext under the key derived from secret and returns
// base64(IV ++ ciphertext). A fresh random IV is generated on every call, so
// identical plaintext never yields identical blobs. The empty string is a
// valid plaintext and round-trips.
func (c *Codec) Encrypt(plaintext, secret string) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}

	key := DeriveKey(secret, c.iterations)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("aes cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt inverts Encrypt. It never returns a hard error for malformed data:
// blobs that predate encryption, or that fail structural validation, come
// back as tagged fallback results so callers can still display the stored
// value. An empty blob passes through untouched.
func (c *Codec) Decrypt(blob, secret string) Result {
	if blob == "" {
		return Result{Outcome: OutcomeDecrypted, Text: "", Raw: blob}
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Result{Outcome: OutcomeLegacyPlaintext, Raw: blob}
	}
	if len(raw) < aes.BlockSize {
		return Result{Outcome: OutcomeLegacyPlaintext, Raw: blob}
	}

	iv, payload := raw[:aes.BlockSize], raw[aes.BlockSize:]
	if len(payload) == 0 || len(payload)%aes.BlockSize != 0 {
		return Result{
			Outcome: OutcomeCorrupted,
			Raw:     blob,
			Err:     fmt.Errorf("ciphertext length %d is not block-aligned", len(payload)),
		}
	}

	key := DeriveKey(secret, c.iterations)
	block, err := aes.NewCipher(key)
	if err != nil {
		return Result{Outcome: OutcomeCorrupted, Raw: blob, Err: err}
	}

	plain := make([]byte, len(payload))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, payload)

	unpadded, err := pkcs7Unpad(plain, aes.BlockSize)
	if err != nil {
		return Result{
			Outcome: OutcomeCorrupted,
			Raw:     blob,
			Err:     fmt.Errorf("padding validation: %w", err),
		}
	}

	return Result{Outcome: OutcomeDecrypted, Text: string(unpadded), Raw: blob}
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errors.New("invalid padding byte")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("inconsistent padding")
		}
	}
	return data[:len(data)-n], nil
}
