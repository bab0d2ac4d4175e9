// Package crypto implements field-level encryption for scalar values stored
// at rest, notably transaction amounts. Values are encrypted with AES-256-CTR
// and persisted as "ivHex:cipherHex".
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the hex-encoded IV from the hex-encoded ciphertext.
// Its absence marks a legacy plaintext value.
const Delimiter = ":"

var ErrDecryptionFailed = errors.New("decryption failed")

// Codec encrypts and decrypts scalar fields with a server-held secret.
//
// The secret is hashed to a fixed 32-byte key with SHA-256. This
// normalization is deterministic and part of the storage contract: deriving
// the key any other way would make every previously encrypted value
// unreadable.
//
// Strict selects the decrypt policy for malformed input. When false
// (default), input without the delimiter or with undecodable parts is
// returned unchanged, tolerating legacy unencrypted values that predate
// field encryption. When true, any malformed input yields
// ErrDecryptionFailed.
type Codec struct {
	key    [32]byte
	strict bool
}

// New returns a Codec keyed by secret with the legacy-tolerant decrypt
// policy.
func New(secret string) *Codec {
	return &Codec{key: sha256.Sum256([]byte(secret))}
}

// NewStrict returns a Codec that rejects malformed ciphertext instead of
// passing it through.
func NewStrict(secret string) *Codec {
	c := New(secret)
	c.strict = true
	return c
}

// EncryptText encrypts plaintext and returns the "ivHex:cipherHex" form.
// A fresh random IV is drawn per call.
func (c *Codec) EncryptText(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, []byte(plaintext))

	return hex.EncodeToString(iv) + Delimiter + hex.EncodeToString(ciphertext), nil
}

// DecryptText inverts EncryptText. Handling of input that is not in the
// expected form depends on the codec policy; see Codec.
func (c *Codec) DecryptText(value string) (string, error) {
	ivHex, cipherHex, found := strings.Cut(value, Delimiter)
	if !found {
		if c.strict {
			return "", ErrDecryptionFailed
		}
		// Legacy plaintext value written before field encryption existed.
		return value, nil
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return c.malformed(value)
	}
	ciphertext, err := hex.DecodeString(cipherHex)
	if err != nil {
		return c.malformed(value)
	}

	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return "", fmt.Errorf("new cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, ciphertext)

	return string(plaintext), nil
}

func (c *Codec) malformed(value string) (string, error) {
	if c.strict {
		return "", ErrDecryptionFailed
	}
	return value, nil
}

// EncryptNumber encrypts a numeric amount via its exact decimal string form.
func (c *Codec) EncryptNumber(n float64) (string, error) {
	return c.EncryptText(strconv.FormatFloat(n, 'f', -1, 64))
}

// DecryptNumber decrypts a numeric field. Unparsable decrypted content
// degrades to 0 rather than failing: a corrupt amount must not take down a
// whole listing.
func (c *Codec) DecryptNumber(value string) (float64, error) {
	plain, err := c.DecryptText(value)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(plain), 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
