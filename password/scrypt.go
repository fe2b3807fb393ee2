package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Work factors are part of the stored verifier contract. Changing any of them
// invalidates every hash already persisted.
const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64

	// SaltLength is the number of random bytes behind every generated salt.
	SaltLength = 32
)

var (
	// ErrEmptySalt is returned when Hash is called without a salt.
	ErrEmptySalt = errors.New("password salt must not be empty")
	// ErrInvalidSalt is returned when a salt is not valid base64.
	ErrInvalidSalt = errors.New("password salt encoding invalid")
)

// Hasher defines a public type used by goMembership APIs.
//
// Hasher instances are stateless and safe for concurrent use.
type Hasher struct {
	random io.Reader
}

// NewHasher returns a Hasher reading salt entropy from crypto/rand.
func NewHasher() *Hasher {
	return &Hasher{random: rand.Reader}
}

// GenerateSalt describes the generatesalt operation and its observable behavior.
//
// GenerateSalt returns SaltLength random bytes encoded with standard base64.
// GenerateSalt may return an error when the entropy source fails.
func (h *Hasher) GenerateSalt() (string, error) {
	src := rand.Reader
	if h != nil && h.random != nil {
		src = h.random
	}

	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(src, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// Hash describes the hash operation and its observable behavior.
//
// Hash derives a deterministic verifier for plaintext under salt. The salt is the
// string produced by GenerateSalt; an empty salt is a caller bug and fails with
// ErrEmptySalt instead of producing an unsalted digest.
func (h *Hasher) Hash(plaintext, salt string) (string, error) {
	if salt == "" {
		return "", ErrEmptySalt
	}

	rawSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return "", ErrInvalidSalt
	}

	// Password processing uses raw string bytes exactly as provided (no Unicode normalization).
	key, err := scrypt.Key([]byte(plaintext), rawSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("derive password key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(key), nil
}

// Equal reports whether two verifiers produced by Hash are identical, in constant time.
func (h *Hasher) Equal(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Verify hashes plaintext with salt and compares it against stored.
func (h *Hasher) Verify(plaintext, salt, stored string) (bool, error) {
	computed, err := h.Hash(plaintext, salt)
	if err != nil {
		return false, err
	}
	return h.Equal(computed, stored), nil
}
