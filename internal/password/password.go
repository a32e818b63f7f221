// Package password wraps bcrypt hashing for user credentials.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost matches the work factor the account schema was seeded with.
	DefaultCost = 10

	// bcrypt silently truncates beyond 72 bytes; reject instead.
	maxPasswordBytes = 72
)

// Hasher produces and verifies salted bcrypt hashes. The zero value is not
// usable; construct with New.
type Hasher struct {
	cost int
}

// New returns a Hasher with the given cost, clamped to bcrypt's valid range.
func New(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted hash of plaintext. Two calls with the same input
// produce different hashes.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("empty password")
	}
	if len(plaintext) > maxPasswordBytes {
		return "", errors.New("password exceeds 72 bytes")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. It fails closed: empty or
// malformed input yields false, never an error to the caller.
func (h *Hasher) Verify(plaintext, hash string) bool {
	if plaintext == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
