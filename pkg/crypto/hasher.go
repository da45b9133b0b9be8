package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinCost           = 4
	MaxCost           = 31
	DefaultCost       = 12  // Above bcrypt.DefaultCost (10) for better security
	MaxPasswordLength = 128 // Prevent DoS via extremely long passwords
)

// Hasher hashes and verifies user secrets. The command pipeline consumes
// this interface; BcryptHasher is the default implementation.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) error
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	cost int
}

type HasherOption func(*BcryptHasher)

// WithCost sets the bcrypt cost factor. Values between 4-31 are valid;
// invalid values keep the default.
func WithCost(cost int) HasherOption {
	return func(h *BcryptHasher) {
		if cost >= MinCost && cost <= MaxCost {
			h.cost = cost
		}
	}
}

func NewBcryptHasher(opts ...HasherOption) *BcryptHasher {
	h := &BcryptHasher{cost: DefaultCost}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) == 0 {
		return "", errors.New("password cannot be empty")
	}
	if len(plaintext) > MaxPasswordLength {
		return "", errors.New("password too long")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify compares a hashed password with its possible plaintext equivalent.
// bcrypt's comparison is constant time, preventing timing attacks.
func (h *BcryptHasher) Verify(plaintext, hash string) error {
	if len(hash) == 0 {
		return errors.New("hashed password cannot be empty")
	}
	if len(plaintext) == 0 {
		return errors.New("password cannot be empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}
