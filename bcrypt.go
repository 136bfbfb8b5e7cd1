package identity

import (
	"errors"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the cost used by NewBcryptHasher when none is given.
const DefaultBcryptCost = 12

var errMismatchedHash = errors.New("hash does not match secret")

// BcryptHasher hashes secrets with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt Hasher. A cost outside bcrypt's bounds
// falls back to DefaultBcryptCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrNoEmptyString
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	return string(out), err
}

// Compare validates the given cleartext secret matches the hash.
func (h *BcryptHasher) Compare(secret, hash string) error {
	if hash == "" {
		return errMismatchedHash
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return errMismatchedHash
		}
		return err
	}
	return nil
}

// Argon2Hasher hashes secrets with argon2id using encoded hashes.
type Argon2Hasher struct {
	config argon2.Config
}

// NewArgon2Hasher returns an Argon2Hasher using the library defaults.
func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{config: argon2.DefaultConfig()}
}

func (h *Argon2Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrNoEmptyString
	}
	encoded, err := h.config.HashEncoded([]byte(secret))
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func (h *Argon2Hasher) Compare(secret, hash string) error {
	if hash == "" {
		return errMismatchedHash
	}
	ok, err := argon2.VerifyEncoded([]byte(secret), []byte(hash))
	if err != nil {
		return err
	}
	if !ok {
		return errMismatchedHash
	}
	return nil
}

// IsMismatch reports whether err means the secret did not match the hash.
func IsMismatch(err error) bool {
	return errors.Is(err, errMismatchedHash)
}

func normalizeHasher(h Hasher) Hasher {
	if h == nil {
		return NewBcryptHasher(DefaultBcryptCost)
	}
	return h
}
