package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor. Cost 12 takes roughly 250ms on
// current server hardware — negligible at login, expensive for brute force.
const defaultCost = 12

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// PasswordService hashes and verifies passwords with bcrypt. It's a struct
// rather than free functions so tests can inject a lower cost and run fast.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// newPasswordServiceWithCost is used by tests in this package.
func newPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of the given password. bcrypt generates and
// embeds a random salt, so hashing the same password twice yields different
// strings.
func (s *PasswordService) Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", fmt.Errorf("auth: password must be at least %d characters", MinPasswordLength)
	}
	// bcrypt silently truncates beyond 72 bytes; reject instead of
	// pretending the tail was checked.
	if len(password) > 72 {
		return "", errors.New("auth: password must be 72 bytes or fewer")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether the password matches the stored hash.
// A mismatch is a normal outcome, not an error — errors are reserved for
// malformed hashes.
func (s *PasswordService) Verify(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("auth: verifying password: %w", err)
}
