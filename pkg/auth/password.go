package auth

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 8
	MaxPasswordLen    = 72 // bcrypt ignores everything past 72 bytes
)

// ErrEmptyPassword is returned when hashing an empty string.
var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	// Return generic error to users - never expose specific requirements to prevent enumeration attacks
	return "invalid password"
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":     true,
	"12345678":     true,
	"password1":    true,
	"password123":  true,
	"qwerty123":    true,
	"abc12345":     true,
	"letmein1":     true,
	"welcome1":     true,
	"iloveyou1":    true,
	"passw0rd":     true,
	"trustno1":     true,
	"admin123":     true,
	"changeme1":    true,
	"football1":    true,
	"sunshine1":    true,
	"princess1":    true,
	"1q2w3e4r":     true,
	"qwertyuiop1":  true,
	"baseball1":    true,
	"superman1":    true,
	"starwars1":    true,
	"monkey123":    true,
	"dragon123":    true,
	"master123":    true,
	"1234qwer":     true,
	"zaq12wsx":     true,
	"p@ssw0rd":     true,
	"p@ssword1":    true,
	"welcome123":   true,
	"letmein123":   true,
	"password12":   true,
	"qwerty12":     true,
	"abc123456":    true,
	"a1b2c3d4":     true,
	"computer1":    true,
	"whatever1":    true,
	"michael1":     true,
	"shadow123":    true,
	"mustang1":     true,
	"secret123":    true,
	"hello123":     true,
	"freedom1":     true,
	"jordan23":     true,
	"summer2024":   true,
	"winter2024":   true,
	"spring2025":   true,
	"autumn2025":   true,
	"springboard1": true,
}

// Hasher hashes and verifies passwords with bcrypt. bcrypt is CPU bound,
// so concurrent work is capped by a weighted semaphore.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHasher returns a Hasher using cost (DefaultBcryptCost when out of
// range) and at most maxConcurrent simultaneous bcrypt operations
// (GOMAXPROCS when <= 0).
func NewHasher(cost, maxConcurrent int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	return &Hasher{cost: cost, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Hash returns a salted bcrypt hash of password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches hash. An empty or malformed hash
// never matches.
func (h *Hasher) Verify(ctx context.Context, password, hash string) bool {
	if hash == "" {
		return false
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword enforces password strength requirements
func ValidatePassword(password string) error {
	errors := make([]string, 0)

	if len(password) < MinPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		errors = append(errors, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	hasLetter := false
	hasDigit := false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasLetter {
		errors = append(errors, "must contain at least one letter")
	}
	if !hasDigit {
		errors = append(errors, "must contain at least one digit")
	}

	// Check against common passwords (case-insensitive)
	if commonPasswords[strings.ToLower(password)] {
		errors = append(errors, "is too common, please choose a more unique password")
	}

	if len(errors) > 0 {
		return &PasswordValidationError{Errors: errors}
	}

	return nil
}
