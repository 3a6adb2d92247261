package models

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the default cost parameter for bcrypt hashing.
const DefaultBcryptCost = 10

// Password validation errors.
var (
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")

	// bcrypt has a maximum input length of 72 bytes.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")

	// Passwords travel as a single protocol line.
	ErrPasswordNewline = errors.New("password must not contain line breaks")
)

// Password length constraints.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// HashPassword validates password and returns its bcrypt hash.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultBcryptCost)
}

// HashPasswordWithCost creates a bcrypt hash with a custom cost (4..31).
func HashPasswordWithCost(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches a bcrypt hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePassword checks length and line-safety.
func ValidatePassword(password string) error {
	if strings.ContainsAny(password, "\r\n") {
		return ErrPasswordNewline
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// IsBcryptHash reports whether s parses as a bcrypt hash.
func IsBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

// NeedsRehash reports whether hash was produced with a lower cost than the
// current default, or is not a bcrypt hash at all.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < DefaultBcryptCost
}
