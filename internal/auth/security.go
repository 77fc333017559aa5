// Package auth implements credential handling, session tokens, and the
// signup confirmation flow for the TripWise platform.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcryptCost is the bcrypt cost factor used for password hashing.
const bcryptCost = 12

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	// GenerateConfirmationToken produces the opaque token embedded in a
	// signup confirmation link.
	GenerateConfirmationToken() (string, error)
}

// CryptoTokenGenerator is the production implementation of TokenGenerator
// using crypto/rand for secure random generation.
type CryptoTokenGenerator struct{}

// GenerateConfirmationToken generates a cryptographically secure signup
// confirmation token.
// Format: 32 random bytes hex encoded (64 hex chars, 256 bits).
func (g *CryptoTokenGenerator) GenerateConfirmationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
