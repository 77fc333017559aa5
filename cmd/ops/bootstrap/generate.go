package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenByteLength is the number of random bytes generated for internal
// secrets. 32 bytes = 256 bits of entropy, hex-encoded to a 64-character
// string, which clears the JWT_SIGNING_KEY minimum length requirement.
const tokenByteLength = 32

// generateSecureToken produces a cryptographically secure random token
// suitable for use as the session signing key. The value is never logged;
// it only ever lands in the exported .env file.
func generateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
