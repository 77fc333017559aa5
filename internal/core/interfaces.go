package core

import (
	"context"

	"tripwise/internal/types"
)

// Authenticator decouples the HTTP layer from the session token mechanism,
// allowing for easy mocking in tests.
type Authenticator interface {
	// ResolveToken verifies a bearer session token and returns the Actor it
	// identifies.
	//
	// Distinct Error Codes:
	// - Return ErrCodeAuthTokenInvalid if the token is malformed or its
	//   signature does not verify.
	// - Return ErrCodeAuthTokenExpired if the token verified but its validity
	//   window has passed.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}
