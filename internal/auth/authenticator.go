package auth

import (
	"context"

	"tripwise/internal/core"
	"tripwise/internal/types"
)

// TokenAuthenticator adapts the SessionService to the chassis Authenticator
// interface: it verifies the bearer token and projects its claims into the
// request Actor. The Actor's plan is the plan snapshot embedded at mint time;
// a plan change takes effect on the next issued token.
type TokenAuthenticator struct {
	sessions *SessionService
}

// NewTokenAuthenticator wraps a SessionService for request authentication.
func NewTokenAuthenticator(sessions *SessionService) *TokenAuthenticator {
	return &TokenAuthenticator{sessions: sessions}
}

// ResolveToken implements core.Authenticator.
func (a *TokenAuthenticator) ResolveToken(_ context.Context, token string) (*types.Actor, error) {
	claims, err := a.sessions.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &types.Actor{
		ID:    claims.UserID,
		Type:  types.ActorTypeUser,
		Email: claims.Email,
		Plan:  claims.Plan,
	}, nil
}

var _ core.Authenticator = (*TokenAuthenticator)(nil)
