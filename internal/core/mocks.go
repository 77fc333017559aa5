package core

import (
	"context"
	"sync"

	"tripwise/internal/types"
)

// MockAuthenticator is an Authenticator test double. The zero value resolves
// every token to (nil, nil); set Actor for a fixed identity, Err for a fixed
// failure, or ResolveTokenFunc for behavior keyed on the token itself.
// ResolveTokenFunc wins over the other two when set.
type MockAuthenticator struct {
	Actor *types.Actor
	Err   error

	ResolveTokenFunc func(ctx context.Context, token string) (*types.Actor, error)

	// Calls records every token seen, in order. Guarded for parallel
	// requests in middleware tests.
	Calls []string
	mu    sync.Mutex
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	switch {
	case m.ResolveTokenFunc != nil:
		return m.ResolveTokenFunc(ctx, token)
	case m.Err != nil:
		return nil, m.Err
	}
	return m.Actor, nil
}

var _ Authenticator = (*MockAuthenticator)(nil)
