package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"tripwise/internal/types"
)

// DefaultSessionTTL is the validity window of a freshly minted session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Claims is the session token payload: the holder's identity plus a snapshot
// of their plan at mint time. Route guards check the plan claim, so a plan
// change only takes effect on the next mint (login or payment capture).
type Claims struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Plan   types.Plan `json:"plan"`
	jwt.RegisteredClaims
}

// SessionConfig holds configuration for session token minting.
type SessionConfig struct {
	// Secret signs and verifies tokens (HMAC-SHA256). Required.
	Secret types.SecretString

	// TTL is the token lifetime. Defaults to DefaultSessionTTL.
	TTL time.Duration
}

// SessionService mints and verifies signed session tokens.
type SessionService struct {
	secret []byte
	ttl    time.Duration
	clock  types.Clock
	logger *slog.Logger
}

// NewSessionService creates a SessionService. A missing signing secret is a
// configuration error surfaced at construction so the process refuses to
// start, rather than failing on the first login.
func NewSessionService(cfg SessionConfig, clock types.Clock, logger *slog.Logger) (*SessionService, error) {
	if !cfg.Secret.IsSet() {
		return nil, types.NewAppError(types.ErrCodeConfigMissingSecret,
			"session signing secret is not configured", nil)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		secret: []byte(cfg.Secret.Unmask()),
		ttl:    ttl,
		clock:  clock,
		logger: logger,
	}, nil
}

// IssueToken mints a signed session token carrying the user's identity and
// current plan.
func (s *SessionService) IssueToken(user types.User) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  types.CanonicalizeEmail(user.Email),
		Plan:   user.Plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to sign session token", err)
	}
	return signed, nil
}

// VerifyToken validates a session token's signature and expiry and returns
// the embedded claims.
func (s *SessionService) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		// Pin the signing method: a token claiming any other algorithm is
		// rejected before its signature is even checked.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "session has expired", err)
		}
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token is invalid", err)
	}
	if !token.Valid {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session token is invalid", nil)
	}
	return claims, nil
}
