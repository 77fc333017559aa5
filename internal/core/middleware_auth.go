package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tripwise/internal/billing"
	"tripwise/internal/types"
)

// authPublicPaths are reachable without a session token: the platform
// surfaces plus the three endpoints that exist to obtain a session in the
// first place. Everything else under /v1 requires authentication.
var authPublicPaths = map[string]bool{
	"/health":          true,
	"/metrics":         true,
	"/v1/auth/signup":  true,
	"/v1/auth/confirm": true,
	"/v1/auth/login":   true,
}

// AuthMiddleware resolves the Bearer token into an Actor and stores it on
// the request context. Failures answer 401 with a code that tells the client
// what to do: auth_token_missing (send one), auth_token_expired (log in
// again), auth_token_invalid (the token is garbage).
//
// A nil Authenticator disables the middleware, which is how chassis tests
// run handlers without minting tokens.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authorization header is required")
			return
		}
		token := extractBearerToken(header)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// extractBearerToken pulls the token out of an Authorization header value.
// The "Bearer " scheme matches case-insensitively per RFC 7235; anything
// else yields an empty string.
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// handleAuthError translates a ResolveToken failure into the right 401.
// Expired and invalid tokens are routine and log as warnings; anything else
// is unexpected, logs as an error, and still answers with the generic
// invalid-token code so internals stay hidden.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	requestAttrs := []any{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthTokenExpired:
			s.Logger.Warn("authentication failed: token expired", requestAttrs...)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenExpired, "Authentication token has expired")
			return
		case types.ErrCodeAuthTokenInvalid:
			s.Logger.Warn("authentication failed: token invalid", requestAttrs...)
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}
	}

	s.Logger.Error("authentication failed: unexpected error",
		append(requestAttrs, slog.String("error", err.Error()))...)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

// writeAuthError writes a 401 with the given code in the standard envelope.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{Error: ErrorDetail{
		Code:      string(code),
		Message:   message,
		RequestID: types.GetRequestID(r.Context()),
	}})
}

// RequirePlans gates a route on the subscription plan. The admission rule is
// billing.PlanAllows: a list containing only free admits only free accounts,
// a paid list admits its lowest tier and everything above it. No actor in
// context answers 401, an insufficient plan 403.
func (s *Server) RequirePlans(plans ...types.Plan) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
				return
			}

			if !billing.PlanAllows(actor.Plan, plans) {
				JSON(w, r, http.StatusForbidden, APIErrorResponse{Error: ErrorDetail{
					Code:      string(types.ErrCodePermissionPlan),
					Message:   "Current plan does not permit this operation",
					RequestID: types.GetRequestID(r.Context()),
				}})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
