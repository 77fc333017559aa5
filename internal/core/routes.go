package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/types"
)

// defaultRequestTimeout bounds request contexts when the config leaves
// Server.RequestTimeout unset. Sized to cover a slow generation oracle call
// plus persistence.
const defaultRequestTimeout = 60 * time.Second

// defaultRedactedHeaders names the headers masked in request logs. Both carry
// credentials or session material.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes defines the top-level routing hierarchy.
// It registers the global middleware chain, API version groups, and top-level
// routes (health check, metrics exposition).
func (s *Server) MountRoutes() {
	// Global Middleware Registration (strict order matters).
	s.registerGlobalMiddleware()

	// API Version Groups
	s.router.Route("/v1", s.mountV1)

	// Top-Level Routes (outside /v1 namespace)
	s.router.Get("/health", s.HandleHealth)
	if exposer, ok := s.Metrics.(MetricsExposer); ok {
		s.router.Get("/metrics", exposer.Handler().ServeHTTP)
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer        - Catches panics; outermost to catch all failures.
//  2. ContextTimeout   - Sets a soft deadline so a hung oracle call cannot
//     pin a request forever.
//  3. RequestID        - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders  - Ensures all responses include security headers.
//  5. RequestLogger    - Structured logging (redacted headers).
//  6. CORS             - Browser security headers.
//  7. Metrics          - Request latency and count recording.
//  8. Auth             - Resolves the Actor from the session token.
//  9. RateLimit        - Per-client token buckets (keyed by the Actor when
//     authenticated, the remote IP otherwise).
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, s.redactedHeaders()))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.AuthMiddleware)
	s.router.Use(s.RateLimit)
}

// mountV1 registers all v1 endpoints. Domain handler routes are registered via
// V1RouteRegistrars, which are populated by the application entry point
// (main.go). This indirection avoids import cycles between core and handler
// packages.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config == nil || s.Config.Server.RequestTimeout <= 0 {
		return defaultRequestTimeout
	}
	return s.Config.Server.RequestTimeout
}

func (s *Server) redactedHeaders() []string {
	return defaultRedactedHeaders
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config == nil || len(s.Config.Security.CorsAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.Config.Security.CorsAllowedOrigins
}

// ContextTimeoutMiddleware puts a deadline on every request context. What the
// client sees on expiry is up to the handler observing the cancellation.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware threads a correlation ID through the request. An
// incoming X-Request-Id header is trusted and reused; otherwise a fresh
// random ID is generated. The ID lands in the request context (via
// types.WithRequestID) and is echoed back as a response header so clients
// can quote it in support requests.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = generateRequestID()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}

// generateRequestID returns 16 random bytes as 32 hex characters. A
// correlation ID must never be empty, so a crypto/rand failure falls back to
// a timestamp-derived value.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "t-" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(b)
}
