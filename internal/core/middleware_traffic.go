package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tripwise/internal/types"
)

// clientEntry tracks a per-client token bucket and when it was last used, so
// idle entries can be pruned.
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter maintains per-client token buckets. Clients are keyed by the
// authenticated actor ID when available, falling back to the remote IP
// address for unauthenticated traffic. Safe for concurrent use.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry

	rps   rate.Limit
	burst int

	// idleTTL controls how long an unused bucket survives before the next
	// sweep discards it.
	idleTTL time.Duration
}

// NewClientLimiter constructs a limiter allowing rps sustained requests per
// second with the given burst per client.
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	return &ClientLimiter{
		clients: make(map[string]*clientEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
	}
}

// Allow reports whether the client identified by key may proceed, along with
// the tokens remaining after this request (floored at zero).
func (cl *ClientLimiter) Allow(key string) (allowed bool, remaining int) {
	cl.mu.Lock()
	entry, ok := cl.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(cl.rps, cl.burst)}
		cl.clients[key] = entry

		// Opportunistic sweep: prune idle buckets when the map has grown
		// well past the active client set.
		if len(cl.clients) > 1024 {
			cl.sweepLocked()
		}
	}
	entry.lastSeen = time.Now()
	cl.mu.Unlock()

	allowed = entry.limiter.Allow()

	tokens := int(entry.limiter.Tokens())
	if tokens < 0 {
		tokens = 0
	}
	return allowed, tokens
}

// Burst returns the configured per-client burst size.
func (cl *ClientLimiter) Burst() int {
	return cl.burst
}

// sweepLocked removes entries idle for longer than idleTTL. Caller holds mu.
func (cl *ClientLimiter) sweepLocked() {
	cutoff := time.Now().Add(-cl.idleTTL)
	for key, entry := range cl.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(cl.clients, key)
		}
	}
}

// RateLimit enforces per-client token buckets via the server's ClientLimiter.
//
// The client key is the authenticated Actor's ID when AuthMiddleware resolved
// one, and the remote IP address otherwise. Because the key depends on the
// Actor, this middleware runs after AuthMiddleware in the global chain.
//
// If no Limiter is configured (e.g., during tests or when rate limiting is
// disabled via feature flag), the middleware passes through.
//
// On every request, the middleware sets standard rate limit response headers:
//   - X-RateLimit-Limit: The per-client burst size.
//   - X-RateLimit-Remaining: Tokens remaining in the client's bucket.
//   - X-RateLimit-Reset: Unix timestamp when the bucket is next refilled.
//
// When rate limited, the middleware also sets:
//   - Retry-After: Seconds until a token becomes available.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If no limiter is configured, pass through.
		if s.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientKey(r)

		allowed, remaining := s.Limiter.Allow(key)

		setRateLimitHeaders(w, s.Limiter.Burst(), remaining)

		if !allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("client", key),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			w.Header().Set("Retry-After", "1")

			requestID := types.GetRequestID(r.Context())
			resp := APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "Rate limit exceeded. Please retry after the reset time.",
					RequestID: requestID,
				},
			}
			JSON(w, r, http.StatusTooManyRequests, resp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey derives the rate limit key for a request: the authenticated
// actor's ID if present, otherwise the remote IP (host portion only, so port
// churn does not defeat the bucket).
func clientKey(r *http.Request) string {
	if actor, ok := types.GetActor(r.Context()); ok && actor.ID != "" {
		return "actor:" + actor.ID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
}
