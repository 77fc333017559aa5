// Package external is the boundary between TripWise and the oracle APIs it
// depends on: guide generation, geocoding, payments and mail. Every outbound
// HTTP call goes through BaseClient so all providers share one resilience
// posture (circuit breaking, bounded retries, trace propagation) and one
// error vocabulary.
package external

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"tripwise/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy bounds how often and how long BaseClient retries a call.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy suits the oracle APIs this service talks to: three
// retries between half a second and ten seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// BaseClient is the shared outbound HTTP chassis. Provider clients embed it
// and get circuit breaking, retry-with-backoff and AppError mapping without
// re-implementing any of it.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string

	// sleepFn is swapped out in tests so retries take no wall time.
	sleepFn func(time.Duration)
}

// BaseClientOption configures a BaseClient at construction.
type BaseClientOption func(*BaseClient)

// WithSleepFunc replaces the inter-retry sleep. Test hook.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// NewBaseClient builds a client with its own circuit breaker: the breaker
// trips after five consecutive failures, admits a single probe while
// half-open, and resets its counts every minute.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
	return NewBaseClientWithBreaker(httpClient, breaker, retryPolicy, userAgent, opts...)
}

// NewBaseClientWithBreaker builds a client around a caller-owned breaker, for
// tests and for providers that share one breaker across endpoints.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	c := &BaseClient{
		client:      httpClient,
		breaker:     breaker,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends the request through the breaker, retrying 429s and 5xx responses
// with backoff (honoring Retry-After) up to the policy's budget. The request
// body is snapshotted once so it can be replayed on each attempt.
//
// Any response the upstream meant the caller to see (2xx/3xx/4xx except 429)
// is returned as-is with its body open; the caller closes it. An open breaker
// or an exhausted budget comes back as a types.AppError with the matching
// upstream_ code.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var bodySnapshot []byte
	if req.Body != nil {
		var err error
		bodySnapshot, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to read request body for retry support", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if bodySnapshot != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodySnapshot))
			req.ContentLength = int64(len(bodySnapshot))
		}

		resp, err := c.attempt(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// A breaker refusal means the upstream is already known to be down;
		// retrying would only hammer it.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if resp != nil {
			// Non-retryable statuses are the caller's to interpret.
			if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
				return resp, nil
			}
			if attempt < attempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		if attempt < attempts-1 {
			c.sleepFn(c.retryWait(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.upstreamError(lastResp, lastErr)
}

// attempt performs one breaker-wrapped round trip. 429 and 5xx count as
// breaker failures so sustained upstream trouble eventually opens it.
func (c *BaseClient) attempt(req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return resp, fmt.Errorf("upstream returned %d", resp.StatusCode)
		}
		return resp, nil
	})
}

// retryWait picks the pause before the next attempt: the upstream's
// Retry-After when it sent one (seconds or HTTP-date, clamped to MaxWait),
// otherwise exponential backoff with full jitter over [MinWait, MinWait*2^n].
func (c *BaseClient) retryWait(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if at, err := http.ParseTime(header); err == nil {
				wait := time.Until(at)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	ceiling := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	ceiling = math.Min(ceiling, float64(c.retryPolicy.MaxWait))
	floor := float64(c.retryPolicy.MinWait)
	if ceiling <= floor {
		return c.retryPolicy.MinWait
	}
	return time.Duration(floor + rand.Float64()*(ceiling-floor))
}

// upstreamError maps a terminal transport failure onto the error taxonomy.
func (c *BaseClient) upstreamError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			"circuit breaker is open; upstream service unavailable", err)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited,
				"upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		}
	}

	return types.NewAppError(types.ErrCodeInternalUnexpected,
		"upstream request failed", err)
}
