package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tripwise/internal/types"

	"github.com/sony/gobreaker/v2"
)

func noopSleep(time.Duration) {}

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries: retries,
		MinWait:    time.Millisecond,
		MaxWait:    10 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, policy RetryPolicy, opts ...BaseClientOption) *BaseClient {
	t.Helper()
	opts = append([]BaseClientOption{WithSleepFunc(noopSleep)}, opts...)
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker",
		policy,
		"TripWise-Test/1.0",
		opts...,
	)
}

func getRequest(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	return req
}

func appErrCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T: %v", err, err)
	}
	return appErr.Code
}

// =============================================================================
// Header Injection
// =============================================================================

func TestDo_InjectsHeaders(t *testing.T) {
	var traceID, userAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = r.Header.Get("X-B3-TraceId")
		userAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())
	ctx := types.WithRequestID(context.Background(), "trace-abc-123")

	resp, err := client.Do(getRequest(t, ctx, server.URL))
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", body)
	}
	if traceID != "trace-abc-123" {
		t.Errorf("expected propagated trace ID, got %q", traceID)
	}
	if userAgent != "TripWise-Test/1.0" {
		t.Errorf("expected configured User-Agent, got %q", userAgent)
	}
}

func TestDo_NoTraceHeaderWithoutRequestID(t *testing.T) {
	var traceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = r.Header.Get("X-B3-TraceId")
	}))
	defer server.Close()

	client := newTestClient(t, DefaultRetryPolicy())
	resp, err := client.Do(getRequest(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	resp.Body.Close()

	if traceID != "" {
		t.Errorf("expected no trace header, got %q", traceID)
	}
}

// =============================================================================
// Retry Behavior
// =============================================================================

func TestDo_RetriesTransientStatuses(t *testing.T) {
	tests := []struct {
		name       string
		failStatus int
		failures   int32
		wantCalls  int32
	}{
		{"500 then success", http.StatusInternalServerError, 2, 3},
		{"503 then success", http.StatusServiceUnavailable, 1, 2},
		{"429 then success", http.StatusTooManyRequests, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					return
				}
				w.Write([]byte("recovered"))
			}))
			defer server.Close()

			client := newTestClient(t, fastPolicy(3))
			resp, err := client.Do(getRequest(t, context.Background(), server.URL))
			if err != nil {
				t.Fatalf("expected success after retries, got: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", resp.StatusCode)
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("expected %d attempts, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestDo_4xxReturnedWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(3))
	resp, err := client.Do(getRequest(t, context.Background(), server.URL))
	if err != nil {
		t.Fatalf("a 400 is the caller's to handle, got error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 attempt for a 4xx, got %d", got)
	}
}

func TestDo_ExhaustedRetries(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantCode types.ErrorCode
	}{
		{"persistent 500", http.StatusInternalServerError, types.ErrCodeUpstreamUnavailable},
		{"persistent 429", http.StatusTooManyRequests, types.ErrCodeUpstreamRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := newTestClient(t, fastPolicy(2))
			resp, err := client.Do(getRequest(t, context.Background(), server.URL))
			if resp != nil {
				t.Error("expected nil response once the retry budget is spent")
			}
			if err == nil {
				t.Fatal("expected an error once the retry budget is spent")
			}
			if code := appErrCode(t, err); code != tt.wantCode {
				t.Errorf("expected %s, got %s", tt.wantCode, code)
			}
			if got := calls.Load(); got != 3 {
				t.Errorf("expected 3 attempts (1 + 2 retries), got %d", got)
			}
		})
	}
}

func TestDo_PostBodyReplayedOnRetry(t *testing.T) {
	const body = `{"key":"value"}`

	var calls atomic.Int32
	var received []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		received = append(received, string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := newTestClient(t, fastPolicy(2))
	req, err := http.NewRequestWithContext(context.Background(),
		http.MethodPost, server.URL, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected success after retry, got: %v", err)
	}
	resp.Body.Close()

	if len(received) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(received))
	}
	for i, got := range received {
		if got != body {
			t.Errorf("attempt %d: body not replayed, got %q", i, got)
		}
	}
}

// =============================================================================
// Retry-After Handling
// =============================================================================

func TestRetryWait_RetryAfterSeconds(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		maxWait    time.Duration
		want       time.Duration
	}{
		{"honored", "2", 10 * time.Second, 2 * time.Second},
		{"capped to max wait", "3600", 5 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					w.Header().Set("Retry-After", tt.retryAfter)
					w.WriteHeader(http.StatusTooManyRequests)
				}
			}))
			defer server.Close()

			var slept []time.Duration
			client := newTestClient(t, RetryPolicy{
				MaxRetries: 1,
				MinWait:    100 * time.Millisecond,
				MaxWait:    tt.maxWait,
			}, WithSleepFunc(func(d time.Duration) { slept = append(slept, d) }))

			resp, err := client.Do(getRequest(t, context.Background(), server.URL))
			if err != nil {
				t.Fatalf("expected success, got: %v", err)
			}
			resp.Body.Close()

			if len(slept) != 1 {
				t.Fatalf("expected 1 sleep, got %d", len(slept))
			}
			if slept[0] != tt.want {
				t.Errorf("expected wait of %v, got %v", tt.want, slept[0])
			}
		})
	}
}

func TestRetryWait_JitterStaysInBounds(t *testing.T) {
	client := &BaseClient{retryPolicy: RetryPolicy{
		MaxRetries: 5,
		MinWait:    100 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}}

	// Jitter makes the exact value random; the bounds are the contract.
	for attempt := 0; attempt < 5; attempt++ {
		wait := client.retryWait(attempt, nil)
		if wait < client.retryPolicy.MinWait || wait > client.retryPolicy.MaxWait {
			t.Errorf("attempt %d: wait %v outside [%v, %v]",
				attempt, wait, client.retryPolicy.MinWait, client.retryPolicy.MaxWait)
		}
	}
}

// =============================================================================
// Circuit Breaker
// =============================================================================

func TestDo_OpenBreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "test-open",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
	})
	client := NewBaseClientWithBreaker(
		&http.Client{Timeout: 5 * time.Second},
		breaker,
		fastPolicy(0),
		"TripWise-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	for i := 0; i < 4; i++ {
		_, _ = client.Do(getRequest(t, context.Background(), server.URL))
	}
	before := calls.Load()

	resp, err := client.Do(getRequest(t, context.Background(), server.URL))
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response from an open breaker")
	}
	if err == nil {
		t.Fatal("expected an error from an open breaker")
	}
	if code := appErrCode(t, err); code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamRateLimited, code)
	}
	if after := calls.Load(); after != before {
		t.Errorf("open breaker still reached the server %d times", after-before)
	}
}

// =============================================================================
// Error Mapping
// =============================================================================

func TestUpstreamError(t *testing.T) {
	client := &BaseClient{}

	tests := []struct {
		name string
		resp *http.Response
		err  error
		want types.ErrorCode
	}{
		{"breaker open", nil, gobreaker.ErrOpenState, types.ErrCodeUpstreamRateLimited},
		{"breaker half-open refusal", nil, gobreaker.ErrTooManyRequests, types.ErrCodeUpstreamRateLimited},
		{"final 429", &http.Response{StatusCode: 429}, fmt.Errorf("upstream returned 429"), types.ErrCodeUpstreamRateLimited},
		{"final 500", &http.Response{StatusCode: 500}, fmt.Errorf("upstream returned 500"), types.ErrCodeUpstreamUnavailable},
		{"network failure", nil, fmt.Errorf("connection refused"), types.ErrCodeInternalUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := client.upstreamError(tt.resp, tt.err)
			if appErr.Code != tt.want {
				t.Errorf("expected %s, got %s", tt.want, appErr.Code)
			}
		})
	}
}

func TestDo_NetworkErrorMapsToAppError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, fastPolicy(1))
	resp, err := client.Do(getRequest(t, context.Background(), url))
	if resp != nil {
		resp.Body.Close()
		t.Error("expected nil response for a connection failure")
	}
	if err == nil {
		t.Fatal("expected an error for a connection failure")
	}
	if code := appErrCode(t, err); code != types.ErrCodeInternalUnexpected {
		t.Errorf("expected %s, got %s", types.ErrCodeInternalUnexpected, code)
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()
	if policy.MaxRetries != 3 || policy.MinWait != 500*time.Millisecond || policy.MaxWait != 10*time.Second {
		t.Errorf("unexpected defaults: %+v", policy)
	}
}
