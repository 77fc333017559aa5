package core

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestPrometheusCollector_RecordAndExpose(t *testing.T) {
	c := NewPrometheusCollector()

	c.RecordRequest(http.MethodGet, "/v1/countries", "200", 12*time.Millisecond)
	c.RecordRequest(http.MethodGet, "/v1/countries", "200", 8*time.Millisecond)
	c.RecordRequest(http.MethodPost, "/v1/guides", "402", 3*time.Millisecond)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	c.Handler().ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	exposition := string(body)

	if !strings.Contains(exposition, "tripwise_http_requests_total") {
		t.Error("expected requests_total metric in exposition")
	}
	if !strings.Contains(exposition, "tripwise_http_request_duration_seconds") {
		t.Error("expected request_duration_seconds metric in exposition")
	}
	if !strings.Contains(exposition, `route="/v1/countries"`) {
		t.Error("expected route label in exposition")
	}
	if !strings.Contains(exposition, `status="402"`) {
		t.Error("expected status label in exposition")
	}
}

func TestPrometheusCollector_IndependentRegistries(t *testing.T) {
	// Two collectors must not collide on metric registration.
	a := NewPrometheusCollector()
	b := NewPrometheusCollector()

	a.RecordRequest(http.MethodGet, "/health", "200", time.Millisecond)

	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(w.Body)
	if strings.Contains(string(body), `route="/health"`) {
		t.Error("collector b should not see collector a's samples")
	}
}

func TestMetricsMiddleware_NilCollector_PassesThrough(t *testing.T) {
	srv := newTestServer(t)
	next := &okHandler{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/v1/countries", nil)
	srv.MetricsMiddleware(next).ServeHTTP(w, r)

	if !next.called {
		t.Error("expected pass-through without collector")
	}
}

func TestMetricsMiddleware_RecordsStatus(t *testing.T) {
	srv := newTestServer(t)
	metrics := &mockMetricsCollector{}
	srv.Metrics = metrics

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/guides", nil)
	srv.MetricsMiddleware(next).ServeHTTP(w, r)

	if len(metrics.calls) != 1 {
		t.Fatalf("expected 1 metrics call, got %d", len(metrics.calls))
	}
	call := metrics.calls[0]
	if call.method != http.MethodPost {
		t.Errorf("method = %q, want POST", call.method)
	}
	if call.status != "402" {
		t.Errorf("status = %q, want 402", call.status)
	}
	// Outside a chi route, the raw path is the best available label.
	if call.route != "/v1/guides" {
		t.Errorf("route = %q, want /v1/guides", call.route)
	}
}
