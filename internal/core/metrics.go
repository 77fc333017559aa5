package core

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector abstracts request telemetry recording so the server chassis
// does not depend on a concrete metrics backend. Implementations must be safe
// for concurrent use.
type MetricsCollector interface {
	// RecordRequest records a completed HTTP request. The route is the chi
	// route pattern (e.g. "/v1/cities/{city}"), not the raw URL path, to keep
	// label cardinality bounded.
	RecordRequest(method, route, status string, duration time.Duration)
}

// MetricsExposer is implemented by collectors that can serve their metrics
// over HTTP. When the server's collector implements it, the exposition
// handler is mounted at /metrics.
type MetricsExposer interface {
	Handler() http.Handler
}

// PrometheusCollector implements MetricsCollector backed by a private
// Prometheus registry. Using a private registry instead of the package
// default keeps tests that construct multiple collectors from colliding on
// duplicate metric registration.
type PrometheusCollector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusCollector constructs a collector with request count and
// latency metrics registered on a fresh registry.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tripwise",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests processed, by method, route and status.",
	}, []string{"method", "route", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tripwise",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds, by method, route and status.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route", "status"})

	registry.MustRegister(requests, duration)

	return &PrometheusCollector{
		registry: registry,
		requests: requests,
		duration: duration,
	}
}

// RecordRequest implements MetricsCollector.
func (c *PrometheusCollector) RecordRequest(method, route, status string, duration time.Duration) {
	c.requests.WithLabelValues(method, route, status).Inc()
	c.duration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// Handler implements MetricsExposer, serving the text exposition format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// MetricsMiddleware records request latency and count metrics for observability.
// It wraps handlers to capture start time, call the next handler, capture
// response status code, and call s.Metrics.RecordRequest.
//
// The route label uses the chi route pattern resolved after routing, falling
// back to the raw path when no pattern matched (e.g. 404s).
//
// If s.Metrics is nil (e.g., during tests that don't inject a collector),
// the middleware passes through without recording.
func (s *Server) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If no metrics collector is configured, pass through.
		if s.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		rc := &responseCapture{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rc, r)

		duration := time.Since(start)
		status := strconv.Itoa(rc.statusCode)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		s.Metrics.RecordRequest(r.Method, route, status, duration)
	})
}
