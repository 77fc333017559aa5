// Package core provides the API chassis for the TripWise platform.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, observability, traffic shaping, and error handling -- before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/config"
	"tripwise/internal/store"
)

// Server bundles the API's dependencies behind one value. Fields other than
// Config, Store and Logger are optional and may be assigned after
// construction, which is how tests swap in doubles.
type Server struct {
	Config    *config.Config
	Store     *store.FileStore
	Logger    *slog.Logger
	Validator *Validator

	// Metrics records request telemetry. Nil disables recording.
	Metrics MetricsCollector
	// Authenticator resolves bearer tokens to Actors; nil disables auth
	// (tests wire their own).
	Authenticator Authenticator
	// Limiter shapes per-client traffic. Nil disables rate limiting.
	Limiter *ClientLimiter
	// HealthProbes are executed concurrently by GET /health.
	HealthProbes []HealthProbe
	// V1RouteRegistrars mount domain handlers under /v1. Populated by the
	// application entry point; the indirection avoids import cycles between
	// core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// Internal router
	router *chi.Mux
}

// NewServer builds a Server with its router and validator wired. Routes are
// NOT mounted here; callers assign optional fields first and then call
// MountRoutes, so tests can register their own routes.
func NewServer(
	cfg *config.Config,
	fileStore *store.FileStore,
	logger *slog.Logger,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if fileStore == nil {
		return nil, fmt.Errorf("file store must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Store:     fileStore,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler exposes the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi mux directly. Tests use it to register routes
// without going through MountRoutes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources. The file
// store holds no open handles between operations, so the work here is
// limited to flushing logs and honoring the context.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
