// Package main is the entry point for the TripWise API server.
//
// It loads configuration, opens the flat-file catalog, wires the domain
// services to their external oracles (generation, geocoding, payment, mail),
// builds the HTTP server with the core chassis (middleware, routing, health
// checks, metrics), and starts listening for requests.
//
// In test mode (IS_TEST_MODE=true) the external oracles are replaced with
// deterministic in-process stubs so the full API can run without network
// access or credentials.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"tripwise/internal/api/handlers"
	"tripwise/internal/auth"
	"tripwise/internal/billing"
	"tripwise/internal/config"
	"tripwise/internal/core"
	"tripwise/internal/external"
	"tripwise/internal/geo"
	"tripwise/internal/guides"
	"tripwise/internal/scheduler"
	"tripwise/internal/store"
	"tripwise/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("tripwise API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"test_mode", cfg.IsTestMode,
	)

	fileStore, err := store.NewFileStore(cfg.Storage.DataRoot)
	if err != nil {
		return fmt.Errorf("opening data root: %w", err)
	}

	sessions, err := auth.NewSessionService(auth.SessionConfig{
		Secret: cfg.Auth.JWTSigningKey,
		TTL:    cfg.Auth.SessionTTL,
	}, nil, logger)
	if err != nil {
		return fmt.Errorf("creating session service: %w", err)
	}

	oracles := buildOracles(cfg, logger)

	authSvc := auth.NewAuthService(auth.AuthServiceConfig{
		Store:          fileStore,
		Mail:           oracles.mail,
		Sessions:       sessions,
		Logger:         logger,
		ConfirmBaseURL: cfg.Server.APIExternalURL + "/v1/auth/confirm",
		From: types.EmailAddress{
			Address: cfg.Email.FromAddress,
			Name:    cfg.Email.FromName,
		},
	})

	locator := geo.NewLocator(geo.LocatorConfig{
		Store:    fileStore,
		Geocoder: oracles.geocoder,
		CacheTTL: cfg.Geo.CacheTTL,
		Logger:   logger,
	})
	geoSvc := geo.NewService(locator, logger)

	planRegistry := billing.NewStaticPlanRegistry()
	usage := billing.NewUsageEnforcer(fileStore, planRegistry)

	guideSvc := guides.NewService(guides.ServiceConfig{
		Store:     fileStore,
		Oracle:    oracles.guide,
		Usage:     usage,
		MaxCities: cfg.Generation.MaxCitiesPerCountry,
		Logger:    logger,
	})

	paymentSvc := billing.NewPaymentService(billing.PaymentServiceConfig{
		Store:      fileStore,
		Provider:   oracles.payment,
		Sessions:   sessions,
		MerchantID: cfg.Billing.MerchantID,
		Currency:   cfg.Billing.Currency,
		Logger:     logger,
	})

	// Build the server chassis.
	srv, err := core.NewServer(cfg, fileStore, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	srv.Authenticator = auth.NewTokenAuthenticator(sessions)
	srv.Metrics = core.NewPrometheusCollector()
	if cfg.Feature.EnableRateLimit && cfg.Security.RateLimitRPS > 0 {
		srv.Limiter = core.NewClientLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}

	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc("store", func(ctx context.Context) error {
		_, err := fileStore.List(ctx, types.ResourceCountriesDir)
		return err
	}))

	// Wire the HTTP handlers.
	authHandler := handlers.NewAuthHandler(authSvc, logger, srv.Validator)
	guideHandler := handlers.NewGuideHandler(guideSvc, locator, srv.RequirePlans, logger, srv.Validator)
	geoHandler := handlers.NewGeoHandler(geoSvc, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentSvc, logger, srv.Validator)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { authHandler.RegisterRoutes(r) },
		func(r chi.Router) { guideHandler.RegisterRoutes(r) },
		func(r chi.Router) { geoHandler.RegisterRoutes(r) },
		func(r chi.Router) { paymentHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()

	// Start the pending-signup sweeper unless the kill switch is thrown.
	if cfg.Feature.EnableSweeper {
		sweeper, err := scheduler.NewSweeper(authSvc, cfg.Maintenance.SweepSchedule, cfg.Auth.ConfirmTokenTTL, logger)
		if err != nil {
			return fmt.Errorf("creating sweeper: %w", err)
		}
		sweeper.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sweeper.Stop(ctx); err != nil {
				logger.Error("sweeper shutdown error", "error", err)
			}
		}()
	}

	return runHTTPServer(srv, cfg, logger)
}

// oracleSet bundles the external providers the domain services depend on.
type oracleSet struct {
	mail     external.EmailProvider
	geocoder external.Geocoder
	guide    external.GuideOracle
	payment  external.PaymentProvider
}

// buildOracles constructs the external provider clients. Test mode swaps in
// deterministic stubs across the board; EMAIL_PROVIDER=stub swaps only mail,
// which is useful in dev environments without a SendGrid key.
func buildOracles(cfg *config.Config, logger *slog.Logger) oracleSet {
	if cfg.IsTestMode {
		return oracleSet{
			mail:     external.NewStubEmailProvider(logger),
			geocoder: external.NewStubGeocoder(logger),
			guide:    external.NewStubGuideOracle(logger),
			payment:  external.NewStubPaymentProvider(logger),
		}
	}

	var mail external.EmailProvider
	if cfg.Email.Provider == "stub" {
		mail = external.NewStubEmailProvider(logger)
	} else {
		mail = external.NewSendGridClient(
			&http.Client{Timeout: cfg.Email.Timeout},
			external.SendGridClientConfig{
				APIKey: cfg.Email.SendGridAPIKey.Unmask(),
				Logger: logger,
			},
		)
	}

	return oracleSet{
		mail: mail,
		geocoder: external.NewNominatimClient(
			&http.Client{Timeout: cfg.Geo.Timeout},
			external.NominatimClientConfig{
				BaseURL:   cfg.Geo.BaseURL,
				UserAgent: cfg.Geo.UserAgent,
				Logger:    logger,
			},
		),
		guide: external.NewOpenAIClient(
			&http.Client{Timeout: cfg.Generation.Timeout},
			external.OpenAIClientConfig{
				APIKey: cfg.Generation.OpenAIAPIKey.Unmask(),
				Model:  cfg.Generation.Model,
				Logger: logger,
			},
		),
		payment: external.NewPayPalClient(
			&http.Client{Timeout: cfg.Billing.Timeout},
			external.PayPalClientConfig{
				ClientID:     cfg.Billing.ClientID,
				ClientSecret: cfg.Billing.ClientSecret.Unmask(),
				BaseURL:      cfg.Billing.BaseURL,
				Logger:       logger,
			},
		),
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
