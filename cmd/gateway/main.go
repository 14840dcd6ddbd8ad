// Package main provides the entrypoint for the PatrolPoint report gateway.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrolpoint/patrolpoint/internal/api"
	"github.com/patrolpoint/patrolpoint/internal/api/events"
	"github.com/patrolpoint/patrolpoint/internal/api/middleware"
	"github.com/patrolpoint/patrolpoint/internal/api/models"
	"github.com/patrolpoint/patrolpoint/internal/auth"
	"github.com/patrolpoint/patrolpoint/internal/backend"
	"github.com/patrolpoint/patrolpoint/internal/config"
	"github.com/patrolpoint/patrolpoint/internal/report"
	"github.com/patrolpoint/patrolpoint/internal/session"
	"github.com/patrolpoint/patrolpoint/internal/stations"
	"github.com/patrolpoint/patrolpoint/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "patrolpoint-gateway"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting PatrolPoint gateway")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TelemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.TelemetryEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Load the local station catalog
	catalog, err := stations.LoadCatalogFile(cfg.StationCatalogPath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load station catalog")
	}

	// Upstream reporting-backend client with the resilient transport
	backendClient := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.BackendTimeout,
		Logger:  log,
	})
	log.Info().Str("base_url", cfg.BackendBaseURL).Msg("backend client initialized")

	// Session token verifier (HS256 secret shared with the backend)
	verifier := auth.NewVerifier(auth.VerifierConfig{SigningKey: cfg.JWTSecret})

	// View-state event broker and per-user session registry
	broker := events.NewBroker()
	registry := session.NewRegistry(session.RegistryConfig{
		Factory: func(userID string) *report.Coordinator {
			return report.NewCoordinator(report.CoordinatorConfig{
				Backend:        backendClient,
				Logger:         log.With().Str("user_id", userID).Logger(),
				RequestTimeout: cfg.BackendTimeout,
				OnChange: func(s report.Snapshot) {
					broker.Publish(userID, models.NewSessionResponse(s))
				},
			})
		},
		TTL:    cfg.SessionTTL,
		Logger: log,
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go registry.Run(sweepCtx)
	log.Info().Dur("ttl", cfg.SessionTTL).Msg("session registry initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      serviceName,
		Metrics:          metrics,
		Verifier:         verifier,
		Registry:         registry,
		Catalog:          catalog,
		Broker:           broker,
		Backend:          backendClient,
		SessionRateLimit: cfg.RateLimit,
		ConfirmRateLimit: cfg.ConfirmRateLimit,
	})

	// Create HTTP server. WriteTimeout stays unset because the SSE stream
	// holds its response open for the life of the client connection.
	server := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopSweep()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
