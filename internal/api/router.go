// Package api provides the HTTP API for the PatrolPoint gateway.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/patrolpoint/patrolpoint/internal/api/events"
	"github.com/patrolpoint/patrolpoint/internal/api/handler"
	"github.com/patrolpoint/patrolpoint/internal/api/middleware"
	"github.com/patrolpoint/patrolpoint/internal/auth"
	"github.com/patrolpoint/patrolpoint/internal/backend"
	"github.com/patrolpoint/patrolpoint/internal/session"
	"github.com/patrolpoint/patrolpoint/internal/stations"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	ServiceName string
	Metrics     *middleware.Metrics

	Verifier *auth.Verifier
	Registry *session.Registry
	Catalog  *stations.Catalog
	Broker   *events.Broker
	Backend  *backend.Client

	// SessionRateLimit overrides the standard per-user budget when nonzero.
	SessionRateLimit int
	// ConfirmRateLimit overrides the confirm budget when nonzero.
	ConfirmRateLimit int
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "patrolpoint-gateway"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ContentTypeJSON)

	sessionHandler := handler.NewSessionHandler(cfg.Registry, cfg.Catalog, cfg.Broker, cfg.Logger)
	stationsHandler := handler.NewStationsHandler(cfg.Catalog)
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Catalog, cfg.Backend)

	authMiddleware := middleware.Auth(cfg.Verifier)

	standardLimit := middleware.StandardRateLimit
	if cfg.SessionRateLimit > 0 {
		standardLimit.RequestLimit = cfg.SessionRateLimit
	}
	confirmLimit := middleware.ConfirmRateLimit
	if cfg.ConfirmRateLimit > 0 {
		confirmLimit.RequestLimit = cfg.ConfirmRateLimit
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Station catalog (public) - standard rate limiting by IP
		r.With(middleware.RateLimitByIP(standardLimit)).Get("/stations", stationsHandler.ListStations)

		// Session endpoints (authenticated) - user-based rate limiting
		r.Route("/session", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(standardLimit))

			r.Get("/", sessionHandler.GetSession)
			r.Delete("/", sessionHandler.Cancel)
			r.Put("/location", sessionHandler.UpdateLocation)
			r.Get("/categories", sessionHandler.GetCategories)
			r.Put("/selection", sessionHandler.UpdateSelection)
			r.Get("/map", sessionHandler.GetMap)
			r.Get("/events", sessionHandler.Events)

			// Confirmed reports reach a police station; strict budget.
			r.With(middleware.RateLimitByUser(confirmLimit)).Post("/confirm", sessionHandler.Confirm)
		})
	})

	return r
}
