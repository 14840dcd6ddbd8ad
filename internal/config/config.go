// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all gateway settings.
type Config struct {
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BackendBaseURL is the upstream reporting backend.
	BackendBaseURL string `env:"BACKEND_BASE_URL,required"`

	// JWTSecret is the HS256 signing secret shared with the backend.
	JWTSecret string `env:"JWT_SECRET,required"`

	// StationCatalogPath is the local GeoJSON station dataset.
	StationCatalogPath string `env:"STATION_CATALOG_PATH" envDefault:"data/police_stations.geojson"`

	// LogLevel is the zerolog level (trace, debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// BackendTimeout bounds each upstream backend call.
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"8s"`

	// SessionTTL is the idle lifetime of a report session.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	// RateLimit is the per-user request budget per minute.
	RateLimit int `env:"RATE_LIMIT" envDefault:"120"`

	// ConfirmRateLimit is the stricter per-user budget for report
	// confirmations per minute.
	ConfirmRateLimit int `env:"CONFIRM_RATE_LIMIT" envDefault:"5"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// TelemetryEnabled turns on OTLP trace and metric export.
	TelemetryEnabled bool `env:"TELEMETRY_ENABLED" envDefault:"false"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `env:"OTLP_ENDPOINT" envDefault:"localhost:4317"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
