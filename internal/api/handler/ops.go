package handler

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/patrolpoint/patrolpoint/internal/api/models"
	"github.com/patrolpoint/patrolpoint/internal/api/response"
	"github.com/patrolpoint/patrolpoint/internal/backend"
	"github.com/patrolpoint/patrolpoint/internal/stations"
)

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	catalog   *stations.Catalog
	backend   *backend.Client
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, catalog *stations.Catalog, backendClient *backend.Client) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		catalog:   catalog,
		backend:   backendClient,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now(),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The gateway is degraded when
// the station catalog is empty or the backend circuit breaker is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	details := map[string]any{
		"stations": h.catalog.Len(),
	}

	if h.catalog.Len() == 0 {
		status = models.HealthStatusDegraded
		details["catalog"] = "empty"
	}
	if h.backend != nil {
		if state, ok := h.backend.BreakerState(); ok {
			details["backend_breaker"] = state.String()
			if state == gobreaker.StateOpen {
				status = models.HealthStatusDegraded
			}
		}
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    time.Now(),
		Details: details,
	})
}
