package handler

import (
	"net/http"

	"github.com/patrolpoint/patrolpoint/internal/api/models"
	"github.com/patrolpoint/patrolpoint/internal/api/response"
	"github.com/patrolpoint/patrolpoint/internal/stations"
)

// StationsHandler serves the local station catalog.
type StationsHandler struct {
	catalog *stations.Catalog
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(catalog *stations.Catalog) *StationsHandler {
	return &StationsHandler{catalog: catalog}
}

// ListStations handles GET /v1/stations - the full catalog for map
// rendering.
func (h *StationsHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	records := h.catalog.Records()

	out := make([]models.StationMarker, 0, len(records))
	for i := range records {
		out = append(out, *models.NewStationMarker(&records[i]))
	}
	response.JSON(w, r, http.StatusOK, models.StationsResponse{Stations: out})
}
