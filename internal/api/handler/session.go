// Package handler provides HTTP handlers for the PatrolPoint gateway API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrolpoint/patrolpoint/internal/api/events"
	"github.com/patrolpoint/patrolpoint/internal/api/middleware"
	"github.com/patrolpoint/patrolpoint/internal/api/models"
	"github.com/patrolpoint/patrolpoint/internal/api/response"
	"github.com/patrolpoint/patrolpoint/internal/report"
	"github.com/patrolpoint/patrolpoint/internal/session"
	"github.com/patrolpoint/patrolpoint/internal/stations"
	"github.com/patrolpoint/patrolpoint/internal/validator"
)

// ssePingInterval keeps idle SSE connections alive through proxies.
const ssePingInterval = 30 * time.Second

// SessionHandler serves the per-user report pipeline.
type SessionHandler struct {
	registry *session.Registry
	catalog  *stations.Catalog
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(registry *session.Registry, catalog *stations.Catalog, broker *events.Broker, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		catalog:  catalog,
		broker:   broker,
		logger:   logger,
	}
}

// GetSession handles GET /v1/session - the full pipeline snapshot.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	coordinator := h.registry.Touch(middleware.GetUserID(r.Context()))
	response.JSON(w, r, http.StatusOK, models.NewSessionResponse(coordinator.Snapshot()))
}

// UpdateLocation handles PUT /v1/session/location - a location change. The
// station lookup and category personalization run before the response is
// written, so the returned snapshot already reflects the new location.
func (h *SessionHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var body models.LocationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validator.Validate(body); err != nil {
		response.BadRequest(w, r, "latitude/longitude out of range", nil)
		return
	}

	coordinator := h.registry.Touch(middleware.GetUserID(r.Context()))
	snap := coordinator.UpdateLocation(r.Context(), report.Location{
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Name:      body.Name,
	})
	response.JSON(w, r, http.StatusOK, models.NewSessionResponse(snap))
}

// GetCategories handles GET /v1/session/categories.
func (h *SessionHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	coordinator := h.registry.Touch(middleware.GetUserID(r.Context()))
	snap := coordinator.Snapshot()
	response.JSON(w, r, http.StatusOK, models.CategoriesResponse{
		Categories: models.NewCategories(snap.Categories),
	})
}

// UpdateSelection handles PUT /v1/session/selection.
func (h *SessionHandler) UpdateSelection(w http.ResponseWriter, r *http.Request) {
	var body models.SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validator.Validate(body); err != nil {
		response.BadRequest(w, r, "categoryId is required", nil)
		return
	}

	coordinator := h.registry.Touch(middleware.GetUserID(r.Context()))
	snap, err := coordinator.SelectCategory(body.CategoryID)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSessionResponse(snap))
}

// Confirm handles POST /v1/session/confirm - the submission attempt. The
// user's own bearer token travels to the reporting backend.
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	token := middleware.GetSessionToken(r.Context())

	coordinator := h.registry.Touch(userID)
	snap, err := coordinator.Confirm(r.Context(), token)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSessionResponse(snap))
}

// Cancel handles DELETE /v1/session - reset and evict the session.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if coordinator, ok := h.registry.Peek(userID); ok {
		coordinator.Reset()
		h.registry.Remove(userID)
	}
	response.NoContent(w, r)
}

// GetMap handles GET /v1/session/map - the reconciled station marker and
// route line for the current location. The marker is omitted when the
// backend's station name matches nothing in the local catalog; the backend
// answer carries no coordinates, so there is nothing to draw.
func (h *SessionHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	coordinator := h.registry.Touch(middleware.GetUserID(r.Context()))
	snap := coordinator.Snapshot()

	var resp models.MapResponse
	if snap.Location != nil {
		resp.Location = &models.Location{
			Latitude:  snap.Location.Latitude,
			Longitude: snap.Location.Longitude,
			Name:      snap.Location.Name,
		}
	}
	if snap.Station != nil {
		if rec := h.catalog.Reconcile(*snap.Station); rec != nil {
			resp.Marker = models.NewStationMarker(rec)
		} else {
			h.logger.Debug().
				Str("station", snap.Station.Name).
				Msg("backend station not found in local catalog, marker suppressed")
		}
	}
	if resp.Location != nil && resp.Marker != nil {
		resp.Route = []models.Coordinate{
			{Latitude: resp.Location.Latitude, Longitude: resp.Location.Longitude},
			resp.Marker.Coordinates,
		}
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// Events handles GET /v1/session/events - the SSE view-state stream.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.InternalError(w, r, "streaming not supported")
		return
	}

	// Touch so the stream itself keeps the session alive.
	coordinator := h.registry.Touch(userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Send the current snapshot first so the client renders without waiting
	// for the next transition.
	if data, err := json.Marshal(models.NewSessionResponse(coordinator.Snapshot())); err == nil {
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
	}
	flusher.Flush()

	ch := h.broker.Subscribe(userID)
	defer h.broker.Unsubscribe(userID, ch)

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writePipelineError maps pipeline errors to problem responses.
func (h *SessionHandler) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	detail := err.Error()
	var perr *report.Error
	if errors.As(err, &perr) {
		detail = perr.Message
	}

	switch {
	case errors.Is(err, report.ErrAuth):
		response.Unauthorized(w, r, detail)
	case errors.Is(err, report.ErrNotFound):
		response.NotFound(w, r, detail)
	case errors.Is(err, report.ErrValidation), errors.Is(err, report.ErrNoSelection),
		errors.Is(err, report.ErrBusy):
		response.Conflict(w, r, detail)
	case errors.Is(err, report.ErrTimeout), errors.Is(err, report.ErrNetwork):
		response.BadGateway(w, r, detail)
	default:
		h.logger.Error().Err(err).Msg("unhandled pipeline error")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}
