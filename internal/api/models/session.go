package models

import (
	"time"

	"github.com/patrolpoint/patrolpoint/internal/report"
	"github.com/patrolpoint/patrolpoint/internal/stations"
	"github.com/patrolpoint/patrolpoint/internal/taxonomy"
)

// LocationRequest is the body of PUT /v1/session/location.
type LocationRequest struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`

	// Name is the reverse-geocoded display name; empty when geocoding was
	// unavailable on the client.
	Name string `json:"name"`
}

// SelectionRequest is the body of PUT /v1/session/selection.
type SelectionRequest struct {
	CategoryID string `json:"categoryId" validate:"required"`
}

// Category is a crime category as rendered by the client.
type Category struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	IconRef  string `json:"icon"`
	ColorTag string `json:"color"`
}

// NewCategory converts a taxonomy category.
func NewCategory(c taxonomy.Category) Category {
	return Category{ID: c.ID, Title: c.Title, IconRef: c.IconRef, ColorTag: c.ColorTag}
}

// NewCategories converts a taxonomy category list.
func NewCategories(cats []taxonomy.Category) []Category {
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		out = append(out, NewCategory(c))
	}
	return out
}

// Location mirrors the session location.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

// NearestStation is the backend-resolved nearest station.
type NearestStation struct {
	Name             string  `json:"name"`
	TravelDistanceKm float64 `json:"travelDistanceKm"`
	TravelTimeMin    float64 `json:"travelTimeMin"`
	DivisionCode     string  `json:"divisionCode,omitempty"`
}

// SessionError describes an errored pipeline phase.
type SessionError struct {
	Reason      string `json:"reason"`
	Message     string `json:"message,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// Modal is the report-confirmation modal view state.
type Modal struct {
	State   string `json:"state"`
	Reason  string `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// SessionResponse is the full pipeline snapshot served to the client.
type SessionResponse struct {
	Phase      string          `json:"phase"`
	Generation uint64          `json:"generation"`
	Location   *Location       `json:"location,omitempty"`
	Station    *NearestStation `json:"station,omitempty"`
	Categories []Category      `json:"categories"`
	Selected   *Category       `json:"selected,omitempty"`

	Error *SessionError `json:"error,omitempty"`
	Modal Modal         `json:"modal"`

	NotifyWarning string     `json:"notifyWarning,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// NewSessionResponse projects a pipeline snapshot into the API shape.
func NewSessionResponse(s report.Snapshot) SessionResponse {
	resp := SessionResponse{
		Phase:         string(s.Phase),
		Generation:    s.Generation,
		Categories:    NewCategories(s.Categories),
		NotifyWarning: s.NotifyWarning,
	}

	if s.Location != nil {
		resp.Location = &Location{
			Latitude:  s.Location.Latitude,
			Longitude: s.Location.Longitude,
			Name:      s.Location.Name,
		}
	}
	if s.Station != nil {
		resp.Station = &NearestStation{
			Name:             s.Station.Name,
			TravelDistanceKm: s.Station.TravelDistanceKm,
			TravelTimeMin:    s.Station.TravelTimeMin,
			DivisionCode:     s.Station.DivisionCode,
		}
	}
	if s.Selected != nil {
		sel := NewCategory(*s.Selected)
		resp.Selected = &sel
	}
	if s.Phase == report.PhaseErrored {
		resp.Error = &SessionError{
			Reason:      string(s.Reason),
			Message:     s.LastError,
			Recoverable: s.Recoverable,
		}
	}
	if !s.CompletedAt.IsZero() {
		t := s.CompletedAt
		resp.CompletedAt = &t
	}

	view := report.ProjectView(s)
	resp.Modal = Modal{State: string(view.State), Reason: view.Reason, Warning: view.Warning}

	return resp
}

// CategoriesResponse is the body of GET /v1/session/categories.
type CategoriesResponse struct {
	Categories []Category `json:"categories"`
}

// Coordinate is a [lat, lon] pair for map rendering.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StationMarker is a reconciled catalog station for the map.
type StationMarker struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Telephone   string     `json:"telephone"`
	Coordinates Coordinate `json:"coordinates"`
}

// NewStationMarker converts a catalog record.
func NewStationMarker(rec *stations.Record) *StationMarker {
	if rec == nil {
		return nil
	}
	return &StationMarker{
		Name:      rec.Name,
		Type:      rec.Type,
		Telephone: rec.Telephone,
		Coordinates: Coordinate{
			Latitude:  rec.Coordinates.Lat,
			Longitude: rec.Coordinates.Lon,
		},
	}
}

// MapResponse is the body of GET /v1/session/map. Marker is nil and Route
// empty when reconciliation found no catalog match for the backend's answer.
type MapResponse struct {
	Location *Location      `json:"location,omitempty"`
	Marker   *StationMarker `json:"marker,omitempty"`

	// Route is the straight line from the user to the marker, rendered by
	// the client as a polyline.
	Route []Coordinate `json:"route,omitempty"`
}

// StationsResponse is the body of GET /v1/stations.
type StationsResponse struct {
	Stations []StationMarker `json:"stations"`
}
