// Package stations holds the local geographic catalog of police stations and
// the reconciler that matches a backend-named nearest station against it.
package stations

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Record is one station from the local catalog. The catalog is loaded once
// at startup and never mutated; lookups hand out references into it.
type Record struct {
	// Name is the station building name, e.g. "Bedok North NPC".
	Name string `json:"name"`

	// Type is the station classification, e.g. "NPC" or "Divisional HQ".
	Type string `json:"type"`

	// Telephone is the station contact number as published in the dataset.
	Telephone string `json:"telephone"`

	// Coordinates is the station position.
	Coordinates Coordinate `json:"coordinates"`
}

// NearestAnswer is the backend-authoritative nearest-station result. It
// describes the same real-world station as a catalog Record but in a
// different representation; the two are reconciled by name, never joined on
// an exact key.
type NearestAnswer struct {
	Name             string  `json:"name"`
	TravelDistanceKm float64 `json:"travel_distance_km"`
	TravelTimeMin    float64 `json:"travel_time_min"`
	DivisionCode     string  `json:"divcode,omitempty"`
}
