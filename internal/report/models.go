// Package report owns the crime-report submission pipeline: the state
// machine that takes a location through nearest-station resolution, category
// personalization, report submission and notification dispatch, plus the
// view-state projection consumed by the mobile client.
package report

import (
	"time"

	"github.com/patrolpoint/patrolpoint/internal/stations"
	"github.com/patrolpoint/patrolpoint/internal/taxonomy"
)

// UnknownLocationName is the sentinel used when reverse-geocoding is
// unavailable. A report is never submittable against it.
const UnknownLocationName = "Unknown Location"

// Location is a user-selected or device-reported position. It is replaced
// wholesale on every update, never partially mutated.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
}

// Known reports whether the location carries a usable display name.
func (l Location) Known() bool {
	return l.Name != "" && l.Name != UnknownLocationName
}

// CrimeReport is the submission payload. Created at confirmation time,
// immutable, sent once; nothing is persisted after acknowledgment.
type CrimeReport struct {
	CrimeType     string  `json:"crime_type"`
	LocationName  string  `json:"location"`
	ReporterEmail string  `json:"email"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	PoliceStation string  `json:"police_station"`
}

// Phase is the pipeline state tag.
type Phase string

const (
	PhaseIdle                    Phase = "IDLE"
	PhaseLocatingStation         Phase = "LOCATING_STATION"
	PhasePersonalizingCategories Phase = "PERSONALIZING_CATEGORIES"
	PhaseAwaitingSelection       Phase = "AWAITING_SELECTION"
	PhaseSubmitting              Phase = "SUBMITTING"
	PhaseNotifying               Phase = "NOTIFYING"
	PhaseCompleted               Phase = "COMPLETED"
	PhaseErrored                 Phase = "ERRORED"
)

// ErrorReason tags terminal and recoverable pipeline failures.
type ErrorReason string

const (
	ReasonNone                ErrorReason = ""
	ReasonStationLookupFailed ErrorReason = "STATION_LOOKUP_FAILED"
	ReasonSubmissionFailed    ErrorReason = "SUBMISSION_FAILED"
	ReasonAuthRequired        ErrorReason = "AUTH_REQUIRED"
	ReasonTimeout             ErrorReason = "TIMEOUT"
)

// Snapshot is an immutable copy of the pipeline state, safe to hand to the
// API layer and the view projection.
type Snapshot struct {
	Phase      Phase
	Generation uint64

	Location *Location
	Station  *stations.NearestAnswer

	Categories []taxonomy.Category
	Selected   *taxonomy.Category

	// Reason is set while Phase is Errored.
	Reason ErrorReason
	// Recoverable marks an Errored phase the user can continue from
	// (e.g. station lookup failed but defaults are usable).
	Recoverable bool
	// LastError is a short human-readable description of the last failure.
	LastError string

	// NotifyWarning carries the soft warning when notification dispatch
	// failed after a successful submission.
	NotifyWarning string

	// CompletedAt is set when the pipeline reaches Completed.
	CompletedAt time.Time
}
