package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/patrolpoint/patrolpoint/internal/stations"
	"github.com/patrolpoint/patrolpoint/internal/taxonomy"
)

// DefaultRequestTimeout bounds every upstream call issued by the pipeline.
// A stalled backend request surfaces as a timeout instead of delaying the
// state machine indefinitely.
const DefaultRequestTimeout = 8 * time.Second

// UnknownDivisionCode is sent to the notification dispatcher when the
// nearest-station answer carried no division code.
const UnknownDivisionCode = "UNKNOWN"

// Backend is the upstream reporting-backend contract the pipeline depends
// on. Implemented by the backend package; tests substitute fakes.
type Backend interface {
	// NearestStation resolves the backend-authoritative nearest station
	// for a coordinate.
	NearestStation(ctx context.Context, lat, lon float64) (*stations.NearestAnswer, error)

	// TopCrimes returns the historically most frequent crime names for a
	// station. The division code is optional and narrows the request.
	TopCrimes(ctx context.Context, stationName, divisionCode string) ([]string, error)

	// ReporterEmail fetches the authenticated reporter's email.
	ReporterEmail(ctx context.Context, token string) (string, error)

	// SubmitReport submits a crime report.
	SubmitReport(ctx context.Context, token string, r CrimeReport) error

	// SendSMS dispatches the station notification for a division.
	SendSMS(ctx context.Context, divisionCode, message string) error
}

// CoordinatorConfig holds configuration for the pipeline coordinator.
type CoordinatorConfig struct {
	// Backend is the upstream client (required).
	Backend Backend

	// Logger for pipeline operations.
	Logger zerolog.Logger

	// Clock is the time source; tests inject a fake (default: real clock).
	Clock clockwork.Clock

	// RequestTimeout bounds each upstream call (default: 8s).
	RequestTimeout time.Duration

	// OnChange, when set, receives a snapshot after every state change.
	OnChange func(Snapshot)
}

// Coordinator owns one user's report-submission pipeline. All state is
// session-scoped and guarded by a single mutex; network calls run outside
// the lock and their results are discarded when a newer location update has
// superseded them (last-write-wins via the generation counter).
type Coordinator struct {
	backend  Backend
	logger   zerolog.Logger
	clock    clockwork.Clock
	timeout  time.Duration
	onChange func(Snapshot)

	mu            sync.Mutex
	phase         Phase
	generation    uint64
	location      *Location
	station       *stations.NearestAnswer
	categories    []taxonomy.Category
	selected      *taxonomy.Category
	reason        ErrorReason
	recoverable   bool
	lastError     string
	notifyWarning string
	completedAt   time.Time
}

// NewCoordinator creates a pipeline coordinator in the Idle phase with the
// default category set.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	return &Coordinator{
		backend:    cfg.Backend,
		logger:     cfg.Logger,
		clock:      clock,
		timeout:    timeout,
		onChange:   cfg.OnChange,
		phase:      PhaseIdle,
		categories: taxonomy.DefaultCategories(),
	}
}

// UpdateLocation replaces the session location and runs station resolution
// and category personalization for it. When a newer update arrives while
// this one's lookups are in flight, the stale results are discarded and the
// state reflects the newest location only.
func (c *Coordinator) UpdateLocation(ctx context.Context, loc Location) Snapshot {
	if loc.Name == "" {
		loc.Name = UnknownLocationName
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	l := loc
	c.location = &l
	c.station = nil
	c.phase = PhaseLocatingStation
	c.reason = ReasonNone
	c.recoverable = false
	c.lastError = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.logger.Debug().
		Uint64("generation", gen).
		Float64("lat", loc.Latitude).
		Float64("lon", loc.Longitude).
		Str("name", loc.Name).
		Msg("location updated, resolving nearest station")

	return c.resolve(ctx, gen, loc)
}

// resolve runs the LocatingStation and PersonalizingCategories phases for
// one location generation.
func (c *Coordinator) resolve(ctx context.Context, gen uint64, loc Location) Snapshot {
	lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
	answer, err := c.backend.NearestStation(lookupCtx, loc.Latitude, loc.Longitude)
	cancel()

	c.mu.Lock()
	if gen != c.generation {
		// A newer location superseded this lookup.
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug().Uint64("generation", gen).Msg("discarding stale station lookup")
		return snap
	}

	if err != nil {
		// Recoverable: the user keeps the default categories, but confirm
		// stays blocked until a lookup succeeds.
		c.phase = PhaseErrored
		c.reason = ReasonStationLookupFailed
		c.recoverable = true
		c.lastError = "could not determine the nearest police station"
		c.categories = taxonomy.DefaultCategories()
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.publish(snap)

		c.logger.Warn().Err(err).
			Uint64("generation", gen).
			Msg("nearest-station lookup failed, falling back to default categories")
		return snap
	}

	c.station = answer
	c.phase = PhasePersonalizingCategories
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.logger.Debug().
		Str("station", answer.Name).
		Str("divcode", answer.DivisionCode).
		Float64("distance_km", answer.TravelDistanceKm).
		Msg("nearest station resolved")

	crimesCtx, cancel := context.WithTimeout(ctx, c.timeout)
	names, err := c.backend.TopCrimes(crimesCtx, answer.Name, answer.DivisionCode)
	cancel()

	c.mu.Lock()
	if gen != c.generation {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug().Uint64("generation", gen).Msg("discarding stale personalization result")
		return snap
	}

	if err != nil {
		// Personalization never blocks reporting; defaults are fine.
		c.categories = taxonomy.DefaultCategories()
		c.logger.Warn().Err(err).
			Str("station", answer.Name).
			Msg("top-crimes personalization failed, using default categories")
	} else {
		c.categories = taxonomy.Personalize(names)
	}
	c.phase = PhaseAwaitingSelection
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	return snap
}

// SelectCategory records the user's category choice. Selection is rejected
// while a submission attempt is in flight or after completion.
func (c *Coordinator) SelectCategory(id string) (Snapshot, error) {
	cat, ok := taxonomy.FindByID(id)
	if !ok {
		return c.Snapshot(), &Error{
			Op:      "select-category",
			Message: fmt.Sprintf("unknown category %q", id),
			Err:     ErrNotFound,
		}
	}

	c.mu.Lock()
	if c.phase == PhaseSubmitting || c.phase == PhaseNotifying || c.phase == PhaseCompleted {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, &Error{
			Op:      "select-category",
			Message: "selection is closed for this attempt",
			Err:     ErrBusy,
		}
	}
	c.selected = &cat
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	return snap, nil
}

// Confirm runs the submission attempt: reporter identity, report submission,
// then notification dispatch, strictly in that order. A confirm while an
// attempt is already in flight is a no-op, and Completed is terminal for the
// attempt; a new report requires Reset. After a failed attempt a fresh
// confirm retries from the Submitting phase.
func (c *Coordinator) Confirm(ctx context.Context, token string) (Snapshot, error) {
	c.mu.Lock()
	if c.phase == PhaseSubmitting || c.phase == PhaseNotifying {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, &Error{
			Op:      "confirm",
			Message: "a submission is already in progress",
			Err:     ErrBusy,
		}
	}
	if c.phase == PhaseCompleted {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, &Error{
			Op:      "confirm",
			Message: "this report was already submitted, start a new one",
			Err:     ErrValidation,
		}
	}

	if err := c.submittableLocked(); err != nil {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, err
	}

	loc := *c.location
	station := *c.station
	selected := *c.selected
	c.phase = PhaseSubmitting
	c.reason = ReasonNone
	c.recoverable = false
	c.lastError = ""
	c.notifyWarning = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	emailCtx, cancel := context.WithTimeout(ctx, c.timeout)
	email, err := c.backend.ReporterEmail(emailCtx, token)
	cancel()
	if err != nil {
		if IsAuth(err) {
			return c.failAttempt(ReasonAuthRequired, "session expired, please log in again", err), err
		}
		return c.failAttempt(c.submitReason(err), "could not verify reporter identity", err), err
	}

	crimeReport := CrimeReport{
		CrimeType:     selected.Title,
		LocationName:  loc.Name,
		ReporterEmail: email,
		Latitude:      loc.Latitude,
		Longitude:     loc.Longitude,
		PoliceStation: station.Name,
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.backend.SubmitReport(submitCtx, token, crimeReport)
	cancel()
	if err != nil {
		if IsAuth(err) {
			return c.failAttempt(ReasonAuthRequired, "session expired, please log in again", err), err
		}
		return c.failAttempt(c.submitReason(err), "report submission failed", err), err
	}

	c.logger.Info().
		Str("crime_type", crimeReport.CrimeType).
		Str("station", crimeReport.PoliceStation).
		Msg("crime report accepted")

	c.mu.Lock()
	c.phase = PhaseNotifying
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	// Notification is best-effort and never rolls back an accepted report.
	divcode := station.DivisionCode
	if divcode == "" {
		divcode = UnknownDivisionCode
	}
	message := c.notificationMessage(crimeReport)

	smsCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.backend.SendSMS(smsCtx, divcode, message)
	cancel()

	c.mu.Lock()
	if err != nil {
		c.notifyWarning = "the station notification could not be delivered; the report itself was accepted"
		c.logger.Warn().Err(err).
			Str("divcode", divcode).
			Msg("notification dispatch failed after accepted submission")
	}
	c.phase = PhaseCompleted
	c.completedAt = c.clock.Now()
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	return snap, nil
}

// Reset returns the pipeline to Idle for a new attempt. The generation
// counter keeps increasing so in-flight lookups from before the reset are
// discarded.
func (c *Coordinator) Reset() Snapshot {
	c.mu.Lock()
	c.generation++
	c.phase = PhaseIdle
	c.location = nil
	c.station = nil
	c.categories = taxonomy.DefaultCategories()
	c.selected = nil
	c.reason = ReasonNone
	c.recoverable = false
	c.lastError = ""
	c.notifyWarning = ""
	c.completedAt = time.Time{}
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	return snap
}

// Snapshot returns a copy of the current pipeline state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// submittableLocked enforces the submittability invariant. Caller holds mu.
func (c *Coordinator) submittableLocked() error {
	switch {
	case c.location == nil:
		return &Error{Op: "confirm", Message: "no location selected", Err: ErrValidation}
	case !c.location.Known():
		return &Error{Op: "confirm", Message: "location is unknown, pick a point on the map", Err: ErrValidation}
	case c.station == nil:
		return &Error{Op: "confirm", Message: "nearest police station is not resolved yet", Err: ErrValidation}
	case c.selected == nil:
		return &Error{Op: "confirm", Message: "no crime category selected", Err: ErrNoSelection}
	default:
		return nil
	}
}

// failAttempt marks the current submission attempt as failed.
func (c *Coordinator) failAttempt(reason ErrorReason, message string, err error) Snapshot {
	c.mu.Lock()
	c.phase = PhaseErrored
	c.reason = reason
	// Every failed attempt is retryable by re-confirming (or, for auth,
	// re-authenticating first).
	c.recoverable = true
	c.lastError = message
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	c.logger.Error().Err(err).
		Str("reason", string(reason)).
		Msg("submission attempt failed")
	return snap
}

func (c *Coordinator) submitReason(err error) ErrorReason {
	if IsTimeout(err) {
		return ReasonTimeout
	}
	return ReasonSubmissionFailed
}

// notificationMessage renders the SMS body. The content embeds the effective
// station and category, which is why dispatch is ordered strictly after the
// submission acknowledgment.
func (c *Coordinator) notificationMessage(r CrimeReport) string {
	return fmt.Sprintf(
		"Crime Report Notification\n"+
			"-------------------------\n"+
			"Type: %s\n"+
			"Location: %s\n"+
			"Coordinates: %v, %v\n"+
			"Reporter Email: %s\n"+
			"Time: %s",
		r.CrimeType, r.LocationName, r.Latitude, r.Longitude, r.ReporterEmail,
		c.clock.Now().Format("1/2/2006, 3:04:05 PM"),
	)
}

// snapshotLocked copies the state. Caller holds mu.
func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Phase:         c.phase,
		Generation:    c.generation,
		Reason:        c.reason,
		Recoverable:   c.recoverable,
		LastError:     c.lastError,
		NotifyWarning: c.notifyWarning,
		CompletedAt:   c.completedAt,
	}
	if c.location != nil {
		l := *c.location
		snap.Location = &l
	}
	if c.station != nil {
		s := *c.station
		snap.Station = &s
	}
	if c.selected != nil {
		sel := *c.selected
		snap.Selected = &sel
	}
	snap.Categories = make([]taxonomy.Category, len(c.categories))
	copy(snap.Categories, c.categories)
	return snap
}

func (c *Coordinator) publish(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}
