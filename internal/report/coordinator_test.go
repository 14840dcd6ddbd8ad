package report

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrolpoint/patrolpoint/internal/stations"
)

// fakeBackend implements Backend with per-call hooks and an ordered call
// log, so tests can assert both outcomes and sequencing.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	nearestFn func(ctx context.Context, lat, lon float64) (*stations.NearestAnswer, error)
	crimesFn  func(ctx context.Context, stationName, divisionCode string) ([]string, error)
	emailFn   func(ctx context.Context, token string) (string, error)
	submitFn  func(ctx context.Context, token string, r CrimeReport) error
	smsFn     func(ctx context.Context, divisionCode, message string) error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nearestFn: func(context.Context, float64, float64) (*stations.NearestAnswer, error) {
			return &stations.NearestAnswer{
				Name:             "Bedok NPC",
				TravelDistanceKm: 1.2,
				TravelTimeMin:    5,
				DivisionCode:     "D1",
			}, nil
		},
		crimesFn: func(context.Context, string, string) ([]string, error) {
			return []string{"Robbery"}, nil
		},
		emailFn: func(context.Context, string) (string, error) {
			return "reporter@example.com", nil
		},
		submitFn: func(context.Context, string, CrimeReport) error { return nil },
		smsFn:    func(context.Context, string, string) error { return nil },
	}
}

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) NearestStation(ctx context.Context, lat, lon float64) (*stations.NearestAnswer, error) {
	f.record("nearest")
	return f.nearestFn(ctx, lat, lon)
}

func (f *fakeBackend) TopCrimes(ctx context.Context, stationName, divisionCode string) ([]string, error) {
	f.record("crimes")
	return f.crimesFn(ctx, stationName, divisionCode)
}

func (f *fakeBackend) ReporterEmail(ctx context.Context, token string) (string, error) {
	f.record("email")
	return f.emailFn(ctx, token)
}

func (f *fakeBackend) SubmitReport(ctx context.Context, token string, r CrimeReport) error {
	f.record("submit")
	return f.submitFn(ctx, token, r)
}

func (f *fakeBackend) SendSMS(ctx context.Context, divisionCode, message string) error {
	f.record("sms")
	return f.smsFn(ctx, divisionCode, message)
}

func newTestCoordinator(b Backend) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		Backend: b,
		Logger:  zerolog.Nop(),
		Clock:   clockwork.NewFakeClock(),
	})
}

func bedokLocation() Location {
	return Location{Latitude: 1.35, Longitude: 103.82, Name: "Bedok Ave 1"}
}

func categoryTitles(snap Snapshot) []string {
	titles := make([]string, 0, len(snap.Categories))
	for _, c := range snap.Categories {
		titles = append(titles, c.Title)
	}
	return titles
}

func TestCoordinator_EndToEnd(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(backend)

	snap := c.UpdateLocation(context.Background(), bedokLocation())
	require.Equal(t, PhaseAwaitingSelection, snap.Phase)
	require.NotNil(t, snap.Station)
	assert.Equal(t, "Bedok NPC", snap.Station.Name)
	assert.Equal(t, []string{"Robbery", "Others"}, categoryTitles(snap))

	snap, err := c.SelectCategory("3") // Robbery
	require.NoError(t, err)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, "Robbery", snap.Selected.Title)
	assert.Equal(t, ViewReadyToConfirm, ProjectView(snap).State)

	snap, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.Empty(t, snap.NotifyWarning)
	assert.Equal(t, ViewSuccess, ProjectView(snap).State)

	// Strict ordering: notification goes out only after the submission is
	// acknowledged.
	assert.Equal(t, []string{"nearest", "crimes", "email", "submit", "sms"}, backend.callLog())
}

func TestCoordinator_SubmittedReportContents(t *testing.T) {
	backend := newFakeBackend()
	var submitted CrimeReport
	backend.submitFn = func(_ context.Context, token string, r CrimeReport) error {
		assert.Equal(t, "token-123", token)
		submitted = r
		return nil
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)
	_, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)

	assert.Equal(t, CrimeReport{
		CrimeType:     "Robbery",
		LocationName:  "Bedok Ave 1",
		ReporterEmail: "reporter@example.com",
		Latitude:      1.35,
		Longitude:     103.82,
		PoliceStation: "Bedok NPC",
	}, submitted)
}

func TestCoordinator_NotificationContent(t *testing.T) {
	backend := newFakeBackend()
	var gotDivcode, gotMessage string
	backend.smsFn = func(_ context.Context, divisionCode, message string) error {
		gotDivcode = divisionCode
		gotMessage = message
		return nil
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)
	_, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)

	assert.Equal(t, "D1", gotDivcode)
	assert.Contains(t, gotMessage, "Crime Report Notification")
	assert.Contains(t, gotMessage, "Type: Robbery")
	assert.Contains(t, gotMessage, "Location: Bedok Ave 1")
	assert.Contains(t, gotMessage, "Reporter Email: reporter@example.com")
}

func TestCoordinator_NotificationDivcodeFallback(t *testing.T) {
	backend := newFakeBackend()
	backend.nearestFn = func(context.Context, float64, float64) (*stations.NearestAnswer, error) {
		return &stations.NearestAnswer{Name: "Bedok NPC"}, nil // no division code
	}
	var gotDivcode string
	backend.smsFn = func(_ context.Context, divisionCode, _ string) error {
		gotDivcode = divisionCode
		return nil
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)
	_, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)

	assert.Equal(t, UnknownDivisionCode, gotDivcode)
}

func TestCoordinator_StationLookupFailureBlocksConfirm(t *testing.T) {
	backend := newFakeBackend()
	backend.nearestFn = func(context.Context, float64, float64) (*stations.NearestAnswer, error) {
		return nil, &Error{Op: "nearest-station", Message: "backend unreachable", Err: ErrNetwork}
	}

	c := newTestCoordinator(backend)
	snap := c.UpdateLocation(context.Background(), bedokLocation())

	require.Equal(t, PhaseErrored, snap.Phase)
	assert.Equal(t, ReasonStationLookupFailed, snap.Reason)
	assert.True(t, snap.Recoverable)
	// Categories fall back to the defaults so the user can keep going.
	assert.Equal(t, []string{
		"Outrage of Modesty", "Housebreaking", "Theft of Motor Vehicle", "Others",
	}, categoryTitles(snap))

	// Selection is still accepted in the recoverable error state.
	_, err := c.SelectCategory("6")
	require.NoError(t, err)

	// But confirm is blocked: the nearest station is unresolved.
	_, err = c.Confirm(context.Background(), "token-123")
	require.ErrorIs(t, err, ErrValidation)

	// And no submission traffic was issued.
	assert.Equal(t, []string{"nearest"}, backend.callLog())
}

func TestCoordinator_PersonalizationFailureFallsBack(t *testing.T) {
	backend := newFakeBackend()
	backend.crimesFn = func(context.Context, string, string) ([]string, error) {
		return nil, &Error{Op: "top-crimes", Message: "backend unreachable", Err: ErrNetwork}
	}

	c := newTestCoordinator(backend)
	snap := c.UpdateLocation(context.Background(), bedokLocation())

	// Personalization failure never blocks the user.
	require.Equal(t, PhaseAwaitingSelection, snap.Phase)
	assert.Equal(t, []string{
		"Outrage of Modesty", "Housebreaking", "Theft of Motor Vehicle", "Others",
	}, categoryTitles(snap))
	require.NotNil(t, snap.Station)
}

func TestCoordinator_UnknownLocationBlocksConfirm(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(backend)

	c.UpdateLocation(context.Background(), Location{Latitude: 1.35, Longitude: 103.82})
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), "token-123")
	require.ErrorIs(t, err, ErrValidation)

	// Station resolution ran, but nothing from the submission leg.
	assert.Equal(t, []string{"nearest", "crimes"}, backend.callLog())
}

func TestCoordinator_ConfirmWithoutSelection(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(backend)

	c.UpdateLocation(context.Background(), bedokLocation())

	_, err := c.Confirm(context.Background(), "token-123")
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestCoordinator_ReentrantConfirmIsNoOp(t *testing.T) {
	backend := newFakeBackend()
	release := make(chan struct{})
	entered := make(chan struct{})
	backend.submitFn = func(context.Context, string, CrimeReport) error {
		close(entered)
		<-release
		return nil
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	done := make(chan Snapshot, 1)
	go func() {
		snap, _ := c.Confirm(context.Background(), "token-123")
		done <- snap
	}()

	<-entered

	// Second confirm while the first is in flight: rejected, no duplicate.
	_, err = c.Confirm(context.Background(), "token-123")
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	snap := <-done
	assert.Equal(t, PhaseCompleted, snap.Phase)

	submits := 0
	for _, call := range backend.callLog() {
		if call == "submit" {
			submits++
		}
	}
	assert.Equal(t, 1, submits, "exactly one submission must be issued")
}

func TestCoordinator_ConfirmAfterCompletedIsRejected(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(backend)

	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	snap, err := c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, snap.Phase)

	// Completed is terminal for the attempt; only Reset opens a new one.
	snap, err = c.Confirm(context.Background(), "token-123")
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, PhaseCompleted, snap.Phase)

	counts := map[string]int{}
	for _, call := range backend.callLog() {
		counts[call]++
	}
	assert.Equal(t, 1, counts["submit"], "a completed report must never be re-submitted")
	assert.Equal(t, 1, counts["sms"], "the station must be notified exactly once")

	// After Reset a full fresh attempt goes through again.
	c.Reset()
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err = c.SelectCategory("3")
	require.NoError(t, err)
	snap, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, snap.Phase)
}

func TestCoordinator_SubmissionFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.submitFn = func(context.Context, string, CrimeReport) error {
		return &Error{Op: "submit-report", Message: "backend unavailable", Err: ErrNetwork}
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), "token-123")
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, PhaseErrored, snap.Phase)
	assert.Equal(t, ReasonSubmissionFailed, snap.Reason)
	assert.Equal(t, ViewFailure, ProjectView(snap).State)

	// No automatic retry, no notification for a failed submission.
	for _, call := range backend.callLog() {
		assert.NotEqual(t, "sms", call)
	}

	// A fresh confirm retries from the Submitting phase.
	backend.submitFn = func(context.Context, string, CrimeReport) error { return nil }
	snap, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)
	assert.Equal(t, PhaseCompleted, snap.Phase)
}

func TestCoordinator_SubmissionTimeout(t *testing.T) {
	backend := newFakeBackend()
	backend.submitFn = func(context.Context, string, CrimeReport) error {
		return &Error{Op: "submit-report", Message: "deadline expired", Err: ErrTimeout}
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), "token-123")
	require.Error(t, err)
	assert.Equal(t, ReasonTimeout, c.Snapshot().Reason)
}

func TestCoordinator_AuthFailureAbortsAttempt(t *testing.T) {
	backend := newFakeBackend()
	backend.emailFn = func(context.Context, string) (string, error) {
		return "", &Error{Op: "reporter-email", Message: "token rejected", Err: ErrAuth}
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), "expired-token")
	require.ErrorIs(t, err, ErrAuth)

	snap := c.Snapshot()
	assert.Equal(t, ReasonAuthRequired, snap.Reason)

	// The submission itself never went out.
	for _, call := range backend.callLog() {
		assert.NotEqual(t, "submit", call)
	}
}

func TestCoordinator_NotificationFailureIsSoftWarning(t *testing.T) {
	backend := newFakeBackend()
	backend.smsFn = func(context.Context, string, string) error {
		return &Error{Op: "send-sms", Message: "gateway rejected", Err: ErrNetwork}
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)

	snap, err := c.Confirm(context.Background(), "token-123")
	require.NoError(t, err, "notification failure must not fail the submission")

	assert.Equal(t, PhaseCompleted, snap.Phase)
	assert.NotEmpty(t, snap.NotifyWarning)

	view := ProjectView(snap)
	assert.Equal(t, ViewSuccess, view.State)
	assert.NotEmpty(t, view.Warning)
}

func TestCoordinator_StaleLookupDiscarded(t *testing.T) {
	backend := newFakeBackend()
	firstLookup := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend.nearestFn = func(_ context.Context, lat, _ float64) (*stations.NearestAnswer, error) {
		if lat == 1.10 {
			once.Do(func() { close(firstLookup) })
			<-release
			return &stations.NearestAnswer{Name: "Stale NPC", DivisionCode: "OLD"}, nil
		}
		return &stations.NearestAnswer{Name: "Fresh NPC", DivisionCode: "NEW"}, nil
	}

	c := newTestCoordinator(backend)

	staleDone := make(chan Snapshot, 1)
	go func() {
		snap := c.UpdateLocation(context.Background(), Location{Latitude: 1.10, Longitude: 103.80, Name: "Old Spot"})
		staleDone <- snap
	}()

	<-firstLookup

	// A newer location arrives while the first lookup is still in flight.
	fresh := c.UpdateLocation(context.Background(), Location{Latitude: 1.20, Longitude: 103.90, Name: "New Spot"})
	require.Equal(t, PhaseAwaitingSelection, fresh.Phase)
	require.NotNil(t, fresh.Station)
	assert.Equal(t, "Fresh NPC", fresh.Station.Name)

	// Let the stale lookup finish: its result must be discarded.
	close(release)
	<-staleDone

	snap := c.Snapshot()
	require.NotNil(t, snap.Station)
	assert.Equal(t, "Fresh NPC", snap.Station.Name)
	require.NotNil(t, snap.Location)
	assert.Equal(t, "New Spot", snap.Location.Name)
}

func TestCoordinator_Reset(t *testing.T) {
	backend := newFakeBackend()
	c := newTestCoordinator(backend)

	c.UpdateLocation(context.Background(), bedokLocation())
	_, err := c.SelectCategory("3")
	require.NoError(t, err)
	_, err = c.Confirm(context.Background(), "token-123")
	require.NoError(t, err)

	snap := c.Reset()
	assert.Equal(t, PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Location)
	assert.Nil(t, snap.Station)
	assert.Nil(t, snap.Selected)
	assert.Empty(t, snap.NotifyWarning)
	assert.Equal(t, ViewHidden, ProjectView(snap).State)
}

func TestCoordinator_SelectUnknownCategory(t *testing.T) {
	c := newTestCoordinator(newFakeBackend())

	_, err := c.SelectCategory("99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCoordinator_OnChangePublishesTransitions(t *testing.T) {
	backend := newFakeBackend()

	var mu sync.Mutex
	var phases []Phase
	coordinator := NewCoordinator(CoordinatorConfig{
		Backend: backend,
		Logger:  zerolog.Nop(),
		Clock:   clockwork.NewFakeClock(),
		OnChange: func(s Snapshot) {
			mu.Lock()
			phases = append(phases, s.Phase)
			mu.Unlock()
		},
	})

	coordinator.UpdateLocation(context.Background(), bedokLocation())
	_, err := coordinator.SelectCategory("3")
	require.NoError(t, err)
	_, err = coordinator.Confirm(context.Background(), "token-123")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Phase{
		PhaseLocatingStation,
		PhasePersonalizingCategories,
		PhaseAwaitingSelection,
		PhaseAwaitingSelection, // selection
		PhaseSubmitting,
		PhaseNotifying,
		PhaseCompleted,
	}, phases)
}

func TestCoordinator_ErrorType(t *testing.T) {
	err := &Error{Op: "confirm", Message: "no location selected", Err: ErrValidation}
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "confirm: no location selected: report not submittable", err.Error())

	bare := &Error{Op: "confirm", Message: "nope"}
	assert.Equal(t, "confirm: nope", bare.Error())
}

func TestCoordinator_DefaultTimeoutApplied(t *testing.T) {
	backend := newFakeBackend()
	var gotDeadline bool
	backend.nearestFn = func(ctx context.Context, _, _ float64) (*stations.NearestAnswer, error) {
		_, gotDeadline = ctx.Deadline()
		return &stations.NearestAnswer{Name: "Bedok NPC", DivisionCode: "D1"}, nil
	}

	c := newTestCoordinator(backend)
	c.UpdateLocation(context.Background(), bedokLocation())

	assert.True(t, gotDeadline, "upstream calls must run under a bounded deadline")
}
