package report

import "errors"

// Sentinel errors for pipeline and backend operations. The backend client
// wraps its transport failures in these so the coordinator can apply the
// propagation policy without inspecting HTTP details.
var (
	// ErrNetwork indicates the backend was unreachable or answered 5xx.
	ErrNetwork = errors.New("backend unavailable")
	// ErrAuth indicates a missing, invalid or expired session token.
	ErrAuth = errors.New("authentication required")
	// ErrNotFound indicates the backend had no answer (no station, no
	// categories) for a well-formed request.
	ErrNotFound = errors.New("not found")
	// ErrTimeout indicates the bounded request deadline expired.
	ErrTimeout = errors.New("request timed out")
	// ErrValidation indicates the submittability invariant is unmet.
	ErrValidation = errors.New("report not submittable")
	// ErrBusy indicates a confirm arrived while a submission attempt was
	// already in flight; the duplicate is a no-op.
	ErrBusy = errors.New("submission already in flight")
	// ErrNoSelection indicates a selection-dependent operation ran before
	// any category was selected.
	ErrNoSelection = errors.New("no category selected")
)

// Error is a structured pipeline error.
type Error struct {
	// Op is the operation that failed, e.g. "nearest-station".
	Op string
	// Message is a short human-readable reason, safe to show the user.
	Message string
	// Err is the underlying sentinel or transport error.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
