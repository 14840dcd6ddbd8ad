package report

// ViewState is the presentation-neutral projection of the pipeline phase for
// the report confirmation modal.
type ViewState string

const (
	ViewHidden         ViewState = "HIDDEN"
	ViewLoading        ViewState = "LOADING"
	ViewReadyToConfirm ViewState = "READY_TO_CONFIRM"
	ViewSubmitting     ViewState = "SUBMITTING"
	ViewSuccess        ViewState = "SUCCESS"
	ViewFailure        ViewState = "FAILURE"
)

// View is what the modal renders: a state tag plus the human-readable
// strings that go with it.
type View struct {
	State ViewState `json:"state"`

	// Reason is set for Failure states.
	Reason string `json:"reason,omitempty"`

	// Warning carries the soft notification warning shown alongside a
	// Success state.
	Warning string `json:"warning,omitempty"`
}

// ProjectView derives the modal view-state from a pipeline snapshot. It is a
// pure function of the snapshot and holds no logic of its own beyond the
// mapping; ReadyToConfirm mirrors the submittability invariant exactly.
func ProjectView(s Snapshot) View {
	switch s.Phase {
	case PhaseIdle:
		return View{State: ViewHidden}

	case PhaseLocatingStation, PhasePersonalizingCategories:
		if s.Selected == nil {
			return View{State: ViewHidden}
		}
		return View{State: ViewLoading}

	case PhaseAwaitingSelection:
		if s.Selected == nil {
			return View{State: ViewHidden}
		}
		if readyToConfirm(s) {
			return View{State: ViewReadyToConfirm}
		}
		return View{State: ViewLoading}

	case PhaseSubmitting, PhaseNotifying:
		return View{State: ViewSubmitting}

	case PhaseCompleted:
		return View{State: ViewSuccess, Warning: s.NotifyWarning}

	case PhaseErrored:
		return View{State: ViewFailure, Reason: failureReason(s)}

	default:
		return View{State: ViewHidden}
	}
}

// readyToConfirm requires location, station and selection to all be
// concretely present, with a known location name.
func readyToConfirm(s Snapshot) bool {
	return s.Location != nil &&
		s.Location.Known() &&
		s.Station != nil &&
		s.Selected != nil
}

func failureReason(s Snapshot) string {
	if s.LastError != "" {
		return s.LastError
	}
	switch s.Reason {
	case ReasonStationLookupFailed:
		return "could not determine the nearest police station"
	case ReasonSubmissionFailed:
		return "report submission failed"
	case ReasonAuthRequired:
		return "session expired, please log in again"
	case ReasonTimeout:
		return "the request timed out"
	default:
		return "something went wrong"
	}
}
