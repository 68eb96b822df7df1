package tracking

// Phase is the coarse lifecycle position of a tracker.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseTracking      Phase = "tracking"
	PhaseError         Phase = "error"
)

// ErrorKind classifies why a tracker entered the error phase.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindCapabilityMissing ErrorKind = "capability_missing"
	ErrorKindSourceFailure     ErrorKind = "source_failure"
)

// User-facing messages rendered by the dashboard.
const (
	MessageSDKNotLoaded   = "Mappls SDK not loaded"
	MessageGPSUnavailable = "Unable to fetch GPS location"
)

// State is the read-only projection of a tracker exposed to the view layer.
type State struct {
	Phase   Phase        `json:"phase"`
	Kind    ErrorKind    `json:"kind,omitempty"`
	Message string       `json:"message,omitempty"`
	Cause   FailureCause `json:"cause,omitempty"`
}

// Uninitialized is the state of a tracker that has not yet subscribed.
func Uninitialized() State {
	return State{Phase: PhaseUninitialized}
}

// Tracking is the state of a tracker bound to a live subscription.
func Tracking() State {
	return State{Phase: PhaseTracking}
}

// SDKNotLoaded is the terminal state entered when the map surface is absent.
func SDKNotLoaded() State {
	return State{
		Phase:   PhaseError,
		Kind:    ErrorKindCapabilityMissing,
		Message: MessageSDKNotLoaded,
	}
}

// SourceFailed is the terminal state entered when the position source reports a failure.
func SourceFailed(cause FailureCause) State {
	return State{
		Phase:   PhaseError,
		Kind:    ErrorKindSourceFailure,
		Message: MessageGPSUnavailable,
		Cause:   cause,
	}
}

// IsError returns true if the tracker is in the error phase.
func (s State) IsError() bool { return s.Phase == PhaseError }

// IsTerminal returns true if no transition can leave this state until remount.
func (s State) IsTerminal() bool { return s.IsError() }
