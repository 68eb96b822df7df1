package tracking

import (
	"strconv"
	"strings"
)

// FailureCause names why a position source could not deliver a fix.
type FailureCause string

const (
	CausePermissionDenied    FailureCause = "PERMISSION_DENIED"
	CausePositionUnavailable FailureCause = "POSITION_UNAVAILABLE"
	CauseTimeout             FailureCause = "TIMEOUT"
	CauseUnknown             FailureCause = "UNKNOWN"
)

// ParseFailureCause accepts either a cause name or the browser geolocation
// numeric code (1, 2, 3). Anything else maps to CauseUnknown.
func ParseFailureCause(raw string) FailureCause {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if code, err := strconv.Atoi(s); err == nil {
		switch code {
		case 1:
			return CausePermissionDenied
		case 2:
			return CausePositionUnavailable
		case 3:
			return CauseTimeout
		}
		return CauseUnknown
	}
	switch FailureCause(s) {
	case CausePermissionDenied, CausePositionUnavailable, CauseTimeout:
		return FailureCause(s)
	}
	return CauseUnknown
}

// Failure is a failure event emitted by a position source.
type Failure struct {
	Cause  FailureCause `json:"cause"`
	Detail string       `json:"detail,omitempty"`
}

func (f Failure) Error() string {
	if f.Detail == "" {
		return "position source failure: " + string(f.Cause)
	}
	return "position source failure: " + string(f.Cause) + ": " + f.Detail
}

// EventKind tags an Event.
type EventKind string

const (
	EventFix     EventKind = "fix"
	EventFailure EventKind = "failure"
)

// Event is one item of a position stream: either a fix or a failure.
type Event struct {
	Kind     EventKind
	Position GeoPosition
	Failure  Failure
}

// FixEvent wraps a position in an Event.
func FixEvent(p GeoPosition) Event {
	return Event{Kind: EventFix, Position: p}
}

// FailureEvent wraps a failure in an Event.
func FailureEvent(f Failure) Event {
	return Event{Kind: EventFailure, Failure: f}
}
