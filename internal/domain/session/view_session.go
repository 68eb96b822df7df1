package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

// Status represents the lifecycle of a mounted view.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// ViewSession records one mount of the live map view: which capabilities the
// page had and how the tracker ended. It never holds positions.
type ViewSession struct {
	id           uuid.UUID
	mountID      string
	mapSDK       bool
	geolocation  bool
	status       Status
	phase        tracking.Phase
	errorMessage string
	fixCount     int64
	startedAt    time.Time
	endedAt      *time.Time
	version      int64
	createdAt    time.Time
	updatedAt    time.Time
}

// NewViewSession creates an active session for a mount point.
func NewViewSession(mountID string, mapSDK, geolocation bool) *ViewSession {
	now := time.Now().UTC()
	return &ViewSession{
		id:          uuid.New(),
		mountID:     mountID,
		mapSDK:      mapSDK,
		geolocation: geolocation,
		status:      StatusActive,
		phase:       tracking.PhaseUninitialized,
		startedAt:   now,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}
}

// --- Getters ---

func (s *ViewSession) ID() uuid.UUID         { return s.id }
func (s *ViewSession) MountID() string       { return s.mountID }
func (s *ViewSession) MapSDK() bool          { return s.mapSDK }
func (s *ViewSession) Geolocation() bool     { return s.geolocation }
func (s *ViewSession) Status() Status        { return s.status }
func (s *ViewSession) Phase() tracking.Phase { return s.phase }
func (s *ViewSession) ErrorMessage() string  { return s.errorMessage }
func (s *ViewSession) FixCount() int64       { return s.fixCount }
func (s *ViewSession) StartedAt() time.Time  { return s.startedAt }
func (s *ViewSession) EndedAt() *time.Time   { return s.endedAt }
func (s *ViewSession) Version() int64        { return s.version }
func (s *ViewSession) CreatedAt() time.Time  { return s.createdAt }
func (s *ViewSession) UpdatedAt() time.Time  { return s.updatedAt }
func (s *ViewSession) IsActive() bool        { return s.status == StatusActive }

// --- Behavior ---

// RecordState stores the latest tracker state.
func (s *ViewSession) RecordState(st tracking.State) {
	s.phase = st.Phase
	s.errorMessage = st.Message
	s.updatedAt = time.Now().UTC()
}

// Close ends the session with the final tracker state and fix count.
func (s *ViewSession) Close(final tracking.State, fixCount int64) error {
	if s.status != StatusActive {
		return domain.NewInvalidStateError(string(s.status), string(StatusClosed))
	}
	now := time.Now().UTC()
	s.status = StatusClosed
	s.phase = final.Phase
	s.errorMessage = final.Message
	s.fixCount = fixCount
	s.endedAt = &now
	s.updatedAt = now
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (s *ViewSession) IncrementVersion() {
	s.version++
	s.updatedAt = time.Now().UTC()
}

// Reconstruct creates a ViewSession from persisted data (used by repositories).
func Reconstruct(
	id uuid.UUID,
	mountID string,
	mapSDK, geolocation bool,
	status Status,
	phase tracking.Phase,
	errorMessage string,
	fixCount int64,
	startedAt time.Time,
	endedAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *ViewSession {
	return &ViewSession{
		id:           id,
		mountID:      mountID,
		mapSDK:       mapSDK,
		geolocation:  geolocation,
		status:       status,
		phase:        phase,
		errorMessage: errorMessage,
		fixCount:     fixCount,
		startedAt:    startedAt,
		endedAt:      endedAt,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}
