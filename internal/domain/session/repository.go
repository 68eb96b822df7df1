package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for ViewSession aggregates.
type Repository interface {
	// Save persists a new session.
	Save(ctx context.Context, s *ViewSession) error

	// Update persists changes to an existing session.
	Update(ctx context.Context, s *ViewSession) error

	// FindByID retrieves a session by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*ViewSession, error)

	// ListActive returns sessions that have not been closed, newest first.
	ListActive(ctx context.Context) ([]*ViewSession, error)
}
