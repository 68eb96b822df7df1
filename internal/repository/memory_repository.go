package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain"
	sessionDomain "github.com/kbdon7718-ui/fleet-dashboard/internal/domain/session"
)

// MemoryViewSessionRepository keeps sessions in process memory. It is used
// when no database is configured.
type MemoryViewSessionRepository struct {
	mu     sync.RWMutex
	models map[uuid.UUID]ViewSessionModel
}

// NewMemoryViewSessionRepository creates an empty in-memory repository.
func NewMemoryViewSessionRepository() *MemoryViewSessionRepository {
	return &MemoryViewSessionRepository{models: make(map[uuid.UUID]ViewSessionModel)}
}

// Save persists a new session.
func (r *MemoryViewSessionRepository) Save(_ context.Context, s *sessionDomain.ViewSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[s.ID()]; ok {
		return domain.ErrConflict
	}
	r.models[s.ID()] = *toModel(s)
	return nil
}

// Update persists changes to an existing session with the same version
// check as the GORM repository.
func (r *MemoryViewSessionRepository) Update(_ context.Context, s *sessionDomain.ViewSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.models[s.ID()]
	if !ok || current.Version != s.Version()-1 {
		return domain.ErrOptimisticLock
	}
	r.models[s.ID()] = *toModel(s)
	return nil
}

// FindByID retrieves a session by its unique identifier.
func (r *MemoryViewSessionRepository) FindByID(_ context.Context, id uuid.UUID) (*sessionDomain.ViewSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return toDomain(&m), nil
}

// ListActive returns sessions that have not been closed, newest first.
func (r *MemoryViewSessionRepository) ListActive(_ context.Context) ([]*sessionDomain.ViewSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*sessionDomain.ViewSession
	for _, m := range r.models {
		if m.Status == string(sessionDomain.StatusActive) {
			m := m
			out = append(out, toDomain(&m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt().After(out[j].StartedAt())
	})
	return out, nil
}
