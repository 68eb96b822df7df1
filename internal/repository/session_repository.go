package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain"
	sessionDomain "github.com/kbdon7718-ui/fleet-dashboard/internal/domain/session"
	"github.com/kbdon7718-ui/fleet-dashboard/internal/domain/tracking"
)

// ViewSessionModel is the GORM model for the view_sessions table.
type ViewSessionModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	MountID      string     `gorm:"type:varchar(64);not null;index"`
	MapSDK       bool       `gorm:"not null;default:false"`
	Geolocation  bool       `gorm:"not null;default:false"`
	Status       string     `gorm:"type:varchar(20);not null;default:'active';index"`
	Phase        string     `gorm:"type:varchar(20);not null"`
	ErrorMessage string     `gorm:"type:varchar(255)"`
	FixCount     int64      `gorm:"not null;default:0"`
	StartedAt    time.Time  `gorm:"type:timestamptz;not null"`
	EndedAt      *time.Time `gorm:"type:timestamptz"`
	Version      int64      `gorm:"not null;default:1"`
	CreatedAt    time.Time  `gorm:"type:timestamptz;not null"`
	UpdatedAt    time.Time  `gorm:"type:timestamptz;not null"`
}

// TableName overrides the default table name.
func (ViewSessionModel) TableName() string {
	return "view_sessions"
}

// GORMViewSessionRepository implements session.Repository using GORM.
type GORMViewSessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGORMViewSessionRepository creates a new GORM-based repository.
func NewGORMViewSessionRepository(db *gorm.DB, logger *zap.Logger) *GORMViewSessionRepository {
	return &GORMViewSessionRepository{
		db:     db,
		logger: logger,
	}
}

// Save persists a new session.
func (r *GORMViewSessionRepository) Save(ctx context.Context, s *sessionDomain.ViewSession) error {
	model := toModel(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save view session: %w", err)
	}
	return nil
}

// Update persists changes to an existing session. The caller increments the
// version first; the row is only written if it still holds the previous one.
func (r *GORMViewSessionRepository) Update(ctx context.Context, s *sessionDomain.ViewSession) error {
	model := toModel(s)
	result := r.db.WithContext(ctx).
		Model(&ViewSessionModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version-1).
		Select("*").
		Updates(model)

	if result.Error != nil {
		return fmt.Errorf("failed to update view session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// FindByID retrieves a session by its unique identifier.
func (r *GORMViewSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*sessionDomain.ViewSession, error) {
	var model ViewSessionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find view session by id: %w", err)
	}
	return toDomain(&model), nil
}

// ListActive returns sessions that have not been closed, newest first.
func (r *GORMViewSessionRepository) ListActive(ctx context.Context) ([]*sessionDomain.ViewSession, error) {
	var models []ViewSessionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(sessionDomain.StatusActive)).
		Order("started_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list active view sessions: %w", err)
	}

	sessions := make([]*sessionDomain.ViewSession, len(models))
	for i := range models {
		sessions[i] = toDomain(&models[i])
	}
	return sessions, nil
}

// CloseStale marks sessions left active by a previous process as closed.
func (r *GORMViewSessionRepository) CloseStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&ViewSessionModel{}).
		Where("status = ?", string(sessionDomain.StatusActive)).
		Updates(map[string]interface{}{
			"status":     string(sessionDomain.StatusClosed),
			"ended_at":   now,
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to close stale view sessions: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		r.logger.Info("closed stale view sessions", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// toDomain converts a GORM model to a domain ViewSession.
func toDomain(model *ViewSessionModel) *sessionDomain.ViewSession {
	return sessionDomain.Reconstruct(
		model.ID,
		model.MountID,
		model.MapSDK,
		model.Geolocation,
		sessionDomain.Status(model.Status),
		tracking.Phase(model.Phase),
		model.ErrorMessage,
		model.FixCount,
		model.StartedAt,
		model.EndedAt,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

// toModel converts a domain ViewSession to a GORM model.
func toModel(s *sessionDomain.ViewSession) *ViewSessionModel {
	return &ViewSessionModel{
		ID:           s.ID(),
		MountID:      s.MountID(),
		MapSDK:       s.MapSDK(),
		Geolocation:  s.Geolocation(),
		Status:       string(s.Status()),
		Phase:        string(s.Phase()),
		ErrorMessage: s.ErrorMessage(),
		FixCount:     s.FixCount(),
		StartedAt:    s.StartedAt(),
		EndedAt:      s.EndedAt(),
		Version:      s.Version(),
		CreatedAt:    s.CreatedAt(),
		UpdatedAt:    s.UpdatedAt(),
	}
}
