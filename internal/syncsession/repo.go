package syncsession

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mverdugo-dev/tempora-backend/internal/repo"
	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/pagination"
)

// Repository exposes persistence helpers for sync sessions and details.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, session *models.SyncSession) error
	SaveCounters(ctx context.Context, session models.SyncSession) error
	AppendDetail(ctx context.Context, detail *models.SyncDetail) error
	FinishTerminal(ctx context.Context, session models.SyncSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error)
	List(ctx context.Context, params ListParams) ([]models.SyncSession, *pagination.Cursor, error)
	CountByStatus(ctx context.Context, status enums.SyncSessionStatus) (int64, error)
	CountRecentFailures(ctx context.Context, since time.Time) (int64, error)
	FindActive(ctx context.Context) (*models.SyncSession, error)
	FindStaleInProgress(ctx context.Context, startedBefore time.Time) ([]models.SyncSession, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a sync session repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

// ListParams filters the session list query.
type ListParams struct {
	Status        *enums.SyncSessionStatus
	Type          *enums.SyncType
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Limit         int
	Cursor        *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: repo.NewBase(tx)}
}

func (r *repositoryImpl) Create(ctx context.Context, session *models.SyncSession) error {
	return r.DB(ctx).Create(session).Error
}

// SaveCounters persists the counter columns of a running session. The status
// guard keeps a concurrent terminal transition from being overwritten.
func (r *repositoryImpl) SaveCounters(ctx context.Context, session models.SyncSession) error {
	result := r.DB(ctx).
		Model(&models.SyncSession{}).
		Where("id = ? AND status = ?", session.ID, enums.SyncStatusInProgress).
		Updates(map[string]any{
			"total_processed": session.TotalProcessed,
			"success_count":   session.SuccessCount,
			"error_count":     session.ErrorCount,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "session is no longer IN_PROGRESS").
			WithDetails(map[string]any{"session_id": session.ID.String()})
	}
	return nil
}

func (r *repositoryImpl) AppendDetail(ctx context.Context, detail *models.SyncDetail) error {
	return r.DB(ctx).Create(detail).Error
}

// FinishTerminal persists the IN_PROGRESS -> terminal transition. The
// conditional update makes the transition atomic: only one caller can move a
// session out of IN_PROGRESS.
func (r *repositoryImpl) FinishTerminal(ctx context.Context, session models.SyncSession) error {
	if !session.Status.IsTerminal() {
		return apperrors.New(apperrors.CodeInternal, "FinishTerminal requires a terminal session status")
	}
	result := r.DB(ctx).
		Model(&models.SyncSession{}).
		Where("id = ? AND status = ?", session.ID, enums.SyncStatusInProgress).
		Updates(map[string]any{
			"status":          session.Status,
			"completed_at":    session.CompletedAt,
			"total_processed": session.TotalProcessed,
			"success_count":   session.SuccessCount,
			"error_count":     session.ErrorCount,
			"error_details":   session.ErrorDetails,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "session already reached a terminal status").
			WithDetails(map[string]any{"session_id": session.ID.String()})
	}
	return nil
}

func (r *repositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncSession, error) {
	var session models.SyncSession
	err := r.DB(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		First(&session, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.CodeNotFound, "sync session not found").
				WithDetails(map[string]any{"session_id": id.String()})
		}
		return nil, err
	}
	return &session, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.SyncSession, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.DB(ctx).Model(&models.SyncSession{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.StartedAfter != nil {
		query = query.Where("started_at >= ?", *params.StartedAfter)
	}
	if params.StartedBefore != nil {
		query = query.Where("started_at <= ?", *params.StartedBefore)
	}
	if params.Cursor != nil {
		query = query.Where("(started_at, id) < (?, ?)", params.Cursor.StartedAt, params.Cursor.ID)
	}

	var sessions []models.SyncSession
	if err := query.Order("started_at DESC, id DESC").Limit(limit).Find(&sessions).Error; err != nil {
		return nil, nil, err
	}

	if len(sessions) > normalized {
		next := sessions[normalized]
		sessions = sessions[:normalized]
		return sessions, &pagination.Cursor{StartedAt: next.StartedAt, ID: next.ID}, nil
	}
	return sessions, nil, nil
}

func (r *repositoryImpl) CountByStatus(ctx context.Context, status enums.SyncSessionStatus) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.SyncSession{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// CountRecentFailures reports sessions that failed since the given time,
// for operational alerting.
func (r *repositoryImpl) CountRecentFailures(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.SyncSession{}).
		Where("status = ?", enums.SyncStatusFailed).
		Where("completed_at >= ?", since).
		Count(&count).Error
	return count, err
}

// FindActive returns the currently running session, if any.
func (r *repositoryImpl) FindActive(ctx context.Context) (*models.SyncSession, error) {
	var session models.SyncSession
	err := r.DB(ctx).
		Where("status = ?", enums.SyncStatusInProgress).
		Order("started_at DESC").
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindStaleInProgress returns running sessions that started before the cutoff.
// The cron watchdog fails these so an abandoned run cannot block new syncs
// forever.
func (r *repositoryImpl) FindStaleInProgress(ctx context.Context, startedBefore time.Time) ([]models.SyncSession, error) {
	var sessions []models.SyncSession
	err := r.DB(ctx).
		Where("status = ?", enums.SyncStatusInProgress).
		Where("started_at < ?", startedBefore).
		Order("started_at ASC").
		Find(&sessions).Error
	return sessions, err
}
