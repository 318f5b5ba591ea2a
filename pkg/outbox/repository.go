package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mverdugo-dev/tempora-backend/pkg/db"
	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := tx.Create(&event).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_outbox_events_event_id") {
			return apperrors.Wrap(apperrors.CodeConflict, err, "outbox event already queued")
		}
		return err
	}
	return nil
}

// FetchPendingTx claims unpublished events whose retry budget is not yet
// exhausted, oldest occurrence first. SELECT FOR UPDATE SKIP LOCKED holds the
// claimed rows until the transaction ends and passes over rows another
// publisher replica already holds, so one event never has two delivery
// attempts in flight. SQLite has no row locks; there the clause is dropped by
// the driver and the fetch degrades to a plain read.
func (r *Repository) FetchPendingTx(tx *gorm.DB, limit, maxRetries int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{
		Strength: clause.LockingStrengthUpdate,
		Options:  clause.LockingOptionsSkipLocked,
	}).
		Where("status <> ?", enums.OutboxStatusPublished).
		Where("retry_count < ?", maxRetries).
		Order("occurred_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkPublishedTx transitions an event to PUBLISHED. Already-published rows
// are left untouched so repeat calls are safe.
func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Where("status <> ?", enums.OutboxStatusPublished).
		Updates(map[string]any{
			"status":       enums.OutboxStatusPublished,
			"published_at": time.Now().UTC(),
		}).Error
}

// MarkRetryTx records a failed publish attempt. The row stays PENDING so the
// next poll picks it up again.
func (r *Repository) MarkRetryTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Where("status <> ?", enums.OutboxStatusPublished).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": errorMessage(cause),
		}).Error
}

// MarkFailedTx moves an event to FAILED once its retry budget is spent or the
// payload cannot be delivered at all. FAILED rows stay in the table for
// inspection and manual replay.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Where("status <> ?", enums.OutboxStatusPublished).
		Updates(map[string]any{
			"status":        enums.OutboxStatusFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"error_message": errorMessage(cause),
		}).Error
}

// FindByAggregateID returns every event recorded for one aggregate, in the
// order it occurred.
func (r *Repository) FindByAggregateID(aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	var rows []models.OutboxEvent
	err := r.db.Where("aggregate_id = ?", aggregateID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// CountByStatus reports how many events sit in each status.
func (r *Repository) CountByStatus() (map[enums.OutboxStatus]int64, error) {
	type row struct {
		Status enums.OutboxStatus
		Total  int64
	}
	var rows []row
	err := r.db.Model(&models.OutboxEvent{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[enums.OutboxStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Total
	}
	return out, nil
}

// DeletePublishedBefore removes delivered events older than the cutoff and
// returns how many rows were dropped.
func (r *Repository) DeletePublishedBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("status = ?", enums.OutboxStatusPublished).
		Where("published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}
