package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  aggregate_id TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  event_type TEXT NOT NULL,
  event_action TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  partition_key TEXT NOT NULL DEFAULT '',
  occurred_at DATETIME NOT NULL,
  published_at DATETIME,
  retry_count INTEGER NOT NULL DEFAULT 0,
  error_message TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func insertOutboxEvent(t *testing.T, db *gorm.DB, mutate func(*models.OutboxEvent)) models.OutboxEvent {
	t.Helper()

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		AggregateID:   uuid.New(),
		AggregateType: enums.AggregateTimesheet,
		EventType:     enums.EventTimesheetSubmitted,
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		Status:        enums.OutboxStatusPending,
		OccurredAt:    time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&row)
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestFetchPendingTxOrdersByOccurrence(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	base := time.Now().UTC().Truncate(time.Second)
	newest := insertOutboxEvent(t, db, func(e *models.OutboxEvent) { e.OccurredAt = base })
	oldest := insertOutboxEvent(t, db, func(e *models.OutboxEvent) { e.OccurredAt = base.Add(-2 * time.Minute) })
	middle := insertOutboxEvent(t, db, func(e *models.OutboxEvent) { e.OccurredAt = base.Add(-1 * time.Minute) })

	rows, err := repo.FetchPendingTx(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, oldest.ID, rows[0].ID)
	assert.Equal(t, middle.ID, rows[1].ID)
	assert.Equal(t, newest.ID, rows[2].ID)
}

func TestFetchPendingTxSkipsPublishedAndExhausted(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	pending := insertOutboxEvent(t, db, nil)
	insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusPublished
		now := time.Now().UTC()
		e.PublishedAt = &now
	})
	insertOutboxEvent(t, db, func(e *models.OutboxEvent) { e.RetryCount = 5 })

	rows, err := repo.FetchPendingTx(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)
}

func TestFetchPendingTxIncludesFailedUnderCeiling(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	// FAILED rows under the retry ceiling are retried after the ceiling is
	// raised; status alone does not exclude them.
	failed := insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusFailed
		e.RetryCount = 3
	})

	rows, err := repo.FetchPendingTx(db, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, failed.ID, rows[0].ID)
}

// sqlRecorder keeps the last statement gorm rendered so tests can assert on
// dialect-specific SQL without a live server.
type sqlRecorder struct {
	last string
}

func (r *sqlRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})     {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{})    {}
func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fn func() (string, int64), _ error) {
	r.last, _ = fn()
}

// Two publisher replicas polling the same table must never pick up the same
// row. On Postgres the fetch has to claim rows with FOR UPDATE SKIP LOCKED;
// sqlite cannot exercise the lock, so assert on the SQL the postgres dialect
// renders.
func TestFetchPendingTxClaimsRowsOnPostgres(t *testing.T) {
	rec := &sqlRecorder{}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=tempora dbname=tempora",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               rec,
	})
	require.NoError(t, err)

	_, err = NewRepository(db).FetchPendingTx(db, 10, 5)
	require.NoError(t, err)
	assert.Contains(t, rec.last, "FOR UPDATE SKIP LOCKED")
}

func TestFetchPendingTxHonorsLimit(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	for i := 0; i < 4; i++ {
		insertOutboxEvent(t, db, nil)
	}

	rows, err := repo.FetchPendingTx(db, 2, 5)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestMarkPublishedTxIsIdempotent(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertOutboxEvent(t, db, nil)

	require.NoError(t, repo.MarkPublishedTx(db, row.ID))

	var first models.OutboxEvent
	require.NoError(t, db.First(&first, "id = ?", row.ID).Error)
	require.Equal(t, enums.OutboxStatusPublished, first.Status)
	require.NotNil(t, first.PublishedAt)

	// second call must not bump published_at
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.MarkPublishedTx(db, row.ID))

	var second models.OutboxEvent
	require.NoError(t, db.First(&second, "id = ?", row.ID).Error)
	require.NotNil(t, second.PublishedAt)
	assert.True(t, second.PublishedAt.Equal(*first.PublishedAt))
}

func TestMarkRetryTxIncrementsRetryCount(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertOutboxEvent(t, db, nil)

	require.NoError(t, repo.MarkRetryTx(db, row.ID, errors.New("broker unavailable")))
	require.NoError(t, repo.MarkRetryTx(db, row.ID, errors.New("broker unavailable")))

	var got models.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, enums.OutboxStatusPending, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "broker unavailable", *got.ErrorMessage)
}

func TestMarkFailedTxMovesToFailed(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	row := insertOutboxEvent(t, db, func(e *models.OutboxEvent) { e.RetryCount = 4 })

	require.NoError(t, repo.MarkFailedTx(db, row.ID, errors.New("max publish attempts reached")))

	var got models.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, enums.OutboxStatusFailed, got.Status)
	assert.Equal(t, 5, got.RetryCount)
	assert.Nil(t, got.PublishedAt)
}

func TestMarkFailedTxDoesNotTouchPublished(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	publishedAt := time.Now().UTC()
	row := insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusPublished
		e.PublishedAt = &publishedAt
	})

	require.NoError(t, repo.MarkFailedTx(db, row.ID, errors.New("late failure")))

	var got models.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, enums.OutboxStatusPublished, got.Status)
}

func TestFindByAggregateID(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	aggID := uuid.New()
	base := time.Now().UTC().Truncate(time.Second)
	second := insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.AggregateID = aggID
		e.OccurredAt = base
	})
	first := insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.AggregateID = aggID
		e.OccurredAt = base.Add(-time.Minute)
	})
	insertOutboxEvent(t, db, nil)

	rows, err := repo.FindByAggregateID(aggID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)
}

func TestCountByStatus(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	insertOutboxEvent(t, db, nil)
	insertOutboxEvent(t, db, nil)
	insertOutboxEvent(t, db, func(e *models.OutboxEvent) { e.Status = enums.OutboxStatusFailed })

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[enums.OutboxStatusPending])
	assert.Equal(t, int64(1), counts[enums.OutboxStatusFailed])
	assert.Equal(t, int64(0), counts[enums.OutboxStatusPublished])
}

func TestDeletePublishedBefore(t *testing.T) {
	db := setupOutboxTestDB(t)
	repo := NewRepository(db)

	old := time.Now().UTC().Add(-72 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)
	insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusPublished
		e.PublishedAt = &old
	})
	insertOutboxEvent(t, db, func(e *models.OutboxEvent) {
		e.Status = enums.OutboxStatusPublished
		e.PublishedAt = &recent
	})
	insertOutboxEvent(t, db, nil) // pending, must survive any cutoff

	removed, err := repo.DeletePublishedBefore(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var remaining int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.Equal(t, int64(2), remaining)
}
