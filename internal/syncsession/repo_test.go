package syncsession

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
)

func setupSyncTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sessions := `
CREATE TABLE IF NOT EXISTS sync_sessions (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
  started_at DATETIME NOT NULL,
  completed_at DATETIME,
  total_processed INTEGER NOT NULL DEFAULT 0,
  success_count INTEGER NOT NULL DEFAULT 0,
  error_count INTEGER NOT NULL DEFAULT 0,
  error_details TEXT,
  triggered_by TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	details := `
CREATE TABLE IF NOT EXISTS sync_details (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  operation TEXT,
  status TEXT NOT NULL,
  result TEXT,
  processed_at DATETIME NOT NULL
);`
	require.NoError(t, db.Exec(sessions).Error)
	require.NoError(t, db.Exec(details).Error)
	return db
}

func insertSession(t *testing.T, db *gorm.DB, mutate func(*models.SyncSession)) models.SyncSession {
	t.Helper()

	row := models.SyncSession{
		ID:        uuid.New(),
		Type:      enums.SyncTypeManual,
		Status:    enums.SyncStatusInProgress,
		StartedAt: time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&row)
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func TestRepoSaveCountersGuardsTerminalSessions(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	row := insertSession(t, db, nil)
	row.TotalProcessed = 2
	row.SuccessCount = 1
	row.ErrorCount = 1
	require.NoError(t, repo.SaveCounters(ctx, row))

	var got models.SyncSession
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, 2, got.TotalProcessed)

	// once terminal, counter writes must bounce
	require.NoError(t, db.Model(&models.SyncSession{}).
		Where("id = ?", row.ID).
		Update("status", enums.SyncStatusCompleted).Error)

	row.TotalProcessed = 5
	err := repo.SaveCounters(ctx, row)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestRepoFinishTerminalSucceedsOnce(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	row := insertSession(t, db, nil)
	now := time.Now().UTC()
	row.Status = enums.SyncStatusCompleted
	row.CompletedAt = &now

	require.NoError(t, repo.FinishTerminal(ctx, row))

	err := repo.FinishTerminal(ctx, row)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestRepoFinishTerminalRejectsNonTerminalInput(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)

	row := insertSession(t, db, nil)
	err := repo.FinishTerminal(context.Background(), row)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
}

func TestRepoGetByIDLoadsOrderedDetails(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	row := insertSession(t, db, nil)
	for _, seq := range []int{3, 1, 2} {
		detail := models.SyncDetail{
			ID:          uuid.New(),
			SessionID:   row.ID,
			Sequence:    seq,
			Outcome:     enums.SyncOutcomeSuccess,
			ProcessedAt: time.Now().UTC(),
		}
		require.NoError(t, db.Create(&detail).Error)
	}

	got, err := repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	require.Len(t, got.Details, 3)
	assert.Equal(t, 1, got.Details[0].Sequence)
	assert.Equal(t, 2, got.Details[1].Sequence)
	assert.Equal(t, 3, got.Details[2].Sequence)
}

func TestRepoGetByIDNotFound(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestRepoListFiltersAndPaginates(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	insertSession(t, db, func(s *models.SyncSession) {
		s.Type = enums.SyncTypeScheduled
		s.Status = enums.SyncStatusCompleted
		s.StartedAt = base.Add(-3 * time.Hour)
	})
	manual := insertSession(t, db, func(s *models.SyncSession) {
		s.Status = enums.SyncStatusCompleted
		s.StartedAt = base.Add(-2 * time.Hour)
	})
	insertSession(t, db, func(s *models.SyncSession) {
		s.StartedAt = base.Add(-1 * time.Hour)
	})

	status := enums.SyncStatusCompleted
	syncType := enums.SyncTypeManual
	rows, next, err := repo.List(ctx, ListParams{Status: &status, Type: &syncType, Limit: 10})
	require.NoError(t, err)
	assert.Nil(t, next)
	require.Len(t, rows, 1)
	assert.Equal(t, manual.ID, rows[0].ID)

	after := base.Add(-90 * time.Minute)
	rows, _, err = repo.List(ctx, ListParams{StartedAfter: &after, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	// page size 2 over 3 rows yields a cursor for the oldest
	rows, next, err = repo.List(ctx, ListParams{Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, next)

	rows, next, err = repo.List(ctx, ListParams{Limit: 2, Cursor: next})
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Len(t, rows, 1)
}

func TestRepoCounts(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	recent := now.Add(-time.Hour)
	old := now.Add(-48 * time.Hour)
	insertSession(t, db, nil)
	insertSession(t, db, func(s *models.SyncSession) {
		s.Status = enums.SyncStatusFailed
		s.CompletedAt = &recent
	})
	insertSession(t, db, func(s *models.SyncSession) {
		s.Status = enums.SyncStatusFailed
		s.CompletedAt = &old
	})

	inProgress, err := repo.CountByStatus(ctx, enums.SyncStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inProgress)

	failed, err := repo.CountByStatus(ctx, enums.SyncStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(2), failed)

	recentFailures, err := repo.CountRecentFailures(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), recentFailures)
}

func TestRepoFindActive(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)

	row := insertSession(t, db, nil)
	active, err = repo.FindActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, row.ID, active.ID)
}

func TestRepoFindStaleInProgress(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := insertSession(t, db, func(s *models.SyncSession) {
		s.StartedAt = now.Add(-8 * time.Hour)
	})
	insertSession(t, db, func(s *models.SyncSession) {
		s.StartedAt = now.Add(-time.Hour)
	})
	insertSession(t, db, func(s *models.SyncSession) {
		s.Status = enums.SyncStatusCompleted
		s.StartedAt = now.Add(-10 * time.Hour)
	})

	rows, err := repo.FindStaleInProgress(ctx, now.Add(-6*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}
