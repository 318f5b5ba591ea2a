package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
)

type fakeStaleFinder struct {
	sessions   []models.SyncSession
	lastCutoff time.Time
	err        error
}

func (f *fakeStaleFinder) FindStaleInProgress(ctx context.Context, startedBefore time.Time) ([]models.SyncSession, error) {
	f.lastCutoff = startedBefore
	return f.sessions, f.err
}

type fakeSyncFailer struct {
	failed []uuid.UUID
	errOn  uuid.UUID
}

func (f *fakeSyncFailer) FailSync(ctx context.Context, sessionID uuid.UUID, details string) (*models.SyncSession, error) {
	if sessionID == f.errOn {
		return nil, errors.New("already terminal")
	}
	f.failed = append(f.failed, sessionID)
	return &models.SyncSession{ID: sessionID}, nil
}

func newStaleSyncJob(t *testing.T, finder *fakeStaleFinder, failer *fakeSyncFailer, staleAfter time.Duration) *staleSyncJob {
	t.Helper()
	jobIface, err := NewStaleSyncJob(StaleSyncJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: finder,
		Sessions:   failer,
		StaleAfter: staleAfter,
	})
	if err != nil {
		t.Fatalf("NewStaleSyncJob: %v", err)
	}
	job, ok := jobIface.(*staleSyncJob)
	if !ok {
		t.Fatalf("expected staleSyncJob, got %T", jobIface)
	}
	return job
}

func TestStaleSyncJobFailsStaleSessions(t *testing.T) {
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	stale := []models.SyncSession{{ID: uuid.New()}, {ID: uuid.New()}}
	finder := &fakeStaleFinder{sessions: stale}
	failer := &fakeSyncFailer{}
	job := newStaleSyncJob(t, finder, failer, 6*time.Hour)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !finder.lastCutoff.Equal(now.Add(-6 * time.Hour)) {
		t.Fatalf("unexpected cutoff %s", finder.lastCutoff)
	}
	if len(failer.failed) != 2 {
		t.Fatalf("expected 2 sessions failed, got %d", len(failer.failed))
	}
}

func TestStaleSyncJobContinuesPastFailErrors(t *testing.T) {
	raced := uuid.New()
	survivor := uuid.New()
	finder := &fakeStaleFinder{sessions: []models.SyncSession{{ID: raced}, {ID: survivor}}}
	failer := &fakeSyncFailer{errOn: raced}
	job := newStaleSyncJob(t, finder, failer, 6*time.Hour)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(failer.failed) != 1 || failer.failed[0] != survivor {
		t.Fatalf("expected remaining session to be closed, got %v", failer.failed)
	}
}

func TestStaleSyncJobNoopWhenNothingStale(t *testing.T) {
	finder := &fakeStaleFinder{}
	failer := &fakeSyncFailer{}
	job := newStaleSyncJob(t, finder, failer, 0)

	if job.staleAfter != defaultStaleAfter {
		t.Fatalf("expected default stale window, got %s", job.staleAfter)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(failer.failed) != 0 {
		t.Fatalf("nothing should be failed, got %v", failer.failed)
	}
}

func TestStaleSyncJobPropagatesFinderError(t *testing.T) {
	finder := &fakeStaleFinder{err: errors.New("db down")}
	job := newStaleSyncJob(t, finder, &fakeSyncFailer{}, time.Hour)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
