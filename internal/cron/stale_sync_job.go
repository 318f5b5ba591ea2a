package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
)

const defaultStaleAfter = 6 * time.Hour

type staleSyncFinder interface {
	FindStaleInProgress(ctx context.Context, startedBefore time.Time) ([]models.SyncSession, error)
}

type syncFailer interface {
	FailSync(ctx context.Context, sessionID uuid.UUID, details string) (*models.SyncSession, error)
}

// StaleSyncJobParams configure the watchdog job.
type StaleSyncJobParams struct {
	Logger     *logger.Logger
	Repository staleSyncFinder
	Sessions   syncFailer
	StaleAfter time.Duration
}

// NewStaleSyncJob builds the watchdog that fails sync sessions stuck in
// IN_PROGRESS past the stale window. A worker that crashed mid-run leaves
// its session open; this job closes it so the next sync can start.
func NewStaleSyncJob(params StaleSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("sync session repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("sync session service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &staleSyncJob{
		logg:       params.Logger,
		repo:       params.Repository,
		sessions:   params.Sessions,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

type staleSyncJob struct {
	logg       *logger.Logger
	repo       staleSyncFinder
	sessions   syncFailer
	staleAfter time.Duration
	now        func() time.Time
}

func (j *staleSyncJob) Name() string { return "stale-sync-watchdog" }

func (j *staleSyncJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)
	stale, err := j.repo.FindStaleInProgress(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find stale sessions: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	details := fmt.Sprintf("session exceeded the %s stale window and was closed by the watchdog", j.staleAfter)
	var failed int
	for _, session := range stale {
		sessionCtx := j.logg.WithSyncSessionID(ctx, session.ID.String())
		if _, err := j.sessions.FailSync(sessionCtx, session.ID, details); err != nil {
			// a concurrent terminal transition is fine; anything else is logged
			// and the remaining sessions still get processed
			j.logg.Error(sessionCtx, "failed to close stale sync session", err)
			continue
		}
		failed++
		j.logg.Warn(sessionCtx, "stale sync session closed")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"stale_found":     len(stale),
		"sessions_closed": failed,
	})
	j.logg.Info(logCtx, "stale sync watchdog complete")
	return nil
}
