package syncworker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/internal/syncsession"
	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	pkgerrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
	"github.com/mverdugo-dev/tempora-backend/pkg/ticketing"
)

const (
	defaultPageSize  = 100
	defaultInterval  = time.Hour
	scheduledTrigger = "scheduler"
)

// changeFeed matches ticketing.Client.
type changeFeed interface {
	FetchChanges(ctx context.Context, cursor string, pageSize int) (*ticketing.ChangePage, error)
}

// sessionRunner is the slice of the sync session service the worker drives.
type sessionRunner interface {
	StartSync(ctx context.Context, syncType enums.SyncType, triggeredBy string) (*models.SyncSession, error)
	RecordItem(ctx context.Context, sessionID uuid.UUID, item syncsession.ItemResult) (*models.SyncSession, error)
	CompleteSync(ctx context.Context, sessionID uuid.UUID) (*models.SyncSession, error)
	FailSync(ctx context.Context, sessionID uuid.UUID, details string) (*models.SyncSession, error)
}

// ApplyFunc applies one upstream change to local state. Returning an error
// records the item as ERROR without aborting the run.
type ApplyFunc func(ctx context.Context, change ticketing.Change) error

// ServiceParams configure the sync worker.
type ServiceParams struct {
	Logger   *logger.Logger
	Feed     changeFeed
	Sessions sessionRunner
	Apply    ApplyFunc
	PageSize int
	Interval time.Duration
}

// Service runs the scheduled ticketing sync: one session per cycle, paging
// the upstream change feed and recording a ledger entry per change.
type Service struct {
	logg     *logger.Logger
	feed     changeFeed
	sessions sessionRunner
	apply    ApplyFunc
	pageSize int
	interval time.Duration
}

// NewService builds the sync worker.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Feed == nil {
		return nil, fmt.Errorf("change feed required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("sync session service required")
	}
	if params.Apply == nil {
		return nil, fmt.Errorf("apply func required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		feed:     params.Feed,
		sessions: params.Sessions,
		apply:    params.Apply,
		pageSize: pageSize,
		interval: interval,
	}, nil
}

// Run executes sync cycles on the configured cadence until the context is
// canceled. The first cycle runs immediately.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled sync failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "sync worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "scheduled sync failed", err)
			}
		}
	}
}

// RunOnce performs one full sync cycle. A concurrent run elsewhere is not an
// error: the start conflict is logged and the cycle is skipped.
func (s *Service) RunOnce(ctx context.Context) error {
	session, err := s.sessions.StartSync(ctx, enums.SyncTypeScheduled, scheduledTrigger)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			s.logg.Info(ctx, "sync already running; skipping this cycle")
			return nil
		}
		return fmt.Errorf("start sync: %w", err)
	}

	sessionCtx := s.logg.WithSyncSessionID(ctx, session.ID.String())

	cursor := ""
	for {
		page, err := s.feed.FetchChanges(sessionCtx, cursor, s.pageSize)
		if err != nil {
			details := fmt.Sprintf("change feed failed: %v", err)
			if _, failErr := s.sessions.FailSync(sessionCtx, session.ID, details); failErr != nil {
				s.logg.Error(sessionCtx, "failed to mark sync session failed", failErr)
			}
			return fmt.Errorf("fetch changes: %w", err)
		}

		for _, change := range page.Changes {
			s.recordChange(sessionCtx, session.ID, change)
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if _, err := s.sessions.CompleteSync(sessionCtx, session.ID); err != nil {
		return fmt.Errorf("complete sync: %w", err)
	}
	return nil
}

func (s *Service) recordChange(ctx context.Context, sessionID uuid.UUID, change ticketing.Change) {
	item := syncsession.ItemResult{
		Operation: change.Operation,
		Outcome:   enums.SyncOutcomeSuccess,
	}
	if err := s.apply(ctx, change); err != nil {
		item.Outcome = enums.SyncOutcomeError
		item.Result = err.Error()
	}

	if _, err := s.sessions.RecordItem(ctx, sessionID, item); err != nil {
		// the ledger write failed; the run keeps going, the gap is logged
		logCtx := s.logg.WithField(ctx, "change_id", change.ID)
		s.logg.Error(logCtx, "failed to record sync item", err)
	}
}
