package syncsession

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	pkgerrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
	"github.com/mverdugo-dev/tempora-backend/pkg/outbox"
	"github.com/mverdugo-dev/tempora-backend/pkg/outbox/payloads"
	"github.com/mverdugo-dev/tempora-backend/pkg/pagination"
)

// txRunner matches db.Client.WithTx.
type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service drives sync session lifecycles: start under the distributed lock,
// record per-item outcomes, and terminate exactly once.
type Service interface {
	StartSync(ctx context.Context, syncType enums.SyncType, triggeredBy string) (*models.SyncSession, error)
	RecordItem(ctx context.Context, sessionID uuid.UUID, item ItemResult) (*models.SyncSession, error)
	CompleteSync(ctx context.Context, sessionID uuid.UUID) (*models.SyncSession, error)
	FailSync(ctx context.Context, sessionID uuid.UUID, details string) (*models.SyncSession, error)
	Get(ctx context.Context, id uuid.UUID) (*models.SyncSession, error)
	List(ctx context.Context, params ListQuery) (*ListResult, error)
	Stats(ctx context.Context, failureWindowHours int) (*StatsResult, error)
	ActiveSession(ctx context.Context) (*models.SyncSession, error)
}

type service struct {
	repo   Repository
	lock   Lock
	db     txRunner
	outbox *outbox.Service
	logg   *logger.Logger
}

// ServiceParams wires sync session dependencies.
type ServiceParams struct {
	Repository Repository
	Lock       Lock
	DB         txRunner
	Outbox     *outbox.Service
	Logger     *logger.Logger
}

// ItemResult is one per-item outcome fed in from the ticketing sync loop.
type ItemResult struct {
	Operation string
	Outcome   enums.SyncOutcome
	Result    string
}

// ListQuery filters and paginates the session list.
type ListQuery struct {
	Status        string
	Type          string
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Limit         int
	Cursor        string
}

// ListResult wraps returned sessions and the cursor for the next page.
type ListResult struct {
	Items  []models.SyncSession `json:"items"`
	Cursor string               `json:"cursor"`
}

// StatsResult is the operational snapshot exposed for alerting.
type StatsResult struct {
	InProgress      int64 `json:"inProgress"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
	RecentFailures  int64 `json:"recentFailures"`
	FailureWindowHr int   `json:"failureWindowHours"`
}

// NewService wires sync session dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sync session repository required")
	}
	if params.Lock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "sync lock required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	return &service{
		repo:   params.Repository,
		lock:   params.Lock,
		db:     params.DB,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

// StartSync acquires the sync lock and opens a new IN_PROGRESS session.
// A second start while one is running is rejected with a conflict the caller
// can surface as "sync already running", not a generic failure.
func (s *service) StartSync(ctx context.Context, syncType enums.SyncType, triggeredBy string) (*models.SyncSession, error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire sync lock")
	}
	if !acquired {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "sync already running")
	}

	session, err := Start(syncType, triggeredBy, time.Now().UTC())
	if err != nil {
		s.releaseLock(ctx)
		return nil, err
	}

	// The lock is the real guard; the status check catches a session left
	// IN_PROGRESS by a crashed worker whose lock TTL already expired.
	active, err := s.repo.FindActive(ctx)
	if err != nil {
		s.releaseLock(ctx)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active session")
	}
	if active != nil {
		s.releaseLock(ctx)
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "sync already running").
			WithDetails(map[string]any{"session_id": active.ID.String()})
	}

	if err := s.repo.Create(ctx, &session); err != nil {
		s.releaseLock(ctx)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sync session")
	}

	if s.logg != nil {
		logCtx := s.logg.WithSyncSessionID(ctx, session.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "type", string(syncType)), "sync session started")
	}
	return &session, nil
}

// RecordItem applies one per-item outcome: counters plus the matching ledger
// entry, persisted in a single transaction.
func (s *service) RecordItem(ctx context.Context, sessionID uuid.UUID, item ItemResult) (*models.SyncSession, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	current, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := IncrementProcessed(*current)
	if err != nil {
		return nil, err
	}
	switch item.Outcome {
	case enums.SyncOutcomeSuccess:
		next, err = IncrementSuccess(next)
	case enums.SyncOutcomeError:
		next, err = IncrementError(next)
	default:
		err = pkgerrors.New(pkgerrors.CodeValidation, "item outcome is required").
			WithDetails(map[string]any{"outcome": string(item.Outcome)})
	}
	if err != nil {
		return nil, err
	}
	next, err = AppendDetail(next, item.Operation, item.Outcome, item.Result, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	detail := next.Details[len(next.Details)-1]
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.SaveCounters(ctx, next); err != nil {
			return err
		}
		return txRepo.AppendDetail(ctx, &detail)
	})
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// CompleteSync terminates the session as COMPLETED, emits the completion
// event through the outbox, and releases the sync lock.
func (s *service) CompleteSync(ctx context.Context, sessionID uuid.UUID) (*models.SyncSession, error) {
	return s.finish(ctx, sessionID, func(current models.SyncSession, now time.Time) (models.SyncSession, error) {
		return Complete(current, now)
	})
}

// FailSync terminates the session as FAILED with the given details.
func (s *service) FailSync(ctx context.Context, sessionID uuid.UUID, details string) (*models.SyncSession, error) {
	return s.finish(ctx, sessionID, func(current models.SyncSession, now time.Time) (models.SyncSession, error) {
		return Fail(current, details, now)
	})
}

func (s *service) finish(ctx context.Context, sessionID uuid.UUID, transition func(models.SyncSession, time.Time) (models.SyncSession, error)) (*models.SyncSession, error) {
	if sessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}

	current, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := transition(*current, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).FinishTerminal(ctx, next); err != nil {
			return err
		}
		return s.emitTerminalEvent(ctx, tx, next)
	})
	if err != nil {
		return nil, err
	}

	s.releaseLock(ctx)

	if s.logg != nil {
		logCtx := s.logg.WithSyncSessionID(ctx, next.ID.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"status":          string(next.Status),
			"total_processed": next.TotalProcessed,
			"success_count":   next.SuccessCount,
			"error_count":     next.ErrorCount,
		})
		s.logg.Info(logCtx, "sync session finished")
	}
	return &next, nil
}

func (s *service) emitTerminalEvent(ctx context.Context, tx *gorm.DB, session models.SyncSession) error {
	if s.outbox == nil || session.CompletedAt == nil {
		return nil
	}

	event := outbox.DomainEvent{
		AggregateType: enums.AggregateSyncSession,
		AggregateID:   session.ID,
		OccurredAt:    *session.CompletedAt,
	}
	switch session.Status {
	case enums.SyncStatusCompleted:
		event.EventType = enums.EventSyncCompleted
		event.EventAction = "COMPLETED"
		event.Data = payloads.SyncCompletedEvent{
			SessionID:      session.ID,
			Type:           session.Type,
			TotalProcessed: session.TotalProcessed,
			SuccessCount:   session.SuccessCount,
			ErrorCount:     session.ErrorCount,
			CompletedAt:    *session.CompletedAt,
		}
	case enums.SyncStatusFailed:
		event.EventType = enums.EventSyncFailed
		event.EventAction = "FAILED"
		data := payloads.SyncFailedEvent{
			SessionID:      session.ID,
			Type:           session.Type,
			TotalProcessed: session.TotalProcessed,
			ErrorCount:     session.ErrorCount,
			FailedAt:       *session.CompletedAt,
		}
		if session.ErrorDetails != nil {
			data.ErrorDetails = *session.ErrorDetails
		}
		event.Data = data
	default:
		return nil
	}
	return s.outbox.Save(ctx, tx, event)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.SyncSession, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, params ListQuery) (*ListResult, error) {
	query := ListParams{
		Limit:         params.Limit,
		StartedAfter:  params.StartedAfter,
		StartedBefore: params.StartedBefore,
	}
	if params.Status != "" {
		status, err := enums.ParseSyncSessionStatus(params.Status)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if params.Type != "" {
		syncType, err := enums.ParseSyncType(params.Type)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid type filter")
		}
		query.Type = &syncType
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sync sessions")
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: rows, Cursor: cursor}, nil
}

func (s *service) Stats(ctx context.Context, failureWindowHours int) (*StatsResult, error) {
	if failureWindowHours <= 0 {
		failureWindowHours = 24
	}

	inProgress, err := s.repo.CountByStatus(ctx, enums.SyncStatusInProgress)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count in-progress sessions")
	}
	completed, err := s.repo.CountByStatus(ctx, enums.SyncStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count completed sessions")
	}
	failed, err := s.repo.CountByStatus(ctx, enums.SyncStatusFailed)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count failed sessions")
	}
	since := time.Now().UTC().Add(-time.Duration(failureWindowHours) * time.Hour)
	recent, err := s.repo.CountRecentFailures(ctx, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recent failures")
	}

	return &StatsResult{
		InProgress:      inProgress,
		Completed:       completed,
		Failed:          failed,
		RecentFailures:  recent,
		FailureWindowHr: failureWindowHours,
	}, nil
}

func (s *service) ActiveSession(ctx context.Context) (*models.SyncSession, error) {
	return s.repo.FindActive(ctx)
}

func (s *service) releaseLock(ctx context.Context) {
	if err := s.lock.Release(ctx); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to release sync lock", err)
	}
}
