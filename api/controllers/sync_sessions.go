package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/api/responses"
	"github.com/mverdugo-dev/tempora-backend/api/validators"
	"github.com/mverdugo-dev/tempora-backend/internal/syncsession"
	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	pkgerrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
	"github.com/mverdugo-dev/tempora-backend/pkg/pagination"
)

// sessionView is the API shape of one sync session, with the derived
// success-rate and duration fields callers always want alongside the raw
// counters.
type sessionView struct {
	ID              uuid.UUID          `json:"id"`
	Type            string             `json:"type"`
	Status          string             `json:"status"`
	StartedAt       time.Time          `json:"startedAt"`
	CompletedAt     *time.Time         `json:"completedAt,omitempty"`
	TotalProcessed  int                `json:"totalProcessed"`
	SuccessCount    int                `json:"successCount"`
	ErrorCount      int                `json:"errorCount"`
	SuccessRate     float64            `json:"successRate"`
	DurationMinutes float64            `json:"durationMinutes"`
	ErrorDetails    *string            `json:"errorDetails,omitempty"`
	TriggeredBy     *string            `json:"triggeredBy,omitempty"`
	Details         []sessionDetailRow `json:"details,omitempty"`
}

type sessionDetailRow struct {
	Sequence         int       `json:"sequence"`
	Operation        *string   `json:"operation,omitempty"`
	Outcome          string    `json:"outcome"`
	Result           *string   `json:"result,omitempty"`
	ProcessedAt      time.Time `json:"processedAt"`
	ProcessingTimeMS int64     `json:"processingTimeMs"`
}

func toSessionView(session models.SyncSession, withDetails bool) sessionView {
	now := time.Now().UTC()
	view := sessionView{
		ID:              session.ID,
		Type:            string(session.Type),
		Status:          string(session.Status),
		StartedAt:       session.StartedAt,
		CompletedAt:     session.CompletedAt,
		TotalProcessed:  session.TotalProcessed,
		SuccessCount:    session.SuccessCount,
		ErrorCount:      session.ErrorCount,
		SuccessRate:     syncsession.SuccessRate(session),
		DurationMinutes: syncsession.DurationMinutes(session, now),
		ErrorDetails:    session.ErrorDetails,
		TriggeredBy:     session.TriggeredBy,
	}
	if withDetails {
		for _, detail := range session.Details {
			view.Details = append(view.Details, sessionDetailRow{
				Sequence:         detail.Sequence,
				Operation:        detail.Operation,
				Outcome:          string(detail.Outcome),
				Result:           detail.Result,
				ProcessedAt:      detail.ProcessedAt,
				ProcessingTimeMS: syncsession.ProcessingTime(detail, session.StartedAt),
			})
		}
	}
	return view
}

// ListSyncSessions returns paginated sessions filtered by status, type, and
// started-at range.
func ListSyncSessions(svc syncsession.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		startedAfter, err := validators.ParseQueryTime(r, "startedAfter")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		startedBefore, err := validators.ParseQueryTime(r, "startedBefore")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := syncsession.ListQuery{
			Status:        strings.TrimSpace(r.URL.Query().Get("status")),
			Type:          strings.TrimSpace(r.URL.Query().Get("type")),
			StartedAfter:  startedAfter,
			StartedBefore: startedBefore,
			Limit:         limit,
			Cursor:        strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		result, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]sessionView, 0, len(result.Items))
		for _, session := range result.Items {
			views = append(views, toSessionView(session, false))
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  views,
			"cursor": result.Cursor,
		})
	}
}

// GetSyncSession returns one session with its full detail ledger.
func GetSyncSession(svc syncsession.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session id"))
			return
		}

		session, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSessionView(*session, true))
	}
}

type startSyncRequest struct {
	TriggeredBy string `json:"triggeredBy"`
}

// StartManualSync opens a MANUAL sync session. A 409 means another sync is
// already running.
func StartManualSync(svc syncsession.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startSyncRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
				return
			}
		}

		session, err := svc.StartSync(r.Context(), enums.SyncTypeManual, req.TriggeredBy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toSessionView(*session, false))
	}
}

type failSyncRequest struct {
	Details string `json:"details"`
}

// FailSyncSession aborts a running session after the caller has given up.
func FailSyncSession(svc syncsession.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session id"))
			return
		}

		var req failSyncRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
				return
			}
		}

		session, err := svc.FailSync(r.Context(), id, req.Details)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSessionView(*session, false))
	}
}

// CompleteSyncSession terminates a running session as COMPLETED.
func CompleteSyncSession(svc syncsession.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid session id"))
			return
		}

		session, err := svc.CompleteSync(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toSessionView(*session, false))
	}
}

// SyncSessionStats exposes status counts plus recent failures for alerting.
func SyncSessionStats(svc syncsession.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := validators.ParseQueryInt(r, "windowHours", 24, 1, 24*30)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stats, err := svc.Stats(r.Context(), window)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}
