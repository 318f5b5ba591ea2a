package syncsession

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
)

// Sessions move through a small state machine:
//
//	IN_PROGRESS -> COMPLETED | FAILED
//
// Both terminal states are final. Every mutation here is a pure transition:
// the input session is never modified, the updated copy is returned. Callers
// persist the result themselves.

// Start creates a new session in IN_PROGRESS with all counters at zero.
func Start(syncType enums.SyncType, triggeredBy string, now time.Time) (models.SyncSession, error) {
	if !syncType.IsValid() {
		return models.SyncSession{}, apperrors.New(apperrors.CodeValidation, "sync type is required").
			WithDetails(map[string]any{"type": string(syncType)})
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return models.SyncSession{
		ID:          uuid.New(),
		Type:        syncType,
		Status:      enums.SyncStatusInProgress,
		StartedAt:   now,
		TriggeredBy: normalizeText(triggeredBy),
	}, nil
}

// IncrementProcessed bumps totalProcessed on a running session.
func IncrementProcessed(s models.SyncSession) (models.SyncSession, error) {
	if err := requireInProgress(s, "incrementProcessed"); err != nil {
		return s, err
	}
	s.TotalProcessed++
	return s, nil
}

// IncrementSuccess bumps successCount on a running session. The counters may
// never exceed totalProcessed.
func IncrementSuccess(s models.SyncSession) (models.SyncSession, error) {
	if err := requireInProgress(s, "incrementSuccess"); err != nil {
		return s, err
	}
	if s.SuccessCount+s.ErrorCount+1 > s.TotalProcessed {
		return s, counterInvariantError(s)
	}
	s.SuccessCount++
	return s, nil
}

// IncrementError bumps errorCount on a running session under the same
// counter invariant as IncrementSuccess.
func IncrementError(s models.SyncSession) (models.SyncSession, error) {
	if err := requireInProgress(s, "incrementError"); err != nil {
		return s, err
	}
	if s.SuccessCount+s.ErrorCount+1 > s.TotalProcessed {
		return s, counterInvariantError(s)
	}
	s.ErrorCount++
	return s, nil
}

// AppendDetail records one per-item outcome with the next sequence number.
// Appends are allowed on terminal sessions too: a late-arriving outcome is
// still worth keeping in the audit trail.
func AppendDetail(s models.SyncSession, operation string, outcome enums.SyncOutcome, result string, now time.Time) (models.SyncSession, error) {
	if !outcome.IsValid() {
		return s, apperrors.New(apperrors.CodeValidation, "detail outcome is required").
			WithDetails(map[string]any{"outcome": string(outcome)})
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	detail := models.SyncDetail{
		ID:          uuid.New(),
		SessionID:   s.ID,
		Sequence:    len(s.Details) + 1,
		Operation:   normalizeText(operation),
		Outcome:     outcome,
		Result:      normalizeText(result),
		ProcessedAt: now,
	}

	details := make([]models.SyncDetail, len(s.Details), len(s.Details)+1)
	copy(details, s.Details)
	s.Details = append(details, detail)
	return s, nil
}

// Complete moves a running session to COMPLETED and stamps completedAt.
func Complete(s models.SyncSession, now time.Time) (models.SyncSession, error) {
	if err := requireInProgress(s, "completeSync"); err != nil {
		return s, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	s.Status = enums.SyncStatusCompleted
	s.CompletedAt = &now
	return s, nil
}

// Fail moves a running session to FAILED, stamps completedAt, and records the
// failure details (blank normalizes to null).
func Fail(s models.SyncSession, details string, now time.Time) (models.SyncSession, error) {
	if err := requireInProgress(s, "failSync"); err != nil {
		return s, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	s.Status = enums.SyncStatusFailed
	s.CompletedAt = &now
	s.ErrorDetails = normalizeText(details)
	return s, nil
}

// Restore rehydrates a persisted session verbatim. No normalization and no
// invariant checks: the row was validated when it was written.
func Restore(
	id uuid.UUID,
	syncType enums.SyncType,
	status enums.SyncSessionStatus,
	startedAt time.Time,
	completedAt *time.Time,
	totalProcessed, successCount, errorCount int,
	errorDetails, triggeredBy *string,
	details []models.SyncDetail,
) models.SyncSession {
	return models.SyncSession{
		ID:             id,
		Type:           syncType,
		Status:         status,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		TotalProcessed: totalProcessed,
		SuccessCount:   successCount,
		ErrorCount:     errorCount,
		ErrorDetails:   errorDetails,
		TriggeredBy:    triggeredBy,
		Details:        details,
	}
}

// SuccessRate returns successCount/totalProcessed as a percentage. A session
// that processed nothing is 100% successful, not a division error.
func SuccessRate(s models.SyncSession) float64 {
	if s.TotalProcessed == 0 {
		return 100.0
	}
	return float64(s.SuccessCount) / float64(s.TotalProcessed) * 100.0
}

// DurationMinutes reports how long the session ran (or has been running),
// never negative.
func DurationMinutes(s models.SyncSession, now time.Time) float64 {
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	} else if end.IsZero() {
		end = time.Now().UTC()
	}
	minutes := end.Sub(s.StartedAt).Minutes()
	if minutes < 0 {
		return 0
	}
	return minutes
}

func requireInProgress(s models.SyncSession, operation string) error {
	if s.Status == enums.SyncStatusInProgress {
		return nil
	}
	return apperrors.New(
		apperrors.CodeStateConflict,
		fmt.Sprintf("%s requires an IN_PROGRESS session, current status is %s", operation, s.Status),
	).WithDetails(map[string]any{
		"session_id": s.ID.String(),
		"status":     string(s.Status),
	})
}

func counterInvariantError(s models.SyncSession) error {
	return apperrors.New(
		apperrors.CodeInvariant,
		"success and error counts may not exceed total processed",
	).WithDetails(map[string]any{
		"session_id":      s.ID.String(),
		"total_processed": s.TotalProcessed,
		"success_count":   s.SuccessCount,
		"error_count":     s.ErrorCount,
	})
}

func normalizeText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
