package syncsession

import (
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

// CreateSuccessDetail builds a SUCCESS ledger entry stamped now. Blank
// operation/result normalize to null.
func CreateSuccessDetail(sessionID uuid.UUID, sequence int, operation, result string, now time.Time) models.SyncDetail {
	return newDetail(sessionID, sequence, operation, enums.SyncOutcomeSuccess, result, now)
}

// CreateErrorDetail builds an ERROR ledger entry stamped now.
func CreateErrorDetail(sessionID uuid.UUID, sequence int, operation, result string, now time.Time) models.SyncDetail {
	return newDetail(sessionID, sequence, operation, enums.SyncOutcomeError, result, now)
}

// RestoreDetail rehydrates a persisted detail verbatim, with no
// normalization. Used for persistence round-trips.
func RestoreDetail(id, sessionID uuid.UUID, sequence int, operation *string, outcome enums.SyncOutcome, result *string, processedAt time.Time) models.SyncDetail {
	return models.SyncDetail{
		ID:          id,
		SessionID:   sessionID,
		Sequence:    sequence,
		Operation:   operation,
		Outcome:     outcome,
		Result:      result,
		ProcessedAt: processedAt,
	}
}

// ProcessingTime reports how long after session start the item was processed,
// in milliseconds, clamped at zero. The ledger trusts caller-supplied
// timestamps, so ordering across details is expected but not enforced.
func ProcessingTime(d models.SyncDetail, sessionStartedAt time.Time) int64 {
	ms := d.ProcessedAt.Sub(sessionStartedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

func newDetail(sessionID uuid.UUID, sequence int, operation string, outcome enums.SyncOutcome, result string, now time.Time) models.SyncDetail {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return models.SyncDetail{
		ID:          uuid.New(),
		SessionID:   sessionID,
		Sequence:    sequence,
		Operation:   normalizeText(operation),
		Outcome:     outcome,
		Result:      normalizeText(result),
		ProcessedAt: now,
	}
}
