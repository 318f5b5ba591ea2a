package syncsession

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
)

func TestStartNormalizesTriggeredBy(t *testing.T) {
	now := time.Now().UTC()

	session, err := Start(enums.SyncTypeManual, "  user1  ", now)
	require.NoError(t, err)
	assert.Equal(t, enums.SyncStatusInProgress, session.Status)
	assert.Equal(t, now, session.StartedAt)
	assert.Zero(t, session.TotalProcessed)
	assert.Zero(t, session.SuccessCount)
	assert.Zero(t, session.ErrorCount)
	assert.Nil(t, session.CompletedAt)
	require.NotNil(t, session.TriggeredBy)
	assert.Equal(t, "user1", *session.TriggeredBy)

	blank, err := Start(enums.SyncTypeScheduled, "   ", now)
	require.NoError(t, err)
	assert.Nil(t, blank.TriggeredBy)
}

func TestStartRejectsInvalidType(t *testing.T) {
	_, err := Start(enums.SyncType(""), "user1", time.Now())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestTransitionsArePure(t *testing.T) {
	original, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)

	next, err := IncrementProcessed(original)
	require.NoError(t, err)
	assert.Equal(t, 1, next.TotalProcessed)
	assert.Equal(t, 0, original.TotalProcessed)

	withDetail, err := AppendDetail(next, "CREATED", enums.SyncOutcomeSuccess, "", time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, withDetail.Details, 1)
	assert.Empty(t, next.Details)
}

func TestCountersRequireInProgress(t *testing.T) {
	session, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)
	session, err = Complete(session, time.Now().UTC())
	require.NoError(t, err)

	_, err = IncrementProcessed(session)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "COMPLETED")

	_, err = IncrementSuccess(session)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
	_, err = IncrementError(session)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestCounterInvariantRejectsOvercount(t *testing.T) {
	session, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)

	session, err = IncrementProcessed(session)
	require.NoError(t, err)
	session, err = IncrementSuccess(session)
	require.NoError(t, err)

	// success + error == totalProcessed: one more of either must fail and
	// leave the counters untouched.
	rejected, err := IncrementError(session)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvariant))
	assert.Equal(t, session.TotalProcessed, rejected.TotalProcessed)
	assert.Equal(t, session.SuccessCount, rejected.SuccessCount)
	assert.Equal(t, session.ErrorCount, rejected.ErrorCount)

	_, err = IncrementSuccess(session)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvariant))
}

func TestCompleteAndFailAreSingleShot(t *testing.T) {
	session, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)

	now := time.Now().UTC()
	completed, err := Complete(session, now)
	require.NoError(t, err)
	assert.Equal(t, enums.SyncStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)
	assert.Equal(t, now, *completed.CompletedAt)

	_, err = Complete(completed, time.Now().UTC())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
	_, err = Fail(completed, "late failure", time.Now().UTC())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStateConflict))
}

func TestFailNormalizesDetails(t *testing.T) {
	session, err := Start(enums.SyncTypeScheduled, "", time.Now().UTC())
	require.NoError(t, err)

	failed, err := Fail(session, "upstream timed out", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, enums.SyncStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorDetails)
	assert.Equal(t, "upstream timed out", *failed.ErrorDetails)

	session2, err := Start(enums.SyncTypeScheduled, "", time.Now().UTC())
	require.NoError(t, err)
	failed2, err := Fail(session2, "   ", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, failed2.ErrorDetails)
}

func TestManualSyncRunEndToEnd(t *testing.T) {
	// A full manual run: three creates succeed, one update times out.
	session, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		session, err = IncrementProcessed(session)
		require.NoError(t, err)
		session, err = IncrementSuccess(session)
		require.NoError(t, err)
		session, err = AppendDetail(session, "CREATED", enums.SyncOutcomeSuccess, "", time.Now().UTC())
		require.NoError(t, err)
	}

	session, err = IncrementProcessed(session)
	require.NoError(t, err)
	session, err = IncrementError(session)
	require.NoError(t, err)
	session, err = AppendDetail(session, "UPDATE", enums.SyncOutcomeError, "timeout", time.Now().UTC())
	require.NoError(t, err)

	session, err = Complete(session, time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, 4, session.TotalProcessed)
	assert.Equal(t, 3, session.SuccessCount)
	assert.Equal(t, 1, session.ErrorCount)
	assert.Equal(t, 75.0, SuccessRate(session))
	assert.Equal(t, enums.SyncStatusCompleted, session.Status)

	require.Len(t, session.Details, 4)
	for i, detail := range session.Details {
		assert.Equal(t, i+1, detail.Sequence)
	}
	assert.Equal(t, enums.SyncOutcomeError, session.Details[3].Outcome)
	require.NotNil(t, session.Details[3].Result)
	assert.Equal(t, "timeout", *session.Details[3].Result)
	assert.Nil(t, session.Details[0].Result)
}

func TestAppendDetailAllowedOnTerminalSession(t *testing.T) {
	session, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)
	session, err = Complete(session, time.Now().UTC())
	require.NoError(t, err)

	// late-arriving outcomes still land in the audit trail
	appended, err := AppendDetail(session, "CLEANUP", enums.SyncOutcomeSuccess, "", time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, appended.Details, 1)
}

func TestSuccessRateEmptySessionIsFullSuccess(t *testing.T) {
	session, err := Start(enums.SyncTypeManual, "user1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 100.0, SuccessRate(session))
}

func TestDurationMinutes(t *testing.T) {
	started := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	session := models.SyncSession{
		ID:        uuid.New(),
		Status:    enums.SyncStatusInProgress,
		StartedAt: started,
	}

	// still running: measured against "now"
	assert.Equal(t, 30.0, DurationMinutes(session, started.Add(30*time.Minute)))

	// terminal: measured against completedAt, "now" ignored
	done := started.Add(45 * time.Minute)
	session.CompletedAt = &done
	assert.Equal(t, 45.0, DurationMinutes(session, started.Add(2*time.Hour)))

	// clock skew never yields a negative duration
	skewed := started.Add(-time.Minute)
	session.CompletedAt = &skewed
	assert.Equal(t, 0.0, DurationMinutes(session, time.Time{}))
}

func TestRestoreRoundTripsVerbatim(t *testing.T) {
	id := uuid.New()
	started := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	completed := started.Add(20 * time.Minute)
	errDetails := "  partial outage  " // deliberately un-normalized
	trigger := "ops@tempora.dev"
	detail := RestoreDetail(uuid.New(), id, 1, nil, enums.SyncOutcomeError, &errDetails, started.Add(time.Minute))

	session := Restore(id, enums.SyncTypeScheduled, enums.SyncStatusFailed,
		started, &completed, 3, 2, 1, &errDetails, &trigger, []models.SyncDetail{detail})

	assert.Equal(t, id, session.ID)
	assert.Equal(t, enums.SyncTypeScheduled, session.Type)
	assert.Equal(t, enums.SyncStatusFailed, session.Status)
	assert.Equal(t, started, session.StartedAt)
	require.NotNil(t, session.CompletedAt)
	assert.Equal(t, completed, *session.CompletedAt)
	assert.Equal(t, 3, session.TotalProcessed)
	assert.Equal(t, 2, session.SuccessCount)
	assert.Equal(t, 1, session.ErrorCount)
	require.NotNil(t, session.ErrorDetails)
	assert.Equal(t, errDetails, *session.ErrorDetails)
	require.NotNil(t, session.TriggeredBy)
	assert.Equal(t, trigger, *session.TriggeredBy)
	require.Len(t, session.Details, 1)
	assert.Equal(t, detail, session.Details[0])
}
