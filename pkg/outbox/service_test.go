package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/outbox/payloads"
)

func TestSaveWrapsDataInEnvelope(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	timesheetID := uuid.New()
	occurred := time.Now().UTC().Add(-time.Minute)
	actorID := uuid.New()

	err := svc.Save(context.Background(), db, DomainEvent{
		EventType:     enums.EventTimesheetSubmitted,
		AggregateType: enums.AggregateTimesheet,
		AggregateID:   timesheetID,
		Actor:         &ActorRef{UserID: actorID, Role: "employee"},
		Data: payloads.TimesheetSubmittedEvent{
			TimesheetID: timesheetID,
			EmployeeID:  actorID,
			TotalHours:  37.5,
		},
		OccurredAt: occurred,
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, enums.OutboxStatusPending, row.Status)
	assert.Equal(t, timesheetID, row.AggregateID)
	assert.Equal(t, 0, row.RetryCount)
	assert.Equal(t, timesheetID.String(), row.PartitionKey)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, row.EventID.String(), envelope.EventID)
	assert.WithinDuration(t, occurred, envelope.OccurredAt, time.Second)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actorID, envelope.Actor.UserID)

	var data payloads.TimesheetSubmittedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, 37.5, data.TotalHours)
}

func TestSaveDefaultsOccurredAtAndVersion(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Save(context.Background(), db, DomainEvent{
		EventType:     enums.EventSyncCompleted,
		AggregateType: enums.AggregateSyncSession,
		AggregateID:   uuid.New(),
		Data:          map[string]any{"total_processed": 3},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.WithinDuration(t, time.Now().UTC(), row.OccurredAt, time.Minute)
}

func TestSaveRejectsUnserializablePayload(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Save(context.Background(), db, DomainEvent{
		EventType:     enums.EventTimesheetSubmitted,
		AggregateType: enums.AggregateTimesheet,
		AggregateID:   uuid.New(),
		Data:          make(chan int),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSerialization))

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestSaveValidatesEvent(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Save(context.Background(), db, DomainEvent{
		EventType:     enums.OutboxEventType("not_a_thing"),
		AggregateType: enums.AggregateTimesheet,
		AggregateID:   uuid.New(),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	err = svc.Save(context.Background(), db, DomainEvent{
		EventType:     enums.EventTimesheetSubmitted,
		AggregateType: enums.AggregateTimesheet,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	err = svc.Save(context.Background(), nil, DomainEvent{
		EventType:     enums.EventTimesheetSubmitted,
		AggregateType: enums.AggregateTimesheet,
		AggregateID:   uuid.New(),
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
}

func TestSaveHonorsExplicitPartitionKey(t *testing.T) {
	db := setupOutboxTestDB(t)
	svc := NewService(NewRepository(db), nil)

	err := svc.Save(context.Background(), db, DomainEvent{
		EventType:     enums.EventApprovalDecided,
		AggregateType: enums.AggregateApproval,
		AggregateID:   uuid.New(),
		PartitionKey:  "employee:42",
		Data:          map[string]any{},
	})
	require.NoError(t, err)

	var row models.OutboxEvent
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, "employee:42", row.PartitionKey)
}
