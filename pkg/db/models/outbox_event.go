package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

// OutboxEvent represents one domain event awaiting downstream delivery via the
// outbox pattern. Rows are inserted in the same transaction as the business
// change that produced them and drained by the outbox publisher.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID       uuid.UUID                 `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_outbox_events_event_id"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null;index"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	EventAction   string                    `gorm:"column:event_action;not null;default:''"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	Status        enums.OutboxStatus        `gorm:"column:status;type:outbox_status_enum;not null;default:PENDING"`
	PartitionKey  string                    `gorm:"column:partition_key;not null"`
	OccurredAt    time.Time                 `gorm:"column:occurred_at;not null;index"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	RetryCount    int                       `gorm:"column:retry_count;not null;default:0"`
	ErrorMessage  *string                   `gorm:"column:error_message"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
