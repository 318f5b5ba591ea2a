package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

// SyncSession is the audit record of one run of the external ticketing sync.
// Counters and status are only mutated through the syncsession transition
// functions; rows are never deleted (retention policy lives outside the core).
type SyncSession struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type           enums.SyncType          `gorm:"column:type;type:sync_type_enum;not null"`
	Status         enums.SyncSessionStatus `gorm:"column:status;type:sync_session_status_enum;not null"`
	StartedAt      time.Time               `gorm:"column:started_at;not null"`
	CompletedAt    *time.Time              `gorm:"column:completed_at"`
	TotalProcessed int                     `gorm:"column:total_processed;not null;default:0"`
	SuccessCount   int                     `gorm:"column:success_count;not null;default:0"`
	ErrorCount     int                     `gorm:"column:error_count;not null;default:0"`
	ErrorDetails   *string                 `gorm:"column:error_details"`
	TriggeredBy    *string                 `gorm:"column:triggered_by"`
	Details        []SyncDetail            `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
