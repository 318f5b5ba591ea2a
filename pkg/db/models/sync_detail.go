package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

// SyncDetail is one immutable per-item outcome inside a sync session.
// Sequence is assigned in append order starting at 1.
type SyncDetail struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID   uuid.UUID         `gorm:"column:session_id;type:uuid;not null;index"`
	Sequence    int               `gorm:"column:sequence;not null"`
	Operation   *string           `gorm:"column:operation"`
	Outcome     enums.SyncOutcome `gorm:"column:status;type:sync_outcome_enum;not null"`
	Result      *string           `gorm:"column:result"`
	ProcessedAt time.Time         `gorm:"column:processed_at;not null"`
}
