package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

// TimesheetSubmittedEvent signals an employee submitted a timesheet for review.
type TimesheetSubmittedEvent struct {
	TimesheetID uuid.UUID `json:"timesheet_id"`
	EmployeeID  uuid.UUID `json:"employee_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	TotalHours  float64   `json:"total_hours"`
}

// TimesheetUpdatedEvent is emitted when a submitted timesheet is corrected.
type TimesheetUpdatedEvent struct {
	TimesheetID uuid.UUID `json:"timesheet_id"`
	EmployeeID  uuid.UUID `json:"employee_id"`
	TotalHours  float64   `json:"total_hours"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApprovalDecidedEvent carries an approver's decision on a timesheet.
type ApprovalDecidedEvent struct {
	ApprovalID  uuid.UUID `json:"approval_id"`
	TimesheetID uuid.UUID `json:"timesheet_id"`
	ApproverID  uuid.UUID `json:"approver_id"`
	Approved    bool      `json:"approved"`
	Comment     string    `json:"comment,omitempty"`
	DecidedAt   time.Time `json:"decided_at"`
}

// ApprovalRevokedEvent is emitted when a prior approval is withdrawn.
type ApprovalRevokedEvent struct {
	ApprovalID  uuid.UUID `json:"approval_id"`
	TimesheetID uuid.UUID `json:"timesheet_id"`
	ApproverID  uuid.UUID `json:"approver_id"`
	Reason      string    `json:"reason,omitempty"`
	RevokedAt   time.Time `json:"revoked_at"`
}

// SyncCompletedEvent reports the final counters of a finished sync session.
type SyncCompletedEvent struct {
	SessionID      uuid.UUID      `json:"session_id"`
	Type           enums.SyncType `json:"type"`
	TotalProcessed int            `json:"total_processed"`
	SuccessCount   int            `json:"success_count"`
	ErrorCount     int            `json:"error_count"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// SyncFailedEvent reports a sync session that ended in failure.
type SyncFailedEvent struct {
	SessionID      uuid.UUID      `json:"session_id"`
	Type           enums.SyncType `json:"type"`
	TotalProcessed int            `json:"total_processed"`
	ErrorCount     int            `json:"error_count"`
	ErrorDetails   string         `json:"error_details,omitempty"`
	FailedAt       time.Time      `json:"failed_at"`
}
