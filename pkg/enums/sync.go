package enums

import "fmt"

// SyncType maps to the sync_type enum in Postgres.
type SyncType string

const (
	SyncTypeManual    SyncType = "MANUAL"
	SyncTypeScheduled SyncType = "SCHEDULED"
)

var validSyncTypes = []SyncType{
	SyncTypeManual,
	SyncTypeScheduled,
}

// IsValid reports whether the value matches the canonical sync_type enum.
func (s SyncType) IsValid() bool {
	for _, candidate := range validSyncTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSyncType converts raw input into SyncType.
func ParseSyncType(value string) (SyncType, error) {
	for _, candidate := range validSyncTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync type %q", value)
}

// SyncSessionStatus maps to the sync_session_status enum in Postgres.
type SyncSessionStatus string

const (
	SyncStatusInProgress SyncSessionStatus = "IN_PROGRESS"
	SyncStatusCompleted  SyncSessionStatus = "COMPLETED"
	SyncStatusFailed     SyncSessionStatus = "FAILED"
)

var validSyncSessionStatuses = []SyncSessionStatus{
	SyncStatusInProgress,
	SyncStatusCompleted,
	SyncStatusFailed,
}

// IsValid reports whether the value matches the canonical status enum.
func (s SyncSessionStatus) IsValid() bool {
	for _, candidate := range validSyncSessionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s SyncSessionStatus) IsTerminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed
}

// ParseSyncSessionStatus converts raw input into SyncSessionStatus.
func ParseSyncSessionStatus(value string) (SyncSessionStatus, error) {
	for _, candidate := range validSyncSessionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync session status %q", value)
}

// SyncOutcome maps to the sync_outcome enum in Postgres.
type SyncOutcome string

const (
	SyncOutcomeSuccess SyncOutcome = "SUCCESS"
	SyncOutcomeError   SyncOutcome = "ERROR"
)

var validSyncOutcomes = []SyncOutcome{
	SyncOutcomeSuccess,
	SyncOutcomeError,
}

// IsValid reports whether the value matches the canonical outcome enum.
func (o SyncOutcome) IsValid() bool {
	for _, candidate := range validSyncOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseSyncOutcome converts raw input into SyncOutcome.
func ParseSyncOutcome(value string) (SyncOutcome, error) {
	for _, candidate := range validSyncOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync outcome %q", value)
}
