package types

import "fmt"

// DispatchStatus is the state of a row in the dispatch ledger
type DispatchStatus string

const (
	DispatchStatusPending  DispatchStatus = "pending"
	DispatchStatusExecuted DispatchStatus = "executed"
	DispatchStatusFailed   DispatchStatus = "failed"
	DispatchStatusSkipped  DispatchStatus = "skipped"
)

// AllDispatchStatuses returns all valid dispatch statuses
func AllDispatchStatuses() []DispatchStatus {
	return []DispatchStatus{
		DispatchStatusPending,
		DispatchStatusExecuted,
		DispatchStatusFailed,
		DispatchStatusSkipped,
	}
}

// IsValid checks if the dispatch status is valid
func (s DispatchStatus) IsValid() bool {
	switch s {
	case DispatchStatusPending,
		DispatchStatusExecuted,
		DispatchStatusFailed,
		DispatchStatusSkipped:
		return true
	default:
		return false
	}
}

func (s DispatchStatus) String() string {
	return string(s)
}

// ParseDispatchStatus parses a string into a DispatchStatus
func ParseDispatchStatus(s string) (DispatchStatus, error) {
	v := DispatchStatus(s)
	if !v.IsValid() {
		return "", fmt.Errorf("invalid dispatch status: %s", s)
	}
	return v, nil
}
