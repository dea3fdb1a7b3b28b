package enums

import "fmt"

// ProcessingStatus tracks a receipt through asynchronous extraction.
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

var validProcessingStatuses = []ProcessingStatus{
	ProcessingStatusPending,
	ProcessingStatusProcessing,
	ProcessingStatusCompleted,
	ProcessingStatusFailed,
}

// allowed successor states; completed and failed have none.
var processingTransitions = map[ProcessingStatus][]ProcessingStatus{
	ProcessingStatusPending:    {ProcessingStatusProcessing},
	ProcessingStatusProcessing: {ProcessingStatusCompleted, ProcessingStatusFailed},
}

// String implements fmt.Stringer.
func (s ProcessingStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s ProcessingStatus) IsValid() bool {
	for _, candidate := range validProcessingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ProcessingStatus) IsTerminal() bool {
	return s == ProcessingStatusCompleted || s == ProcessingStatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the forward-only lifecycle.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	for _, candidate := range processingTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// PredecessorsOf lists the states from which next may be entered. Used to
// build conditional UPDATE guards.
func PredecessorsOf(next ProcessingStatus) []ProcessingStatus {
	var out []ProcessingStatus
	for _, from := range validProcessingStatuses {
		if from.CanTransitionTo(next) {
			out = append(out, from)
		}
	}
	return out
}

// ParseProcessingStatus converts raw input into a ProcessingStatus.
func ParseProcessingStatus(value string) (ProcessingStatus, error) {
	for _, candidate := range validProcessingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid processing status %q", value)
}
