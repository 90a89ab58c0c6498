package valueobject

import "fmt"

// SessionStatus represents the lifecycle state of a batch session.
type SessionStatus string

// Session status constants.
const (
	SessionStatusCreated   SessionStatus = "created"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusFailed    SessionStatus = "failed"
)

var validSessionStatuses = map[SessionStatus]bool{
	SessionStatusCreated:   true,
	SessionStatusRunning:   true,
	SessionStatusPaused:    true,
	SessionStatusCompleted: true,
	SessionStatusCancelled: true,
	SessionStatusFailed:    true,
}

// sessionStatusTransitions is the closed transition table for sessions.
// paused -> running is the resume edge; cancel is reachable from any
// non-terminal state.
var sessionStatusTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusCreated: {
		SessionStatusRunning,
		SessionStatusCancelled,
	},
	SessionStatusRunning: {
		SessionStatusPaused,
		SessionStatusCompleted,
		SessionStatusCancelled,
		SessionStatusFailed,
	},
	SessionStatusPaused: {
		SessionStatusRunning,
		SessionStatusCancelled,
	},
	// completed and failed reopen to running only through the authorized
	// retry-failed operation.
	SessionStatusCompleted: {
		SessionStatusRunning,
	},
	SessionStatusCancelled: {},
	SessionStatusFailed: {
		SessionStatusRunning,
	},
}

// NewSessionStatus creates a new SessionStatus with validation.
func NewSessionStatus(status string) (SessionStatus, error) {
	s := SessionStatus(status)
	if !validSessionStatuses[s] {
		return "", fmt.Errorf("invalid session status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s SessionStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled || s == SessionStatusFailed
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s SessionStatus) CanTransitionTo(target SessionStatus) bool {
	validTransitions, exists := sessionStatusTransitions[s]
	if !exists {
		return false
	}
	for _, validTarget := range validTransitions {
		if target == validTarget {
			return true
		}
	}
	return false
}
