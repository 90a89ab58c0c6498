package valueobject

import "fmt"

// JobStatus represents the current status of a processing job.
type JobStatus string

// Job status constants.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// validJobStatuses contains all valid job statuses.
var validJobStatuses = map[JobStatus]bool{
	JobStatusPending:   true,
	JobStatusRunning:   true,
	JobStatusCompleted: true,
	JobStatusFailed:    true,
	JobStatusCancelled: true,
}

// jobStatusTransitions is the closed transition table for job statuses.
// Statuses only move forward, with one authorized exception: a failed job
// reopens to running when its failed chunks are retried.
var jobStatusTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {
		JobStatusRunning,
		JobStatusFailed,
		JobStatusCancelled,
	},
	JobStatusRunning: {
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	},
	JobStatusCompleted: {},
	JobStatusFailed: {
		JobStatusRunning,
	},
	JobStatusCancelled: {},
}

// NewJobStatus creates a new JobStatus with validation.
func NewJobStatus(status string) (JobStatus, error) {
	s := JobStatus(status)
	if !validJobStatuses[s] {
		return "", fmt.Errorf("invalid job status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	validTransitions, exists := jobStatusTransitions[s]
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

// AllJobStatuses returns all valid job statuses.
func AllJobStatuses() []JobStatus {
	statuses := make([]JobStatus, 0, len(validJobStatuses))
	for status := range validJobStatuses {
		statuses = append(statuses, status)
	}
	return statuses
}
