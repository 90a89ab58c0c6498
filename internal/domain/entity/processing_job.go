package entity

import (
	"time"

	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
)

// ProcessingJob represents an asynchronous unit of tracked work over one
// document: chunking, extraction and embedding of every chunk, with
// aggregate progress counters.
type ProcessingJob struct {
	id             uuid.UUID
	documentID     uuid.UUID
	jobType        valueobject.JobType
	status         valueobject.JobStatus
	totalUnits     int
	completedUnits int
	failedUnits    int
	errorMessage   *string
	metadata       map[string]any
	createdAt      time.Time
	startedAt      *time.Time
	completedAt    *time.Time
	updatedAt      time.Time
}

// NewProcessingJob creates a new ProcessingJob entity in pending status.
func NewProcessingJob(documentID uuid.UUID, jobType valueobject.JobType, metadata map[string]any) *ProcessingJob {
	now := time.Now()
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &ProcessingJob{
		id:         uuid.New(),
		documentID: documentID,
		jobType:    jobType,
		status:     valueobject.JobStatusPending,
		metadata:   metadata,
		createdAt:  now,
		updatedAt:  now,
	}
}

// RestoreProcessingJob creates a ProcessingJob entity from stored data.
func RestoreProcessingJob(
	id uuid.UUID,
	documentID uuid.UUID,
	jobType valueobject.JobType,
	status valueobject.JobStatus,
	totalUnits int,
	completedUnits int,
	failedUnits int,
	errorMessage *string,
	metadata map[string]any,
	createdAt time.Time,
	startedAt *time.Time,
	completedAt *time.Time,
	updatedAt time.Time,
) *ProcessingJob {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &ProcessingJob{
		id:             id,
		documentID:     documentID,
		jobType:        jobType,
		status:         status,
		totalUnits:     totalUnits,
		completedUnits: completedUnits,
		failedUnits:    failedUnits,
		errorMessage:   errorMessage,
		metadata:       metadata,
		createdAt:      createdAt,
		startedAt:      startedAt,
		completedAt:    completedAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the job ID.
func (j *ProcessingJob) ID() uuid.UUID {
	return j.id
}

// DocumentID returns the owning document's ID.
func (j *ProcessingJob) DocumentID() uuid.UUID {
	return j.documentID
}

// JobType returns the job type.
func (j *ProcessingJob) JobType() valueobject.JobType {
	return j.jobType
}

// Status returns the current job status.
func (j *ProcessingJob) Status() valueobject.JobStatus {
	return j.status
}

// TotalUnits returns the total number of units of work.
func (j *ProcessingJob) TotalUnits() int {
	return j.totalUnits
}

// CompletedUnits returns the number of successfully completed units.
func (j *ProcessingJob) CompletedUnits() int {
	return j.completedUnits
}

// FailedUnits returns the number of failed units.
func (j *ProcessingJob) FailedUnits() int {
	return j.failedUnits
}

// ErrorMessage returns the recorded error message if the job failed.
func (j *ProcessingJob) ErrorMessage() *string {
	return j.errorMessage
}

// Metadata returns the free-form job metadata.
func (j *ProcessingJob) Metadata() map[string]any {
	return j.metadata
}

// CreatedAt returns the creation timestamp.
func (j *ProcessingJob) CreatedAt() time.Time {
	return j.createdAt
}

// StartedAt returns the job start timestamp.
func (j *ProcessingJob) StartedAt() *time.Time {
	return j.startedAt
}

// CompletedAt returns the job completion timestamp.
func (j *ProcessingJob) CompletedAt() *time.Time {
	return j.completedAt
}

// UpdatedAt returns the last update timestamp.
func (j *ProcessingJob) UpdatedAt() time.Time {
	return j.updatedAt
}

// IsTerminal returns true if the job is in a terminal state.
func (j *ProcessingJob) IsTerminal() bool {
	return j.status.IsTerminal()
}

// ProgressPercentage returns completed units over total as a percentage.
// A job with no units reports zero progress.
func (j *ProcessingJob) ProgressPercentage() float64 {
	if j.totalUnits == 0 {
		return 0
	}
	return float64(j.completedUnits) / float64(j.totalUnits) * 100
}

// AllUnitsTerminal returns true once every unit has reached a terminal state.
func (j *ProcessingJob) AllUnitsTerminal() bool {
	return j.totalUnits > 0 && j.completedUnits+j.failedUnits >= j.totalUnits
}

// SetTotalUnits fixes the total unit count once chunking has determined it.
// Only allowed before the job reaches a terminal state.
func (j *ProcessingJob) SetTotalUnits(total int) error {
	if j.IsTerminal() {
		return NewDomainError("cannot change unit count of a terminal job", "COUNTERS_FROZEN")
	}
	if total < 0 {
		return NewDomainError("total units cannot be negative", "INVALID_UNIT_COUNT")
	}
	j.totalUnits = total
	j.updatedAt = time.Now()
	return nil
}

// UpdateProgress applies fresh counter values read back from storage.
// Counters are frozen once the job is terminal, and completed plus failed
// units can never exceed the total.
func (j *ProcessingJob) UpdateProgress(completedUnits, failedUnits int) error {
	if j.IsTerminal() {
		return NewDomainError("counters are frozen on a terminal job", "COUNTERS_FROZEN")
	}
	if completedUnits < 0 || failedUnits < 0 {
		return NewDomainError("unit counters cannot be negative", "INVALID_UNIT_COUNT")
	}
	if completedUnits+failedUnits > j.totalUnits {
		return NewDomainError("completed plus failed units exceed total units", "COUNTER_INVARIANT_VIOLATED")
	}
	j.completedUnits = completedUnits
	j.failedUnits = failedUnits
	j.updatedAt = time.Now()
	return nil
}

// Start marks the job as running when the first unit of work begins.
func (j *ProcessingJob) Start() error {
	if !j.status.CanTransitionTo(valueobject.JobStatusRunning) {
		return NewDomainError("cannot start job in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	j.status = valueobject.JobStatusRunning
	j.startedAt = &now
	j.updatedAt = now
	return nil
}

// Complete marks the job as completed successfully.
func (j *ProcessingJob) Complete() error {
	if !j.status.CanTransitionTo(valueobject.JobStatusCompleted) {
		return NewDomainError("cannot complete job in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	j.status = valueobject.JobStatusCompleted
	j.completedAt = &now
	j.errorMessage = nil
	j.updatedAt = now
	return nil
}

// Fail marks the job as failed and records the error message in both the
// error column and the metadata error key.
func (j *ProcessingJob) Fail(errorMessage string) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusFailed) {
		return NewDomainError("cannot fail job in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	j.status = valueobject.JobStatusFailed
	j.completedAt = &now
	j.errorMessage = &errorMessage
	j.metadata["error"] = errorMessage
	j.updatedAt = now
	return nil
}

// Cancel marks the job as cancelled.
func (j *ProcessingJob) Cancel() error {
	if !j.status.CanTransitionTo(valueobject.JobStatusCancelled) {
		return NewDomainError("cannot cancel job in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	j.status = valueobject.JobStatusCancelled
	j.completedAt = &now
	j.updatedAt = now
	return nil
}

// ReopenForRetry returns a failed job to running so its failed chunks can
// be retried. This is the only path by which a terminal job reopens.
func (j *ProcessingJob) ReopenForRetry() error {
	if j.status != valueobject.JobStatusFailed {
		return NewDomainError("only failed jobs can be reopened for retry", "INVALID_STATUS_TRANSITION")
	}

	j.status = valueobject.JobStatusRunning
	j.completedAt = nil
	j.errorMessage = nil
	delete(j.metadata, "error")
	j.updatedAt = time.Now()
	return nil
}

// ReopenFailedUnits rewinds the failed counter when failed chunks are reset
// to pending by an authorized retry. The job must not be terminal.
func (j *ProcessingJob) ReopenFailedUnits(count int) error {
	if j.IsTerminal() {
		return NewDomainError("cannot reopen units of a terminal job", "COUNTERS_FROZEN")
	}
	if count < 0 || count > j.failedUnits {
		return NewDomainError("reopen count exceeds failed units", "INVALID_UNIT_COUNT")
	}
	j.failedUnits -= count
	j.updatedAt = time.Now()
	return nil
}

// Equal compares two ProcessingJob entities by identity.
func (j *ProcessingJob) Equal(other *ProcessingJob) bool {
	if other == nil {
		return false
	}
	return j.id == other.id
}
