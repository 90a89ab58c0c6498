package entity

import (
	"time"

	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
)

// SessionOptions carries the feature flags and tuning knobs a caller submits
// with a batch session.
type SessionOptions struct {
	ExtractEntities    bool `json:"extract_entities"`
	ParseStatements    bool `json:"parse_statements"`
	GenerateEmbeddings bool `json:"generate_embeddings"`
	BatchSize          int  `json:"batch_size"`
	Concurrency        int  `json:"concurrency"`
}

// SessionError is one entry in a session's error log: a document that failed
// and why, kept so callers can enumerate and retry failures.
type SessionError struct {
	DocumentID uuid.UUID `json:"document_id"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BatchSession groups many documents processed together with checkpoint and
// resume semantics. Aggregate counters are only trusted at checkpoints.
type BatchSession struct {
	id                 uuid.UUID
	status             valueobject.SessionStatus
	documentIDs        []uuid.UUID
	documentsProcessed int
	documentsSucceeded int
	documentsFailed    int
	lastCheckpoint     *time.Time
	options            SessionOptions
	errorLog           []SessionError
	createdAt          time.Time
	updatedAt          time.Time
}

// NewBatchSession creates a session over an ordered set of document IDs.
func NewBatchSession(documentIDs []uuid.UUID, options SessionOptions) (*BatchSession, error) {
	if len(documentIDs) == 0 {
		return nil, NewDomainError("batch session requires at least one document", "EMPTY_SESSION")
	}
	seen := make(map[uuid.UUID]bool, len(documentIDs))
	for _, id := range documentIDs {
		if seen[id] {
			return nil, NewDomainError("duplicate document ID in session", "DUPLICATE_DOCUMENT")
		}
		seen[id] = true
	}
	now := time.Now()
	return &BatchSession{
		id:          uuid.New(),
		status:      valueobject.SessionStatusCreated,
		documentIDs: append([]uuid.UUID(nil), documentIDs...),
		options:     options,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// RestoreBatchSession creates a BatchSession entity from stored data.
func RestoreBatchSession(
	id uuid.UUID,
	status valueobject.SessionStatus,
	documentIDs []uuid.UUID,
	documentsProcessed int,
	documentsSucceeded int,
	documentsFailed int,
	lastCheckpoint *time.Time,
	options SessionOptions,
	errorLog []SessionError,
	createdAt time.Time,
	updatedAt time.Time,
) *BatchSession {
	return &BatchSession{
		id:                 id,
		status:             status,
		documentIDs:        documentIDs,
		documentsProcessed: documentsProcessed,
		documentsSucceeded: documentsSucceeded,
		documentsFailed:    documentsFailed,
		lastCheckpoint:     lastCheckpoint,
		options:            options,
		errorLog:           errorLog,
		createdAt:          createdAt,
		updatedAt:          updatedAt,
	}
}

// ID returns the session ID.
func (s *BatchSession) ID() uuid.UUID {
	return s.id
}

// Status returns the session status.
func (s *BatchSession) Status() valueobject.SessionStatus {
	return s.status
}

// DocumentIDs returns the ordered document IDs in the session.
func (s *BatchSession) DocumentIDs() []uuid.UUID {
	return s.documentIDs
}

// DocumentsProcessed returns the checkpointed processed count.
func (s *BatchSession) DocumentsProcessed() int {
	return s.documentsProcessed
}

// DocumentsSucceeded returns the checkpointed success count.
func (s *BatchSession) DocumentsSucceeded() int {
	return s.documentsSucceeded
}

// DocumentsFailed returns the checkpointed failure count.
func (s *BatchSession) DocumentsFailed() int {
	return s.documentsFailed
}

// LastCheckpoint returns the timestamp of the last durably flushed
// aggregate state.
func (s *BatchSession) LastCheckpoint() *time.Time {
	return s.lastCheckpoint
}

// Options returns the session options.
func (s *BatchSession) Options() SessionOptions {
	return s.options
}

// ErrorLog returns the per-document error records.
func (s *BatchSession) ErrorLog() []SessionError {
	return s.errorLog
}

// CreatedAt returns the creation timestamp.
func (s *BatchSession) CreatedAt() time.Time {
	return s.createdAt
}

// UpdatedAt returns the last update timestamp.
func (s *BatchSession) UpdatedAt() time.Time {
	return s.updatedAt
}

// IsTerminal returns true if the session is in a terminal state.
func (s *BatchSession) IsTerminal() bool {
	return s.status.IsTerminal()
}

// ProgressPercentage returns processed documents over total as a percentage.
func (s *BatchSession) ProgressPercentage() float64 {
	if len(s.documentIDs) == 0 {
		return 0
	}
	return float64(s.documentsProcessed) / float64(len(s.documentIDs)) * 100
}

// Start marks the session running.
func (s *BatchSession) Start() error {
	if !s.status.CanTransitionTo(valueobject.SessionStatusRunning) {
		return NewDomainError("cannot start session in current status", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusRunning
	s.updatedAt = time.Now()
	return nil
}

// Pause stops dispatching further internal batches. In-flight work finishes.
func (s *BatchSession) Pause() error {
	if !s.status.CanTransitionTo(valueobject.SessionStatusPaused) {
		return NewDomainError("cannot pause session in current status", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusPaused
	s.updatedAt = time.Now()
	return nil
}

// Resume returns a paused session to running.
func (s *BatchSession) Resume() error {
	if s.status != valueobject.SessionStatusPaused {
		return NewDomainError("only paused sessions can be resumed", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusRunning
	s.updatedAt = time.Now()
	return nil
}

// Cancel marks the session cancelled. No further batches dispatch.
func (s *BatchSession) Cancel() error {
	if !s.status.CanTransitionTo(valueobject.SessionStatusCancelled) {
		return NewDomainError("cannot cancel session in current status", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusCancelled
	s.updatedAt = time.Now()
	return nil
}

// Complete marks the session completed once every document is processed.
func (s *BatchSession) Complete() error {
	if !s.status.CanTransitionTo(valueobject.SessionStatusCompleted) {
		return NewDomainError("cannot complete session in current status", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusCompleted
	s.updatedAt = time.Now()
	return nil
}

// Fail marks the session failed on a structural error.
func (s *BatchSession) Fail() error {
	if !s.status.CanTransitionTo(valueobject.SessionStatusFailed) {
		return NewDomainError("cannot fail session in current status", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusFailed
	s.updatedAt = time.Now()
	return nil
}

// Checkpoint records the aggregate state after a fully flushed internal
// batch. Processed must equal succeeded plus failed and counts never move
// backwards.
func (s *BatchSession) Checkpoint(processed, succeeded, failed int) error {
	if processed != succeeded+failed {
		return NewDomainError("processed must equal succeeded plus failed", "CHECKPOINT_INVARIANT_VIOLATED")
	}
	if processed < s.documentsProcessed {
		return NewDomainError("checkpoint cannot move backwards", "CHECKPOINT_INVARIANT_VIOLATED")
	}
	if processed > len(s.documentIDs) {
		return NewDomainError("processed exceeds session document count", "CHECKPOINT_INVARIANT_VIOLATED")
	}
	now := time.Now()
	s.documentsProcessed = processed
	s.documentsSucceeded = succeeded
	s.documentsFailed = failed
	s.lastCheckpoint = &now
	s.updatedAt = now
	return nil
}

// ReopenForRetry returns a completed or failed session to running so its
// failed documents can be re-queued. This is the only path by which a
// terminal session reopens.
func (s *BatchSession) ReopenForRetry() error {
	if s.status != valueobject.SessionStatusCompleted && s.status != valueobject.SessionStatusFailed {
		return NewDomainError("only completed or failed sessions can be reopened for retry", "INVALID_STATUS_TRANSITION")
	}
	s.status = valueobject.SessionStatusRunning
	s.updatedAt = time.Now()
	return nil
}

// ReopenFailedDocuments rewinds the aggregate counters when failed
// documents are reset to pending by retry-failed, so the next checkpoint
// does not appear to move backwards.
func (s *BatchSession) ReopenFailedDocuments(count int) error {
	if count < 0 || count > s.documentsFailed {
		return NewDomainError("reopen count exceeds failed documents", "INVALID_UNIT_COUNT")
	}
	s.documentsFailed -= count
	s.documentsProcessed -= count
	s.updatedAt = time.Now()
	return nil
}

// RecordError appends a per-document failure to the session error log.
func (s *BatchSession) RecordError(documentID uuid.UUID, message string) {
	s.errorLog = append(s.errorLog, SessionError{
		DocumentID: documentID,
		Message:    message,
		OccurredAt: time.Now(),
	})
	s.updatedAt = time.Now()
}
