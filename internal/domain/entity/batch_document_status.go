package entity

import (
	"time"

	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
)

// BatchDocumentStatus tracks one document's state within a batch session.
// It is read before a document is processed so a resumed session can skip
// documents that already completed.
type BatchDocumentStatus struct {
	sessionID    uuid.UUID
	documentID   uuid.UUID
	state        valueobject.DocumentState
	result       map[string]any
	errorMessage *string
	updatedAt    time.Time
}

// NewBatchDocumentStatus creates a pending per-document status record.
func NewBatchDocumentStatus(sessionID, documentID uuid.UUID) *BatchDocumentStatus {
	return &BatchDocumentStatus{
		sessionID:  sessionID,
		documentID: documentID,
		state:      valueobject.DocumentStatePending,
		updatedAt:  time.Now(),
	}
}

// RestoreBatchDocumentStatus creates a BatchDocumentStatus from stored data.
func RestoreBatchDocumentStatus(
	sessionID uuid.UUID,
	documentID uuid.UUID,
	state valueobject.DocumentState,
	result map[string]any,
	errorMessage *string,
	updatedAt time.Time,
) *BatchDocumentStatus {
	return &BatchDocumentStatus{
		sessionID:    sessionID,
		documentID:   documentID,
		state:        state,
		result:       result,
		errorMessage: errorMessage,
		updatedAt:    updatedAt,
	}
}

// SessionID returns the owning session's ID.
func (d *BatchDocumentStatus) SessionID() uuid.UUID {
	return d.sessionID
}

// DocumentID returns the document's ID.
func (d *BatchDocumentStatus) DocumentID() uuid.UUID {
	return d.documentID
}

// State returns the document's state within the session.
func (d *BatchDocumentStatus) State() valueobject.DocumentState {
	return d.state
}

// Result returns the last result snapshot for the document.
func (d *BatchDocumentStatus) Result() map[string]any {
	return d.result
}

// ErrorMessage returns the recorded failure message, if any.
func (d *BatchDocumentStatus) ErrorMessage() *string {
	return d.errorMessage
}

// UpdatedAt returns the last update timestamp.
func (d *BatchDocumentStatus) UpdatedAt() time.Time {
	return d.updatedAt
}

// StartProcessing claims the document for processing.
func (d *BatchDocumentStatus) StartProcessing() error {
	if !d.state.CanTransitionTo(valueobject.DocumentStateProcessing) {
		return NewDomainError("cannot process document in current state", "INVALID_STATUS_TRANSITION")
	}
	d.state = valueobject.DocumentStateProcessing
	d.updatedAt = time.Now()
	return nil
}

// Complete stores the result snapshot and marks the document completed.
func (d *BatchDocumentStatus) Complete(result map[string]any) error {
	if !d.state.CanTransitionTo(valueobject.DocumentStateCompleted) {
		return NewDomainError("cannot complete document in current state", "INVALID_STATUS_TRANSITION")
	}
	d.state = valueobject.DocumentStateCompleted
	d.result = result
	d.errorMessage = nil
	d.updatedAt = time.Now()
	return nil
}

// Fail records a failure message and marks the document failed.
func (d *BatchDocumentStatus) Fail(errorMessage string) error {
	if !d.state.CanTransitionTo(valueobject.DocumentStateFailed) {
		return NewDomainError("cannot fail document in current state", "INVALID_STATUS_TRANSITION")
	}
	d.state = valueobject.DocumentStateFailed
	d.errorMessage = &errorMessage
	d.updatedAt = time.Now()
	return nil
}

// ResetForRetry returns a failed document to pending so retry-failed can
// re-queue it.
func (d *BatchDocumentStatus) ResetForRetry() error {
	if !d.state.CanTransitionTo(valueobject.DocumentStatePending) {
		return NewDomainError("only failed documents can be retried", "INVALID_STATUS_TRANSITION")
	}
	d.state = valueobject.DocumentStatePending
	d.errorMessage = nil
	d.updatedAt = time.Now()
	return nil
}
