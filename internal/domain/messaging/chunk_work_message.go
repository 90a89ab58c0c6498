// Package messaging defines the wire-level message types exchanged with the
// dispatch facility. Dispatch is at-least-once with no ordering guarantee,
// so every consumer of these messages must be safe to re-invoke.
package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ChunkWorkMessage is the unit-of-work message dispatched for one chunk.
type ChunkWorkMessage struct {
	MessageID     string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	JobID         uuid.UUID `json:"job_id"`
	DocumentID    uuid.UUID `json:"document_id"`
	ChunkID       uuid.UUID `json:"chunk_id"`
	ChunkIndex    int       `json:"chunk_index"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewChunkWorkMessage creates a dispatch message for one chunk.
func NewChunkWorkMessage(jobID, documentID, chunkID uuid.UUID, chunkIndex int) ChunkWorkMessage {
	return ChunkWorkMessage{
		MessageID:  uuid.New().String(),
		JobID:      jobID,
		DocumentID: documentID,
		ChunkID:    chunkID,
		ChunkIndex: chunkIndex,
		Timestamp:  time.Now(),
	}
}

// Validate checks that the message references real work.
func (m ChunkWorkMessage) Validate() error {
	if m.JobID == uuid.Nil {
		return errors.New("chunk work message requires a job ID")
	}
	if m.DocumentID == uuid.Nil {
		return errors.New("chunk work message requires a document ID")
	}
	if m.ChunkID == uuid.Nil {
		return errors.New("chunk work message requires a chunk ID")
	}
	if m.ChunkIndex < 0 {
		return errors.New("chunk index cannot be negative")
	}
	return nil
}
