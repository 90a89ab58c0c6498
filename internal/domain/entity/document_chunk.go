package entity

import (
	"time"

	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
)

// DocumentChunk represents one bounded slice of a document's extracted
// content: the unit of extraction and embedding work. Chunks are created in
// bulk when chunking starts and mutated only by the chunk processor.
type DocumentChunk struct {
	id           uuid.UUID
	documentID   uuid.UUID
	jobID        uuid.UUID
	chunkIndex   int
	status       valueobject.ChunkStatus
	contentText  string
	embedding    []float32
	startOffset  int
	endOffset    int
	pageNumber   *int
	errorMessage *string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewDocumentChunk creates a pending chunk covering the half-open rune range
// [startOffset, endOffset) of the document's extracted text.
func NewDocumentChunk(documentID, jobID uuid.UUID, chunkIndex, startOffset, endOffset int) (*DocumentChunk, error) {
	if chunkIndex < 0 {
		return nil, NewDomainError("chunk index cannot be negative", "INVALID_CHUNK_INDEX")
	}
	if endOffset < startOffset {
		return nil, NewDomainError("chunk range end precedes start", "INVALID_CHUNK_RANGE")
	}
	now := time.Now()
	return &DocumentChunk{
		id:          uuid.New(),
		documentID:  documentID,
		jobID:       jobID,
		chunkIndex:  chunkIndex,
		status:      valueobject.ChunkStatusPending,
		startOffset: startOffset,
		endOffset:   endOffset,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// RestoreDocumentChunk creates a DocumentChunk entity from stored data.
func RestoreDocumentChunk(
	id uuid.UUID,
	documentID uuid.UUID,
	jobID uuid.UUID,
	chunkIndex int,
	status valueobject.ChunkStatus,
	contentText string,
	embedding []float32,
	startOffset int,
	endOffset int,
	pageNumber *int,
	errorMessage *string,
	createdAt time.Time,
	updatedAt time.Time,
) *DocumentChunk {
	return &DocumentChunk{
		id:           id,
		documentID:   documentID,
		jobID:        jobID,
		chunkIndex:   chunkIndex,
		status:       status,
		contentText:  contentText,
		embedding:    embedding,
		startOffset:  startOffset,
		endOffset:    endOffset,
		pageNumber:   pageNumber,
		errorMessage: errorMessage,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// ID returns the chunk ID.
func (c *DocumentChunk) ID() uuid.UUID {
	return c.id
}

// DocumentID returns the owning document's ID.
func (c *DocumentChunk) DocumentID() uuid.UUID {
	return c.documentID
}

// JobID returns the processing job that produced this chunk.
func (c *DocumentChunk) JobID() uuid.UUID {
	return c.jobID
}

// ChunkIndex returns the zero-based position of the chunk within its
// document. Indexes are contiguous and unique per document.
func (c *DocumentChunk) ChunkIndex() int {
	return c.chunkIndex
}

// Status returns the chunk's processing status.
func (c *DocumentChunk) Status() valueobject.ChunkStatus {
	return c.status
}

// ContentText returns the extracted chunk content.
func (c *DocumentChunk) ContentText() string {
	return c.contentText
}

// Embedding returns the embedding vector, or nil if none was generated.
func (c *DocumentChunk) Embedding() []float32 {
	return c.embedding
}

// StartOffset returns the chunk's start rune offset in the document text.
func (c *DocumentChunk) StartOffset() int {
	return c.startOffset
}

// EndOffset returns the chunk's end rune offset in the document text.
func (c *DocumentChunk) EndOffset() int {
	return c.endOffset
}

// PageNumber returns the source page number, when the strategy tracks one.
func (c *DocumentChunk) PageNumber() *int {
	return c.pageNumber
}

// ErrorMessage returns the recorded failure message, if any.
func (c *DocumentChunk) ErrorMessage() *string {
	return c.errorMessage
}

// CreatedAt returns the creation timestamp.
func (c *DocumentChunk) CreatedAt() time.Time {
	return c.createdAt
}

// UpdatedAt returns the last update timestamp.
func (c *DocumentChunk) UpdatedAt() time.Time {
	return c.updatedAt
}

// SetPageNumber records the source page for page-based chunking.
func (c *DocumentChunk) SetPageNumber(page int) {
	c.pageNumber = &page
	c.updatedAt = time.Now()
}

// StartProcessing claims the chunk for processing.
func (c *DocumentChunk) StartProcessing() error {
	if !c.status.CanTransitionTo(valueobject.ChunkStatusProcessing) {
		return NewDomainError("cannot process chunk in current status", "INVALID_STATUS_TRANSITION")
	}
	c.status = valueobject.ChunkStatusProcessing
	c.updatedAt = time.Now()
	return nil
}

// Complete stores the extracted content and optional embedding and marks the
// chunk completed.
func (c *DocumentChunk) Complete(contentText string, embedding []float32) error {
	if !c.status.CanTransitionTo(valueobject.ChunkStatusCompleted) {
		return NewDomainError("cannot complete chunk in current status", "INVALID_STATUS_TRANSITION")
	}
	c.status = valueobject.ChunkStatusCompleted
	c.contentText = contentText
	c.embedding = embedding
	c.errorMessage = nil
	c.updatedAt = time.Now()
	return nil
}

// Fail records a failure message and marks the chunk failed.
func (c *DocumentChunk) Fail(errorMessage string) error {
	if !c.status.CanTransitionTo(valueobject.ChunkStatusFailed) {
		return NewDomainError("cannot fail chunk in current status", "INVALID_STATUS_TRANSITION")
	}
	c.status = valueobject.ChunkStatusFailed
	c.errorMessage = &errorMessage
	c.updatedAt = time.Now()
	return nil
}

// Skip marks the chunk skipped.
func (c *DocumentChunk) Skip() error {
	if !c.status.CanTransitionTo(valueobject.ChunkStatusSkipped) {
		return NewDomainError("cannot skip chunk in current status", "INVALID_STATUS_TRANSITION")
	}
	c.status = valueobject.ChunkStatusSkipped
	c.updatedAt = time.Now()
	return nil
}

// ResetForRetry returns a failed chunk to pending. This is the only path by
// which a chunk regresses, and it is reachable only through the job
// orchestrator's retry operation.
func (c *DocumentChunk) ResetForRetry() error {
	if !c.status.CanTransitionTo(valueobject.ChunkStatusPending) {
		return NewDomainError("only failed chunks can be retried", "INVALID_STATUS_TRANSITION")
	}
	c.status = valueobject.ChunkStatusPending
	c.errorMessage = nil
	c.updatedAt = time.Now()
	return nil
}
