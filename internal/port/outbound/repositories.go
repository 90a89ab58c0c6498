package outbound

import (
	"context"
	"time"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
)

// JobCounters is the fresh aggregate state returned by atomic counter
// operations, read in the same statement that performs the increment so the
// caller never works from stale values.
type JobCounters struct {
	TotalUnits     int
	CompletedUnits int
	FailedUnits    int
}

// AllTerminal returns true once every unit has reached a terminal state.
func (c JobCounters) AllTerminal() bool {
	return c.TotalUnits > 0 && c.CompletedUnits+c.FailedUnits >= c.TotalUnits
}

// JobRepository defines the outbound port for processing-job persistence.
// Counter increments are atomic at the storage layer; callers must never
// read-modify-write the unit counters.
type JobRepository interface {
	Save(ctx context.Context, job *entity.ProcessingJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error)
	FindByDocumentID(ctx context.Context, documentID uuid.UUID, filters JobFilters) ([]*entity.ProcessingJob, int, error)
	Update(ctx context.Context, job *entity.ProcessingJob) error
	Delete(ctx context.Context, id uuid.UUID) error

	// IncrementCompletedUnits atomically adds one completed unit and returns
	// the fresh counters. The increment is a no-op on terminal jobs.
	IncrementCompletedUnits(ctx context.Context, jobID uuid.UUID) (JobCounters, error)
	// IncrementFailedUnits atomically adds one failed unit and returns the
	// fresh counters. The increment is a no-op on terminal jobs.
	IncrementFailedUnits(ctx context.Context, jobID uuid.UUID) (JobCounters, error)
	// RewindFailedUnits atomically subtracts count failed units when failed
	// chunks are reset for retry, returning the fresh counters.
	RewindFailedUnits(ctx context.Context, jobID uuid.UUID, count int) (JobCounters, error)

	// FindStuck returns non-terminal jobs with zero completed units whose
	// last update is older than the cutoff. Used by the reaper only.
	FindStuck(ctx context.Context, updatedBefore time.Time) ([]*entity.ProcessingJob, error)
}

// JobFilters represents filters for job listing queries.
type JobFilters struct {
	Status *valueobject.JobStatus
	Limit  int
	Offset int
}

// ChunkRepository defines the outbound port for document-chunk persistence.
// All chunk mutation is scoped to a single row.
type ChunkRepository interface {
	SaveBulk(ctx context.Context, chunks []*entity.DocumentChunk) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.DocumentChunk, error)
	FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error)
	FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*entity.DocumentChunk, error)
	FindByJobIDAndStatus(ctx context.Context, jobID uuid.UUID, status valueobject.ChunkStatus) ([]*entity.DocumentChunk, error)

	// ClaimForProcessing transitions a pending chunk to processing with a
	// conditional write. It returns false without error when the chunk was
	// already claimed, which is how duplicate deliveries are absorbed.
	ClaimForProcessing(ctx context.Context, chunkID uuid.UUID) (bool, error)
	MarkCompleted(ctx context.Context, chunkID uuid.UUID, contentText string, embedding []float32) error
	MarkFailed(ctx context.Context, chunkID uuid.UUID, errorMessage string) error
	MarkSkipped(ctx context.Context, chunkID uuid.UUID) error

	// ResetFailedChunks returns every failed chunk of the job to pending and
	// reports the chunks that were reset, in chunk-index order.
	ResetFailedChunks(ctx context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error)

	DeleteByJobID(ctx context.Context, jobID uuid.UUID) (int, error)
	DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error)
}

// BatchSessionRepository defines the outbound port for batch-session
// persistence.
type BatchSessionRepository interface {
	Save(ctx context.Context, session *entity.BatchSession) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.BatchSession, error)
	// Update writes the full session row, status included. Used for state
	// transitions (start, pause, cancel, complete, reopen).
	Update(ctx context.Context, session *entity.BatchSession) error
	// Checkpoint flushes counters, error log and checkpoint timestamp in
	// one statement, leaving status untouched. A pause or cancel persisted
	// while a batch is in flight must survive this write.
	Checkpoint(ctx context.Context, session *entity.BatchSession) error
}

// BatchDocumentStatusRepository defines the outbound port for per-document
// session state.
type BatchDocumentStatusRepository interface {
	SaveAll(ctx context.Context, statuses []*entity.BatchDocumentStatus) error
	Find(ctx context.Context, sessionID, documentID uuid.UUID) (*entity.BatchDocumentStatus, error)
	FindBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.BatchDocumentStatus, error)
	Update(ctx context.Context, status *entity.BatchDocumentStatus) error
}
