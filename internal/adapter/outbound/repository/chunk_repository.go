package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const chunkColumns = `id, document_id, job_id, chunk_index, status, content_text, embedding,
	start_offset, end_offset, page_number, error_message, created_at, updated_at`

// PostgreSQLChunkRepository implements the ChunkRepository interface.
type PostgreSQLChunkRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLChunkRepository creates a new PostgreSQL chunk repository.
func NewPostgreSQLChunkRepository(pool *pgxpool.Pool) *PostgreSQLChunkRepository {
	return &PostgreSQLChunkRepository{pool: pool}
}

// SaveBulk inserts chunks in one multi-row statement via pgx batching.
func (r *PostgreSQLChunkRepository) SaveBulk(ctx context.Context, chunks []*entity.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	query := `
		INSERT INTO caseindex.document_chunks (
			id, document_id, job_id, chunk_index, status, content_text, embedding,
			start_offset, end_offset, page_number, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		if chunk == nil {
			return ErrInvalidArgument
		}
		batch.Queue(query,
			chunk.ID(),
			chunk.DocumentID(),
			chunk.JobID(),
			chunk.ChunkIndex(),
			chunk.Status().String(),
			chunk.ContentText(),
			embeddingParam(chunk.Embedding()),
			chunk.StartOffset(),
			chunk.EndOffset(),
			chunk.PageNumber(),
			chunk.ErrorMessage(),
			chunk.CreatedAt(),
			chunk.UpdatedAt(),
		)
	}

	qi := GetQueryInterface(ctx, r.pool)
	results := qi.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return WrapError(err, "bulk save chunks")
		}
	}

	return nil
}

// FindByID finds a chunk by its ID.
func (r *PostgreSQLChunkRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.DocumentChunk, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + chunkColumns + ` FROM caseindex.document_chunks WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	chunk, err := scanChunk(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find chunk by ID")
	}
	return chunk, nil
}

// FindByJobID returns every chunk of a job in chunk-index order.
func (r *PostgreSQLChunkRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error) {
	return r.findChunks(ctx,
		`SELECT `+chunkColumns+` FROM caseindex.document_chunks WHERE job_id = $1 ORDER BY chunk_index ASC`,
		"find chunks by job", jobID)
}

// FindByDocumentID returns every chunk of a document in chunk-index order.
// Chunks are processed out of order, so consumers rely on this ordering.
func (r *PostgreSQLChunkRepository) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]*entity.DocumentChunk, error) {
	return r.findChunks(ctx,
		`SELECT `+chunkColumns+` FROM caseindex.document_chunks WHERE document_id = $1 ORDER BY chunk_index ASC`,
		"find chunks by document", documentID)
}

// FindByJobIDAndStatus returns a job's chunks in one status, in index order.
func (r *PostgreSQLChunkRepository) FindByJobIDAndStatus(
	ctx context.Context,
	jobID uuid.UUID,
	status valueobject.ChunkStatus,
) ([]*entity.DocumentChunk, error) {
	return r.findChunks(ctx,
		`SELECT `+chunkColumns+` FROM caseindex.document_chunks WHERE job_id = $1 AND status = $2 ORDER BY chunk_index ASC`,
		"find chunks by job and status", jobID, status.String())
}

// ClaimForProcessing performs the check-and-set that makes duplicate
// deliveries harmless: only a pending chunk transitions to processing, and
// a second delivery finds zero rows to update.
func (r *PostgreSQLChunkRepository) ClaimForProcessing(ctx context.Context, chunkID uuid.UUID) (bool, error) {
	if chunkID == uuid.Nil {
		return false, ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.document_chunks
		SET status = 'processing', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, chunkID)
	if err != nil {
		return false, WrapError(err, "claim chunk for processing")
	}
	return result.RowsAffected() > 0, nil
}

// MarkCompleted writes content and embedding and completes the chunk.
func (r *PostgreSQLChunkRepository) MarkCompleted(
	ctx context.Context,
	chunkID uuid.UUID,
	contentText string,
	embedding []float32,
) error {
	if chunkID == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.document_chunks
		SET status = 'completed', content_text = $2, embedding = $3,
			error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'processing'`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, chunkID, contentText, embeddingParam(embedding))
	if err != nil {
		return WrapError(err, "mark chunk completed")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "mark chunk completed")
	}
	return nil
}

// MarkFailed records the failure message and fails the chunk.
func (r *PostgreSQLChunkRepository) MarkFailed(ctx context.Context, chunkID uuid.UUID, errorMessage string) error {
	if chunkID == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.document_chunks
		SET status = 'failed', error_message = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'processing'`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, chunkID, errorMessage)
	if err != nil {
		return WrapError(err, "mark chunk failed")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "mark chunk failed")
	}
	return nil
}

// MarkSkipped marks a chunk skipped.
func (r *PostgreSQLChunkRepository) MarkSkipped(ctx context.Context, chunkID uuid.UUID) error {
	if chunkID == uuid.Nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.document_chunks
		SET status = 'skipped', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'processing')`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query, chunkID)
	if err != nil {
		return WrapError(err, "mark chunk skipped")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "mark chunk skipped")
	}
	return nil
}

// ResetFailedChunks returns a job's failed chunks to pending and reports the
// reset chunks. This is the only path that moves a chunk backwards.
func (r *PostgreSQLChunkRepository) ResetFailedChunks(ctx context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error) {
	if jobID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.document_chunks
		SET status = 'pending', error_message = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE job_id = $1 AND status = 'failed'
		RETURNING ` + chunkColumns

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, jobID)
	if err != nil {
		return nil, WrapError(err, "reset failed chunks")
	}
	defer rows.Close()

	var chunks []*entity.DocumentChunk
	for rows.Next() {
		chunk, scanErr := scanChunk(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "scan reset chunk row")
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate reset chunk rows")
	}

	sortChunksByIndex(chunks)
	return chunks, nil
}

// DeleteByJobID removes every chunk referencing a job. Used by the reaper's
// delete path before the job row goes.
func (r *PostgreSQLChunkRepository) DeleteByJobID(ctx context.Context, jobID uuid.UUID) (int, error) {
	if jobID == uuid.Nil {
		return 0, ErrInvalidArgument
	}

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, `DELETE FROM caseindex.document_chunks WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, WrapError(err, "delete chunks by job")
	}
	return int(result.RowsAffected()), nil
}

// DeleteByDocumentID clears a document's stale chunks before re-chunking.
func (r *PostgreSQLChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int, error) {
	if documentID == uuid.Nil {
		return 0, ErrInvalidArgument
	}

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, `DELETE FROM caseindex.document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, WrapError(err, "delete chunks by document")
	}
	return int(result.RowsAffected()), nil
}

func (r *PostgreSQLChunkRepository) findChunks(
	ctx context.Context,
	query string,
	operation string,
	args ...any,
) ([]*entity.DocumentChunk, error) {
	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, args...)
	if err != nil {
		return nil, WrapError(err, operation)
	}
	defer rows.Close()

	var chunks []*entity.DocumentChunk
	for rows.Next() {
		chunk, scanErr := scanChunk(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, operation)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, operation)
	}

	return chunks, nil
}

// embeddingParam maps a nil vector to a NULL column value.
func embeddingParam(embedding []float32) any {
	if embedding == nil {
		return nil
	}
	return pgvector.NewVector(embedding)
}

type chunkRow interface {
	Scan(dest ...any) error
}

func scanChunk(row chunkRow) (*entity.DocumentChunk, error) {
	var (
		id, documentID, jobID    uuid.UUID
		chunkIndex               int
		statusStr                string
		contentText              string
		embedding                *pgvector.Vector
		startOffset, endOffset   int
		pageNumber               *int
		errorMessage             *string
		createdAt, updatedAt     time.Time
	)

	err := row.Scan(
		&id, &documentID, &jobID, &chunkIndex, &statusStr, &contentText, &embedding,
		&startOffset, &endOffset, &pageNumber, &errorMessage, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	status, err := valueobject.NewChunkStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk status: %w", err)
	}

	var vector []float32
	if embedding != nil {
		vector = embedding.Slice()
	}

	return entity.RestoreDocumentChunk(
		id, documentID, jobID, chunkIndex, status, contentText, vector,
		startOffset, endOffset, pageNumber, errorMessage, createdAt, updatedAt,
	), nil
}

func sortChunksByIndex(chunks []*entity.DocumentChunk) {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex() < chunks[j].ChunkIndex()
	})
}
