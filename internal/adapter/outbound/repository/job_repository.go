package repository

import (
	"context"
	"fmt"
	"time"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, document_id, job_type, status, total_units, completed_units, failed_units,
	error_message, metadata, created_at, started_at, completed_at, updated_at`

// PostgreSQLJobRepository implements the JobRepository interface.
type PostgreSQLJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLJobRepository creates a new PostgreSQL job repository.
func NewPostgreSQLJobRepository(pool *pgxpool.Pool) *PostgreSQLJobRepository {
	return &PostgreSQLJobRepository{pool: pool}
}

// Save saves a processing job to the database.
func (r *PostgreSQLJobRepository) Save(ctx context.Context, job *entity.ProcessingJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO caseindex.processing_jobs (
			id, document_id, job_type, status, total_units, completed_units, failed_units,
			error_message, metadata, created_at, started_at, completed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		job.ID(),
		job.DocumentID(),
		job.JobType().String(),
		job.Status().String(),
		job.TotalUnits(),
		job.CompletedUnits(),
		job.FailedUnits(),
		job.ErrorMessage(),
		job.Metadata(),
		job.CreatedAt(),
		job.StartedAt(),
		job.CompletedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save processing job")
	}

	return nil
}

// FindByID finds a processing job by its ID.
func (r *PostgreSQLJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + jobColumns + ` FROM caseindex.processing_jobs WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	job, err := scanJob(qi.QueryRow(ctx, query, id))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find processing job by ID")
	}
	return job, nil
}

// FindByDocumentID finds processing jobs for a document with filters.
func (r *PostgreSQLJobRepository) FindByDocumentID(
	ctx context.Context,
	documentID uuid.UUID,
	filters outbound.JobFilters,
) ([]*entity.ProcessingJob, int, error) {
	if documentID == uuid.Nil {
		return nil, 0, ErrInvalidArgument
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	baseQuery := `FROM caseindex.processing_jobs WHERE document_id = $1`
	args := []any{documentID}
	if filters.Status != nil {
		baseQuery += ` AND status = $2`
		args = append(args, filters.Status.String())
	}

	qi := GetQueryInterface(ctx, r.pool)

	var totalCount int
	if err := qi.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, WrapError(err, "count processing jobs")
	}

	dataQuery := "SELECT " + jobColumns + " " + baseQuery +
		" ORDER BY created_at DESC" + fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)

	rows, err := qi.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, WrapError(err, "query processing jobs")
	}
	defer rows.Close()

	var jobs []*entity.ProcessingJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, 0, WrapError(scanErr, "scan processing job row")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, WrapError(err, "iterate processing job rows")
	}

	return jobs, totalCount, nil
}

// Update updates a processing job in the database.
func (r *PostgreSQLJobRepository) Update(ctx context.Context, job *entity.ProcessingJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.processing_jobs
		SET status = $2, total_units = $3, error_message = $4, metadata = $5,
			started_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		job.ID(),
		job.Status().String(),
		job.TotalUnits(),
		job.ErrorMessage(),
		job.Metadata(),
		job.StartedAt(),
		job.CompletedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update processing job")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update processing job")
	}

	return nil
}

// Delete permanently removes a processing job. Orphaned chunks must be
// deleted first; this is the reaper's delete path.
func (r *PostgreSQLJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrInvalidArgument
	}

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, `DELETE FROM caseindex.processing_jobs WHERE id = $1`, id)
	if err != nil {
		return WrapError(err, "delete processing job")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "delete processing job")
	}

	return nil
}

// IncrementCompletedUnits atomically increments the completed counter and
// returns the fresh counters. The WHERE clause keeps terminal jobs frozen
// and the database-side arithmetic makes concurrent increments safe.
func (r *PostgreSQLJobRepository) IncrementCompletedUnits(ctx context.Context, jobID uuid.UUID) (outbound.JobCounters, error) {
	return r.adjustCounters(ctx, jobID, `completed_units = completed_units + 1`, "increment completed units")
}

// IncrementFailedUnits atomically increments the failed counter and returns
// the fresh counters.
func (r *PostgreSQLJobRepository) IncrementFailedUnits(ctx context.Context, jobID uuid.UUID) (outbound.JobCounters, error) {
	return r.adjustCounters(ctx, jobID, `failed_units = failed_units + 1`, "increment failed units")
}

// RewindFailedUnits atomically subtracts count failed units for the retry
// path, never below zero.
func (r *PostgreSQLJobRepository) RewindFailedUnits(ctx context.Context, jobID uuid.UUID, count int) (outbound.JobCounters, error) {
	if count < 0 {
		return outbound.JobCounters{}, ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.processing_jobs
		SET failed_units = failed_units - $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'running') AND failed_units >= $2
		RETURNING total_units, completed_units, failed_units`

	qi := GetQueryInterface(ctx, r.pool)
	var counters outbound.JobCounters
	err := qi.QueryRow(ctx, query, jobID, count).
		Scan(&counters.TotalUnits, &counters.CompletedUnits, &counters.FailedUnits)
	if err != nil {
		if IsNotFoundError(err) {
			return r.currentCounters(ctx, jobID, "rewind failed units")
		}
		return outbound.JobCounters{}, WrapError(err, "rewind failed units")
	}
	return counters, nil
}

// FindStuck returns non-terminal jobs with zero progress whose last update
// is older than the cutoff.
func (r *PostgreSQLJobRepository) FindStuck(ctx context.Context, updatedBefore time.Time) ([]*entity.ProcessingJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM caseindex.processing_jobs
		WHERE status IN ('pending', 'running')
		  AND completed_units = 0
		  AND updated_at < $1
		ORDER BY updated_at ASC`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, updatedBefore)
	if err != nil {
		return nil, WrapError(err, "find stuck jobs")
	}
	defer rows.Close()

	var jobs []*entity.ProcessingJob
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "scan stuck job row")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate stuck job rows")
	}

	return jobs, nil
}

// adjustCounters runs one atomic counter update guarded against terminal
// jobs. When the guard filters the row out, the current counters are
// returned unchanged so replayed deliveries observe frozen state.
func (r *PostgreSQLJobRepository) adjustCounters(
	ctx context.Context,
	jobID uuid.UUID,
	setClause string,
	operation string,
) (outbound.JobCounters, error) {
	if jobID == uuid.Nil {
		return outbound.JobCounters{}, ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.processing_jobs
		SET ` + setClause + `, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status IN ('pending', 'running')
		RETURNING total_units, completed_units, failed_units`

	qi := GetQueryInterface(ctx, r.pool)
	var counters outbound.JobCounters
	err := qi.QueryRow(ctx, query, jobID).
		Scan(&counters.TotalUnits, &counters.CompletedUnits, &counters.FailedUnits)
	if err != nil {
		if IsNotFoundError(err) {
			return r.currentCounters(ctx, jobID, operation)
		}
		return outbound.JobCounters{}, WrapError(err, operation)
	}
	return counters, nil
}

func (r *PostgreSQLJobRepository) currentCounters(
	ctx context.Context,
	jobID uuid.UUID,
	operation string,
) (outbound.JobCounters, error) {
	query := `SELECT total_units, completed_units, failed_units FROM caseindex.processing_jobs WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	var counters outbound.JobCounters
	err := qi.QueryRow(ctx, query, jobID).
		Scan(&counters.TotalUnits, &counters.CompletedUnits, &counters.FailedUnits)
	if err != nil {
		return outbound.JobCounters{}, WrapError(err, operation)
	}
	return counters, nil
}

// jobRow abstracts pgx.Row and pgx.Rows for scanning.
type jobRow interface {
	Scan(dest ...any) error
}

func scanJob(row jobRow) (*entity.ProcessingJob, error) {
	var (
		id, documentID                            uuid.UUID
		jobTypeStr, statusStr                     string
		totalUnits, completedUnits, failedUnits   int
		errorMessage                              *string
		metadata                                  map[string]any
		createdAt, updatedAt                      time.Time
		startedAt, completedAt                    *time.Time
	)

	err := row.Scan(
		&id, &documentID, &jobTypeStr, &statusStr, &totalUnits, &completedUnits, &failedUnits,
		&errorMessage, &metadata, &createdAt, &startedAt, &completedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	jobType, err := valueobject.NewJobType(jobTypeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job type: %w", err)
	}
	status, err := valueobject.NewJobStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid job status: %w", err)
	}

	return entity.RestoreProcessingJob(
		id, documentID, jobType, status,
		totalUnits, completedUnits, failedUnits,
		errorMessage, metadata,
		createdAt, startedAt, completedAt, updatedAt,
	), nil
}
