package repository

import (
	"context"
	"fmt"
	"time"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, status, document_ids, documents_processed, documents_succeeded,
	documents_failed, last_checkpoint, options, error_log, created_at, updated_at`

// PostgreSQLBatchSessionRepository implements the BatchSessionRepository
// interface.
type PostgreSQLBatchSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBatchSessionRepository creates a new PostgreSQL batch session
// repository.
func NewPostgreSQLBatchSessionRepository(pool *pgxpool.Pool) *PostgreSQLBatchSessionRepository {
	return &PostgreSQLBatchSessionRepository{pool: pool}
}

// Save saves a batch session to the database.
func (r *PostgreSQLBatchSessionRepository) Save(ctx context.Context, session *entity.BatchSession) error {
	if session == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO caseindex.batch_sessions (
			id, status, document_ids, documents_processed, documents_succeeded,
			documents_failed, last_checkpoint, options, error_log, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		session.ID(),
		session.Status().String(),
		session.DocumentIDs(),
		session.DocumentsProcessed(),
		session.DocumentsSucceeded(),
		session.DocumentsFailed(),
		session.LastCheckpoint(),
		session.Options(),
		session.ErrorLog(),
		session.CreatedAt(),
		session.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save batch session")
	}

	return nil
}

// FindByID finds a batch session by its ID.
func (r *PostgreSQLBatchSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.BatchSession, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + sessionColumns + ` FROM caseindex.batch_sessions WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)

	var (
		sessionID      uuid.UUID
		statusStr      string
		documentIDs    []uuid.UUID
		processed      int
		succeeded      int
		failed         int
		lastCheckpoint *time.Time
		options        entity.SessionOptions
		errorLog       []entity.SessionError
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := qi.QueryRow(ctx, query, id).Scan(
		&sessionID, &statusStr, &documentIDs, &processed, &succeeded, &failed,
		&lastCheckpoint, &options, &errorLog, &createdAt, &updatedAt,
	)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find batch session by ID")
	}

	status, err := valueobject.NewSessionStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("invalid session status: %w", err)
	}

	return entity.RestoreBatchSession(
		sessionID, status, documentIDs, processed, succeeded, failed,
		lastCheckpoint, options, errorLog, createdAt, updatedAt,
	), nil
}

// Update writes the full session row, status included. State transitions
// go through here; progress flushes go through Checkpoint.
func (r *PostgreSQLBatchSessionRepository) Update(ctx context.Context, session *entity.BatchSession) error {
	if session == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.batch_sessions
		SET status = $2, documents_processed = $3, documents_succeeded = $4,
			documents_failed = $5, last_checkpoint = $6, error_log = $7, updated_at = $8
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		session.ID(),
		session.Status().String(),
		session.DocumentsProcessed(),
		session.DocumentsSucceeded(),
		session.DocumentsFailed(),
		session.LastCheckpoint(),
		session.ErrorLog(),
		session.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update batch session")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update batch session")
	}

	return nil
}

// Checkpoint flushes counters, error log and checkpoint timestamp in one
// statement. Status is deliberately not written: a pause or cancel
// persisted by another process while a batch was in flight must not be
// clobbered back to running by the batch's own flush.
func (r *PostgreSQLBatchSessionRepository) Checkpoint(ctx context.Context, session *entity.BatchSession) error {
	if session == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.batch_sessions
		SET documents_processed = $2, documents_succeeded = $3, documents_failed = $4,
			last_checkpoint = $5, error_log = $6, updated_at = $7
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		session.ID(),
		session.DocumentsProcessed(),
		session.DocumentsSucceeded(),
		session.DocumentsFailed(),
		session.LastCheckpoint(),
		session.ErrorLog(),
		session.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "checkpoint batch session")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "checkpoint batch session")
	}

	return nil
}

// PostgreSQLBatchDocumentStatusRepository implements the
// BatchDocumentStatusRepository interface.
type PostgreSQLBatchDocumentStatusRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLBatchDocumentStatusRepository creates a new PostgreSQL batch
// document status repository.
func NewPostgreSQLBatchDocumentStatusRepository(pool *pgxpool.Pool) *PostgreSQLBatchDocumentStatusRepository {
	return &PostgreSQLBatchDocumentStatusRepository{pool: pool}
}

const documentStatusColumns = `session_id, document_id, state, result, error_message, updated_at`

// SaveAll seeds per-document status rows when a session is created.
func (r *PostgreSQLBatchDocumentStatusRepository) SaveAll(ctx context.Context, statuses []*entity.BatchDocumentStatus) error {
	if len(statuses) == 0 {
		return nil
	}

	query := `
		INSERT INTO caseindex.batch_document_statuses (
			session_id, document_id, state, result, error_message, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, document_id) DO NOTHING`

	qi := GetQueryInterface(ctx, r.pool)
	for _, status := range statuses {
		if status == nil {
			return ErrInvalidArgument
		}
		_, err := qi.Exec(ctx, query,
			status.SessionID(),
			status.DocumentID(),
			status.State().String(),
			status.Result(),
			status.ErrorMessage(),
			status.UpdatedAt(),
		)
		if err != nil {
			return WrapError(err, "save batch document statuses")
		}
	}

	return nil
}

// Find returns the status row for one document in one session.
func (r *PostgreSQLBatchDocumentStatusRepository) Find(
	ctx context.Context,
	sessionID, documentID uuid.UUID,
) (*entity.BatchDocumentStatus, error) {
	if sessionID == uuid.Nil || documentID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + documentStatusColumns + `
		FROM caseindex.batch_document_statuses
		WHERE session_id = $1 AND document_id = $2`

	qi := GetQueryInterface(ctx, r.pool)
	status, err := scanDocumentStatus(qi.QueryRow(ctx, query, sessionID, documentID))
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find batch document status")
	}
	return status, nil
}

// FindBySession returns every status row of a session.
func (r *PostgreSQLBatchDocumentStatusRepository) FindBySession(
	ctx context.Context,
	sessionID uuid.UUID,
) ([]*entity.BatchDocumentStatus, error) {
	if sessionID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `SELECT ` + documentStatusColumns + `
		FROM caseindex.batch_document_statuses
		WHERE session_id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	rows, err := qi.Query(ctx, query, sessionID)
	if err != nil {
		return nil, WrapError(err, "find batch document statuses by session")
	}
	defer rows.Close()

	var statuses []*entity.BatchDocumentStatus
	for rows.Next() {
		status, scanErr := scanDocumentStatus(rows)
		if scanErr != nil {
			return nil, WrapError(scanErr, "scan batch document status row")
		}
		statuses = append(statuses, status)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(err, "iterate batch document status rows")
	}

	return statuses, nil
}

// Update writes one document's state, result and error message.
func (r *PostgreSQLBatchDocumentStatusRepository) Update(ctx context.Context, status *entity.BatchDocumentStatus) error {
	if status == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE caseindex.batch_document_statuses
		SET state = $3, result = $4, error_message = $5, updated_at = $6
		WHERE session_id = $1 AND document_id = $2`

	qi := GetQueryInterface(ctx, r.pool)
	result, err := qi.Exec(ctx, query,
		status.SessionID(),
		status.DocumentID(),
		status.State().String(),
		status.Result(),
		status.ErrorMessage(),
		status.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update batch document status")
	}
	if result.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update batch document status")
	}

	return nil
}

type documentStatusRow interface {
	Scan(dest ...any) error
}

func scanDocumentStatus(row documentStatusRow) (*entity.BatchDocumentStatus, error) {
	var (
		sessionID, documentID uuid.UUID
		stateStr              string
		result                map[string]any
		errorMessage          *string
		updatedAt             time.Time
	)

	err := row.Scan(&sessionID, &documentID, &stateStr, &result, &errorMessage, &updatedAt)
	if err != nil {
		return nil, err
	}

	state, err := valueobject.NewDocumentState(stateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid document state: %w", err)
	}

	return entity.RestoreBatchDocumentStatus(sessionID, documentID, state, result, errorMessage, updatedAt), nil
}
