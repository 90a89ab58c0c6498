package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements are applied in order by Migrate. Each statement is
// idempotent so the command can be re-run safely.
var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE SCHEMA IF NOT EXISTS caseindex`,

	`CREATE TABLE IF NOT EXISTS caseindex.processing_jobs (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		total_units INTEGER NOT NULL DEFAULT 0,
		completed_units INTEGER NOT NULL DEFAULT 0,
		failed_units INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT processing_jobs_counters_check
			CHECK (completed_units + failed_units <= total_units)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_processing_jobs_document_id
		ON caseindex.processing_jobs (document_id)`,

	`CREATE INDEX IF NOT EXISTS idx_processing_jobs_stuck
		ON caseindex.processing_jobs (updated_at)
		WHERE status IN ('pending', 'running') AND completed_units = 0`,

	`CREATE TABLE IF NOT EXISTS caseindex.document_chunks (
		id UUID PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES caseindex.processing_jobs (id) ON DELETE CASCADE,
		document_id UUID NOT NULL,
		chunk_index INTEGER NOT NULL,
		status TEXT NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		page_number INTEGER,
		content_text TEXT,
		embedding vector(768),
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT document_chunks_job_index_unique UNIQUE (job_id, chunk_index)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id
		ON caseindex.document_chunks (document_id)`,

	`CREATE INDEX IF NOT EXISTS idx_document_chunks_job_status
		ON caseindex.document_chunks (job_id, status)`,

	`CREATE TABLE IF NOT EXISTS caseindex.batch_sessions (
		id UUID PRIMARY KEY,
		status TEXT NOT NULL,
		document_ids UUID[] NOT NULL,
		documents_processed INTEGER NOT NULL DEFAULT 0,
		documents_succeeded INTEGER NOT NULL DEFAULT 0,
		documents_failed INTEGER NOT NULL DEFAULT 0,
		last_checkpoint TIMESTAMPTZ,
		options JSONB NOT NULL,
		error_log JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT batch_sessions_checkpoint_check
			CHECK (documents_processed = documents_succeeded + documents_failed)
	)`,

	`CREATE TABLE IF NOT EXISTS caseindex.batch_document_statuses (
		session_id UUID NOT NULL REFERENCES caseindex.batch_sessions (id) ON DELETE CASCADE,
		document_id UUID NOT NULL,
		state TEXT NOT NULL,
		result JSONB,
		error_message TEXT,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, document_id)
	)`,
}

// Migrate creates the schema, tables and indexes the pipeline needs.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return WrapError(err, "apply schema statement")
		}
	}
	return nil
}
