package service

import (
	"context"
	"fmt"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
)

// DocumentProcessor runs the per-document pipeline for a batch session.
// Implementations must be safe to call concurrently for different
// documents.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID uuid.UUID, options entity.SessionOptions) (map[string]any, error)
}

// PipelineDocumentProcessor is the production DocumentProcessor: locate
// the document, run it through the chunking pipeline and, when enrichment
// flags are set, record a follow-up analysis job.
type PipelineDocumentProcessor struct {
	locator  outbound.DocumentLocator
	chunking *ChunkingService
	jobRepo  outbound.JobRepository
}

// NewPipelineDocumentProcessor creates the production document processor.
func NewPipelineDocumentProcessor(
	locator outbound.DocumentLocator,
	chunking *ChunkingService,
	jobRepo outbound.JobRepository,
) *PipelineDocumentProcessor {
	return &PipelineDocumentProcessor{
		locator:  locator,
		chunking: chunking,
		jobRepo:  jobRepo,
	}
}

// ProcessDocument chunks one document and returns a result snapshot for
// the session's per-document status row.
func (p *PipelineDocumentProcessor) ProcessDocument(
	ctx context.Context,
	documentID uuid.UUID,
	options entity.SessionOptions,
) (map[string]any, error) {
	locator, err := p.locator.Locate(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to locate document: %w", err)
	}

	job, err := p.chunking.ChunkDocument(ctx, documentID, locator)
	if err != nil {
		return nil, err
	}
	if job.Status() == valueobject.JobStatusFailed {
		message := "chunking job failed"
		if job.ErrorMessage() != nil {
			message = *job.ErrorMessage()
		}
		return nil, fmt.Errorf("chunking failed: %s", message)
	}

	result := map[string]any{
		"chunk_job_id": job.ID().String(),
		"total_units":  job.TotalUnits(),
	}

	// Enrichment itself runs outside this pipeline; the analysis job record
	// is what downstream workers pick up.
	if options.ExtractEntities || options.ParseStatements {
		analysisJob := entity.NewProcessingJob(documentID, valueobject.JobTypeAIAnalysis, map[string]any{
			"extract_entities": options.ExtractEntities,
			"parse_statements": options.ParseStatements,
			"chunk_job_id":     job.ID().String(),
		})
		if err := p.jobRepo.Save(ctx, analysisJob); err != nil {
			return nil, fmt.Errorf("failed to record analysis job: %w", err)
		}
		result["analysis_job_id"] = analysisJob.ID().String()
	}

	return result, nil
}
