// Package service contains the application services that orchestrate the
// chunking pipeline: chunk planning, job lifecycle, batch sessions and
// stuck-job cleanup.
package service

import (
	"context"
	"fmt"
	"path/filepath"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/messaging"
	domainservice "caseindex/internal/domain/service"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
)

// Job metadata keys written by the chunking service and read back by the
// chunk processor.
const (
	MetadataKeyLocator   = "locator"
	MetadataKeyExtension = "extension"
	MetadataKeyStrategy  = "strategy"
	MetadataKeyMimeType  = "mime_type"
)

// ChunkingService plans and records chunk work for one document. The job
// row is saved before any extraction happens, so the caller's request
// succeeds as soon as the job is durable; everything after that surfaces
// only through job state.
type ChunkingService struct {
	jobRepo   outbound.JobRepository
	chunkRepo outbound.ChunkRepository
	extractor outbound.TextExtractor
	publisher outbound.MessagePublisher
	selector  *domainservice.StrategySelector
	chunker   *domainservice.Chunker
}

// NewChunkingService creates a new chunking service.
func NewChunkingService(
	jobRepo outbound.JobRepository,
	chunkRepo outbound.ChunkRepository,
	extractor outbound.TextExtractor,
	publisher outbound.MessagePublisher,
	selector *domainservice.StrategySelector,
) *ChunkingService {
	return &ChunkingService{
		jobRepo:   jobRepo,
		chunkRepo: chunkRepo,
		extractor: extractor,
		publisher: publisher,
		selector:  selector,
		chunker:   domainservice.NewChunker(),
	}
}

// ChunkDocument records a chunking job for the document at the given
// locator, then extracts, plans chunks and dispatches one unit of work per
// chunk. An error is returned only when the job itself could not be
// recorded; preparation failures mark the job failed instead.
func (s *ChunkingService) ChunkDocument(ctx context.Context, documentID uuid.UUID, locator string) (*entity.ProcessingJob, error) {
	if documentID == uuid.Nil {
		return nil, entity.NewDomainError("document ID cannot be nil", "INVALID_DOCUMENT_ID")
	}
	if locator == "" {
		return nil, entity.NewDomainError("document locator cannot be empty", "INVALID_LOCATOR")
	}

	job := entity.NewProcessingJob(documentID, valueobject.JobTypeDocumentChunk, map[string]any{
		MetadataKeyLocator:   locator,
		MetadataKeyExtension: filepath.Ext(locator),
	})
	if err := s.jobRepo.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record chunking job: %w", err)
	}

	// The caller's success point. Preparation failures from here on are
	// converted into job state.
	if err := s.prepare(ctx, job, locator); err != nil {
		slogger.ErrorWithError(ctx, err, "Chunk preparation failed", slogger.Fields{
			"job_id":      job.ID().String(),
			"document_id": documentID.String(),
		})
		s.failJob(ctx, job, err.Error())
	}

	return job, nil
}

// ReprocessDocument clears the document's stale chunks and re-chunks it
// from scratch.
func (s *ChunkingService) ReprocessDocument(ctx context.Context, documentID uuid.UUID, locator string) (*entity.ProcessingJob, error) {
	deleted, err := s.chunkRepo.DeleteByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to clear stale chunks: %w", err)
	}
	if deleted > 0 {
		slogger.Info(ctx, "Cleared stale chunks before reprocessing", slogger.Fields{
			"document_id": documentID.String(),
			"deleted":     deleted,
		})
	}

	return s.ChunkDocument(ctx, documentID, locator)
}

func (s *ChunkingService) prepare(ctx context.Context, job *entity.ProcessingJob, locator string) error {
	result, err := s.extractor.Extract(ctx, locator)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	strategy := s.selector.Select(filepath.Ext(locator), int64(len(result.Text)))
	spans, err := s.chunker.Split(result.Text, strategy)
	if err != nil {
		return fmt.Errorf("chunk planning failed: %w", err)
	}

	job.Metadata()[MetadataKeyStrategy] = strategy.Type.String()
	job.Metadata()[MetadataKeyMimeType] = result.MimeType

	if len(spans) == 0 {
		// Nothing to chunk. The job completes immediately.
		if err := job.SetTotalUnits(0); err != nil {
			return err
		}
		if err := job.Start(); err != nil {
			return err
		}
		if err := job.Complete(); err != nil {
			return err
		}
		return s.jobRepo.Update(ctx, job)
	}

	chunks := make([]*entity.DocumentChunk, 0, len(spans))
	for i, span := range spans {
		chunk, chunkErr := entity.NewDocumentChunk(job.DocumentID(), job.ID(), i, span.Start, span.End)
		if chunkErr != nil {
			return chunkErr
		}
		if span.Page != nil {
			chunk.SetPageNumber(*span.Page)
		}
		chunks = append(chunks, chunk)
	}

	if err := s.chunkRepo.SaveBulk(ctx, chunks); err != nil {
		return fmt.Errorf("failed to save chunks: %w", err)
	}

	if err := job.SetTotalUnits(len(chunks)); err != nil {
		return err
	}
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to update job totals: %w", err)
	}

	s.dispatchChunks(ctx, job, chunks)

	slogger.Info(ctx, "Chunking job dispatched", slogger.Fields{
		"job_id":      job.ID().String(),
		"document_id": job.DocumentID().String(),
		"strategy":    strategy.Type.String(),
		"chunks":      len(chunks),
	})
	return nil
}

// dispatchChunks publishes one work message per chunk. Publish failures
// are logged, not returned: an undispatched chunk leaves the job stalled
// at zero progress, which is exactly what the stuck-job reaper sweeps for.
func (s *ChunkingService) dispatchChunks(ctx context.Context, job *entity.ProcessingJob, chunks []*entity.DocumentChunk) {
	for _, chunk := range chunks {
		message := messaging.NewChunkWorkMessage(job.ID(), job.DocumentID(), chunk.ID(), chunk.ChunkIndex())
		if err := s.publisher.PublishChunkWork(ctx, message); err != nil {
			slogger.ErrorWithError(ctx, err, "Failed to dispatch chunk work", slogger.Fields{
				"job_id":      job.ID().String(),
				"chunk_id":    chunk.ID().String(),
				"chunk_index": chunk.ChunkIndex(),
			})
		}
	}
}

func (s *ChunkingService) failJob(ctx context.Context, job *entity.ProcessingJob, message string) {
	if err := job.Fail(message); err != nil {
		slogger.ErrorWithError(ctx, err, "Could not mark job failed", slogger.Fields{
			"job_id": job.ID().String(),
		})
		return
	}
	if err := s.jobRepo.Update(ctx, job); err != nil {
		slogger.ErrorWithError(ctx, err, "Could not persist failed job", slogger.Fields{
			"job_id": job.ID().String(),
		})
	}
}
