package worker

import (
	"context"
	"fmt"
	"time"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"
	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/messaging"
	"caseindex/internal/port/outbound"
)

// ChunkProcessor executes one dispatched unit of chunk work. Dispatch is
// at-least-once, so every step is guarded: the chunk is claimed with a
// conditional status write, counter increments are atomic in storage, and
// chunk-level failures become state instead of returned errors. An error
// escapes the handler only when the infrastructure itself failed and a
// redelivery could succeed.
type ChunkProcessor struct {
	jobRepo    outbound.JobRepository
	chunkRepo  outbound.ChunkRepository
	jobService *service.JobService
	tx         outbound.TransactionManager
	extractor  outbound.TextExtractor
	embedder   outbound.EmbeddingService
	metrics    *PipelineMetrics

	generateEmbeddings bool
}

// NewChunkProcessor creates a chunk processor. The embedder may be nil
// when embedding generation is disabled.
func NewChunkProcessor(
	jobRepo outbound.JobRepository,
	chunkRepo outbound.ChunkRepository,
	jobService *service.JobService,
	tx outbound.TransactionManager,
	extractor outbound.TextExtractor,
	embedder outbound.EmbeddingService,
	metrics *PipelineMetrics,
	generateEmbeddings bool,
) *ChunkProcessor {
	return &ChunkProcessor{
		jobRepo:            jobRepo,
		chunkRepo:          chunkRepo,
		jobService:         jobService,
		tx:                 tx,
		extractor:          extractor,
		embedder:           embedder,
		metrics:            metrics,
		generateEmbeddings: generateEmbeddings && embedder != nil,
	}
}

// HandleChunkWork processes one chunk work message.
func (p *ChunkProcessor) HandleChunkWork(ctx context.Context, message messaging.ChunkWorkMessage) error {
	start := time.Now()

	claimed, err := p.chunkRepo.ClaimForProcessing(ctx, message.ChunkID)
	if err != nil {
		return fmt.Errorf("failed to claim chunk: %w", err)
	}
	if !claimed {
		// Duplicate delivery or a chunk already past pending. Ack and move on.
		if p.metrics != nil {
			p.metrics.RecordDuplicateDelivery(ctx)
		}
		slogger.Debug(ctx, "Chunk already claimed, absorbing duplicate delivery", slogger.Fields{
			"chunk_id": message.ChunkID.String(),
			"job_id":   message.JobID.String(),
		})
		return nil
	}

	if err := p.jobService.EnsureRunning(ctx, message.JobID); err != nil {
		slogger.ErrorWithError(ctx, err, "Could not mark job running", slogger.Fields{
			"job_id": message.JobID.String(),
		})
	}

	content, embedding, err := p.processChunk(ctx, message)
	if err != nil {
		p.recordFailure(ctx, message, err, start)
		return nil
	}

	// The status write and the counter increment must land together: a
	// committed completion with a lost count would leave the job short of
	// AllTerminal forever, and redelivery is absorbed at the claim.
	var counters outbound.JobCounters
	err = p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.chunkRepo.MarkCompleted(txCtx, message.ChunkID, content, embedding); err != nil {
			return fmt.Errorf("failed to mark chunk completed: %w", err)
		}
		fresh, err := p.jobRepo.IncrementCompletedUnits(txCtx, message.JobID)
		if err != nil {
			return fmt.Errorf("failed to increment completed units: %w", err)
		}
		counters = fresh
		return nil
	})
	if err != nil {
		// Both writes rolled back; the chunk stays in processing and the
		// reaper handles it if redeliveries keep failing here.
		return err
	}

	if p.metrics != nil {
		p.metrics.RecordChunkProcessed(ctx, time.Since(start), "completed")
	}
	p.finalize(ctx, message, counters)
	return nil
}

// processChunk extracts the chunk's slice of the document text and
// optionally embeds it.
func (p *ChunkProcessor) processChunk(ctx context.Context, message messaging.ChunkWorkMessage) (string, []float32, error) {
	chunk, err := p.chunkRepo.FindByID(ctx, message.ChunkID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load chunk: %w", err)
	}
	if chunk == nil {
		return "", nil, fmt.Errorf("chunk %s not found", message.ChunkID)
	}

	locator, err := p.jobLocator(ctx, message)
	if err != nil {
		return "", nil, err
	}

	result, err := p.extractor.Extract(ctx, locator)
	if err != nil {
		return "", nil, fmt.Errorf("extraction failed: %w", err)
	}

	content, err := sliceRunes(result.Text, chunk.StartOffset(), chunk.EndOffset())
	if err != nil {
		return "", nil, err
	}

	var embedding []float32
	if p.generateEmbeddings && content != "" {
		embedding, err = p.embedder.GenerateEmbedding(ctx, content)
		if err != nil {
			return "", nil, fmt.Errorf("embedding failed: %w", err)
		}
	}

	return content, embedding, nil
}

// jobLocator reads the document locator the chunking service stored in the
// job metadata.
func (p *ChunkProcessor) jobLocator(ctx context.Context, message messaging.ChunkWorkMessage) (string, error) {
	job, err := p.jobRepo.FindByID(ctx, message.JobID)
	if err != nil {
		return "", fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return "", fmt.Errorf("job %s not found", message.JobID)
	}

	locator, _ := job.Metadata()[service.MetadataKeyLocator].(string)
	if locator == "" {
		return "", fmt.Errorf("job %s has no document locator", message.JobID)
	}
	return locator, nil
}

// recordFailure converts a chunk-level error into state: failed chunk,
// failed-units increment, finalize check. Nothing propagates past here, so
// one bad chunk never aborts its siblings.
func (p *ChunkProcessor) recordFailure(
	ctx context.Context,
	message messaging.ChunkWorkMessage,
	cause error,
	start time.Time,
) {
	slogger.ErrorWithError(ctx, cause, "Chunk processing failed", slogger.Fields{
		"chunk_id":    message.ChunkID.String(),
		"job_id":      message.JobID.String(),
		"chunk_index": message.ChunkIndex,
	})

	var counters outbound.JobCounters
	err := p.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := p.chunkRepo.MarkFailed(txCtx, message.ChunkID, cause.Error()); err != nil {
			return fmt.Errorf("failed to mark chunk failed: %w", err)
		}
		fresh, err := p.jobRepo.IncrementFailedUnits(txCtx, message.JobID)
		if err != nil {
			return fmt.Errorf("failed to increment failed units: %w", err)
		}
		counters = fresh
		return nil
	})
	if err != nil {
		slogger.ErrorWithError(ctx, err, "Could not record chunk failure", slogger.Fields{
			"chunk_id": message.ChunkID.String(),
			"job_id":   message.JobID.String(),
		})
		return
	}

	if p.metrics != nil {
		p.metrics.RecordChunkProcessed(ctx, time.Since(start), "failed")
	}
	p.finalize(ctx, message, counters)
}

// finalize asks the job service to finalize once the fresh counters show
// every unit terminal.
func (p *ChunkProcessor) finalize(ctx context.Context, message messaging.ChunkWorkMessage, counters outbound.JobCounters) {
	if !counters.AllTerminal() {
		return
	}
	if err := p.jobService.FinalizeIfDone(ctx, message.JobID, counters); err != nil {
		slogger.ErrorWithError(ctx, err, "Job finalization failed", slogger.Fields{
			"job_id": message.JobID.String(),
		})
		return
	}
	if p.metrics != nil {
		if job, err := p.jobService.GetJob(ctx, message.JobID); err == nil {
			p.metrics.RecordJobFinalized(ctx, job.Status().String())
		}
	}
}

// sliceRunes returns the half-open rune range [start, end) of text,
// clamped to the text's length so a re-extraction that yields slightly
// shorter text degrades instead of panicking.
func sliceRunes(text string, start, end int) (string, error) {
	if start < 0 || end < start {
		return "", entity.NewDomainError("invalid chunk range", "INVALID_CHUNK_RANGE")
	}
	runes := []rune(text)
	if start >= len(runes) {
		return "", nil
	}
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), nil
}
