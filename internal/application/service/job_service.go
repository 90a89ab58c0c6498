package service

import (
	"context"
	"errors"
	"fmt"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/messaging"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned when a referenced job does not exist.
var ErrJobNotFound = errors.New("job not found")

// JobService owns the job lifecycle outside the per-chunk hot path:
// lookups, cancellation, finalization policy and the authorized retry of
// failed chunks.
type JobService struct {
	jobRepo   outbound.JobRepository
	chunkRepo outbound.ChunkRepository
	publisher outbound.MessagePublisher

	// failureTolerance is the highest tolerated ratio of failed to total
	// units before finalization fails the job. Zero tolerates nothing.
	failureTolerance float64
}

// NewJobService creates a new job service.
func NewJobService(
	jobRepo outbound.JobRepository,
	chunkRepo outbound.ChunkRepository,
	publisher outbound.MessagePublisher,
	failureTolerance float64,
) *JobService {
	if failureTolerance < 0 {
		failureTolerance = 0
	}
	return &JobService{
		jobRepo:          jobRepo,
		chunkRepo:        chunkRepo,
		publisher:        publisher,
		failureTolerance: failureTolerance,
	}
}

// GetJob returns one job by ID.
func (s *JobService) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.ProcessingJob, error) {
	job, err := s.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// ListJobsByDocument returns the document's jobs plus the total count.
func (s *JobService) ListJobsByDocument(
	ctx context.Context,
	documentID uuid.UUID,
	filters outbound.JobFilters,
) ([]*entity.ProcessingJob, int, error) {
	return s.jobRepo.FindByDocumentID(ctx, documentID, filters)
}

// ListFailedChunks returns the job's failed chunks for targeted retry.
func (s *JobService) ListFailedChunks(ctx context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error) {
	return s.chunkRepo.FindByJobIDAndStatus(ctx, jobID, valueobject.ChunkStatusFailed)
}

// EnsureRunning moves a pending job to running. Called by the chunk
// processor when the first unit of work starts; a lost race with a sibling
// worker is harmless because both write the same transition.
func (s *JobService) EnsureRunning(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status() != valueobject.JobStatusPending {
		return nil
	}
	if err := job.Start(); err != nil {
		return err
	}
	return s.jobRepo.Update(ctx, job)
}

// CancelJob cancels a non-terminal job. Cancellation is cooperative:
// chunks already dispatched may still finish, but their counter updates
// land on a frozen job.
func (s *JobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Cancel(); err != nil {
		return err
	}
	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}

	slogger.Info(ctx, "Job cancelled", slogger.Fields{"job_id": jobID.String()})
	return nil
}

// FinalizeIfDone finalizes the job once every unit is terminal, applying
// the failure-tolerance policy: the job completes when the failed ratio is
// within tolerance, otherwise it fails. Counters come from the caller's
// atomic increment so no stale read can finalize early.
func (s *JobService) FinalizeIfDone(ctx context.Context, jobID uuid.UUID, counters outbound.JobCounters) error {
	if !counters.AllTerminal() {
		return nil
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	// A job can reach all-terminal counters while still pending when every
	// EnsureRunning call failed. Start it here so finalization has a legal
	// transition; otherwise the job would wedge with progress the reaper's
	// zero-completed predicate never selects.
	if job.Status() == valueobject.JobStatusPending {
		if err := job.Start(); err != nil {
			return err
		}
	}

	if err := job.UpdateProgress(counters.CompletedUnits, counters.FailedUnits); err != nil {
		return err
	}

	failedRatio := float64(counters.FailedUnits) / float64(counters.TotalUnits)
	if failedRatio > s.failureTolerance {
		failErr := job.Fail(fmt.Sprintf(
			"%d of %d units failed, exceeding tolerance %.2f",
			counters.FailedUnits, counters.TotalUnits, s.failureTolerance,
		))
		if failErr != nil {
			return failErr
		}
	} else if err := job.Complete(); err != nil {
		return err
	}

	if err := s.jobRepo.Update(ctx, job); err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}

	slogger.Info(ctx, "Job finalized", slogger.Fields{
		"job_id":    jobID.String(),
		"status":    job.Status().String(),
		"completed": counters.CompletedUnits,
		"failed":    counters.FailedUnits,
		"total":     counters.TotalUnits,
	})
	return nil
}

// RetryFailedChunks resets exactly the job's failed chunks to pending and
// re-dispatches exactly those units. A job already finalized as failed is
// reopened first. Returns the number of chunks re-dispatched.
func (s *JobService) RetryFailedChunks(ctx context.Context, jobID uuid.UUID) (int, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return 0, err
	}

	switch job.Status() {
	case valueobject.JobStatusFailed:
		if err := job.ReopenForRetry(); err != nil {
			return 0, err
		}
		if err := s.jobRepo.Update(ctx, job); err != nil {
			return 0, fmt.Errorf("failed to reopen job: %w", err)
		}
	case valueobject.JobStatusRunning:
		// Retry of a still-running job is allowed.
	default:
		return 0, entity.NewDomainError(
			fmt.Sprintf("cannot retry chunks of a %s job", job.Status()),
			"INVALID_STATUS_TRANSITION",
		)
	}

	failedChunks, err := s.chunkRepo.FindByJobIDAndStatus(ctx, jobID, valueobject.ChunkStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to list failed chunks: %w", err)
	}
	if len(failedChunks) == 0 {
		return 0, nil
	}

	// Rewind the failed counter before resetting the chunks so the
	// counter invariant holds even if we crash in between.
	if _, err := s.jobRepo.RewindFailedUnits(ctx, jobID, len(failedChunks)); err != nil {
		return 0, fmt.Errorf("failed to rewind failed units: %w", err)
	}

	resetChunks, err := s.chunkRepo.ResetFailedChunks(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed chunks: %w", err)
	}

	for _, chunk := range resetChunks {
		message := messaging.NewChunkWorkMessage(jobID, chunk.DocumentID(), chunk.ID(), chunk.ChunkIndex())
		if err := s.publisher.PublishChunkWork(ctx, message); err != nil {
			slogger.ErrorWithError(ctx, err, "Failed to re-dispatch chunk", slogger.Fields{
				"job_id":   jobID.String(),
				"chunk_id": chunk.ID().String(),
			})
		}
	}

	slogger.Info(ctx, "Failed chunks reset and re-dispatched", slogger.Fields{
		"job_id": jobID.String(),
		"chunks": len(resetChunks),
	})
	return len(resetChunks), nil
}
