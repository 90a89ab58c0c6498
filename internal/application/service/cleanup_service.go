package service

import (
	"context"
	"fmt"
	"time"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/domain/entity"
	"caseindex/internal/port/outbound"
)

// CleanupMode selects what a cleanup sweep does with the stuck jobs it
// finds.
type CleanupMode string

// Cleanup modes.
const (
	// CleanupModeDryRun lists stuck jobs without mutating anything.
	CleanupModeDryRun CleanupMode = "dry-run"
	// CleanupModeMarkFailed marks stuck jobs failed. Non-destructive.
	CleanupModeMarkFailed CleanupMode = "mark-failed"
	// CleanupModeDelete removes stuck jobs and their orphaned chunks.
	CleanupModeDelete CleanupMode = "delete"
)

// Threshold bounds for stuck-job detection, in hours.
const (
	MinThresholdHours = 1
	MaxThresholdHours = 24
)

// CleanupResult summarizes one sweep.
type CleanupResult struct {
	Mode          CleanupMode
	Threshold     time.Duration
	StuckJobs     []*entity.ProcessingJob
	JobsFailed    int
	JobsDeleted   int
	ChunksDeleted int
}

// CleanupService is the stuck-job reaper. A job is stuck when it sits
// non-terminal at zero completed units past the age threshold, which means
// dispatch silently dropped it; the reaper is the safety net, not part of
// the hot path.
type CleanupService struct {
	jobRepo   outbound.JobRepository
	chunkRepo outbound.ChunkRepository
}

// NewCleanupService creates a new cleanup service.
func NewCleanupService(jobRepo outbound.JobRepository, chunkRepo outbound.ChunkRepository) *CleanupService {
	return &CleanupService{jobRepo: jobRepo, chunkRepo: chunkRepo}
}

// ClampThresholdHours bounds the threshold to [1, 24] hours.
func ClampThresholdHours(hours int) int {
	if hours < MinThresholdHours {
		return MinThresholdHours
	}
	if hours > MaxThresholdHours {
		return MaxThresholdHours
	}
	return hours
}

// FindStuckJobs returns the jobs a sweep with the given threshold would
// act on, without mutating any row. Jobs with any completed units are
// never stuck regardless of age.
func (s *CleanupService) FindStuckJobs(ctx context.Context, thresholdHours int) ([]*entity.ProcessingJob, error) {
	threshold := time.Duration(ClampThresholdHours(thresholdHours)) * time.Hour
	cutoff := time.Now().Add(-threshold)

	jobs, err := s.jobRepo.FindStuck(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck jobs: %w", err)
	}
	return jobs, nil
}

// Sweep finds stuck jobs and applies the mode to each. Per-job errors are
// logged and skipped so one bad row never aborts the sweep.
func (s *CleanupService) Sweep(ctx context.Context, thresholdHours int, mode CleanupMode) (*CleanupResult, error) {
	switch mode {
	case CleanupModeDryRun, CleanupModeMarkFailed, CleanupModeDelete:
	default:
		return nil, fmt.Errorf("invalid cleanup mode: %s", mode)
	}

	clamped := ClampThresholdHours(thresholdHours)
	jobs, err := s.FindStuckJobs(ctx, clamped)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{
		Mode:      mode,
		Threshold: time.Duration(clamped) * time.Hour,
		StuckJobs: jobs,
	}

	if mode == CleanupModeDryRun {
		slogger.Info(ctx, "Cleanup dry run", slogger.Fields{
			"threshold_hours": clamped,
			"stuck_jobs":      len(jobs),
		})
		return result, nil
	}

	for _, job := range jobs {
		switch mode {
		case CleanupModeMarkFailed:
			if err := s.markFailed(ctx, job); err != nil {
				slogger.ErrorWithError(ctx, err, "Could not mark stuck job failed", slogger.Fields{
					"job_id": job.ID().String(),
				})
				continue
			}
			result.JobsFailed++
		case CleanupModeDelete:
			chunksDeleted, err := s.deleteJob(ctx, job)
			if err != nil {
				slogger.ErrorWithError(ctx, err, "Could not delete stuck job", slogger.Fields{
					"job_id": job.ID().String(),
				})
				continue
			}
			result.JobsDeleted++
			result.ChunksDeleted += chunksDeleted
		}
	}

	slogger.Info(ctx, "Cleanup sweep finished", slogger.Fields{
		"mode":            string(mode),
		"threshold_hours": clamped,
		"stuck_jobs":      len(jobs),
		"jobs_failed":     result.JobsFailed,
		"jobs_deleted":    result.JobsDeleted,
		"chunks_deleted":  result.ChunksDeleted,
	})
	return result, nil
}

func (s *CleanupService) markFailed(ctx context.Context, job *entity.ProcessingJob) error {
	age := time.Since(job.UpdatedAt()).Round(time.Minute)
	if err := job.Fail(fmt.Sprintf("stuck at zero progress for %s, reaped", age)); err != nil {
		return err
	}
	return s.jobRepo.Update(ctx, job)
}

// deleteJob removes the job's chunks before the job row so no chunk is
// ever left referencing a missing job.
func (s *CleanupService) deleteJob(ctx context.Context, job *entity.ProcessingJob) (int, error) {
	chunksDeleted, err := s.chunkRepo.DeleteByJobID(ctx, job.ID())
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := s.jobRepo.Delete(ctx, job.ID()); err != nil {
		return chunksDeleted, fmt.Errorf("failed to delete job: %w", err)
	}
	return chunksDeleted, nil
}
