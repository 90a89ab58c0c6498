package service

import (
	"context"
	"testing"
	"time"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// restoreJobUpdatedAt stores a job whose updatedAt sits the given duration
// in the past.
func restoreJobUpdatedAt(
	t *testing.T,
	jobRepo *fakeJobRepository,
	status valueobject.JobStatus,
	totalUnits int,
	age time.Duration,
) *entity.ProcessingJob {
	t.Helper()
	past := time.Now().Add(-age)
	job := entity.RestoreProcessingJob(
		uuid.New(), uuid.New(), valueobject.JobTypeDocumentChunk, status,
		totalUnits, 0, 0, nil, nil, past, nil, nil, past,
	)
	require.NoError(t, jobRepo.Save(context.Background(), job))
	return job
}

func TestClampThresholdHours(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{2, 2},
		{24, 24},
		{25, 24},
		{100, 24},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampThresholdHours(tt.in), "ClampThresholdHours(%d)", tt.in)
	}
}

func TestCleanupService_FindStuckJobs(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	svc := NewCleanupService(jobRepo, chunkRepo)
	ctx := context.Background()

	stale := restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusRunning, 5, 3*time.Hour)
	restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusRunning, 5, 10*time.Minute)
	restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusCompleted, 5, 48*time.Hour)

	// A slow job with progress is never stuck regardless of age.
	slow := restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusRunning, 5, 48*time.Hour)
	_, err := jobRepo.IncrementCompletedUnits(ctx, slow.ID())
	require.NoError(t, err)

	stuck, err := svc.FindStuckJobs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, stale.ID(), stuck[0].ID())
}

func TestCleanupService_Sweep_DryRunMutatesNothing(t *testing.T) {
	jobRepo := newFakeJobRepository()
	svc := NewCleanupService(jobRepo, newFakeChunkRepository())
	ctx := context.Background()

	stale := restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusPending, 3, 5*time.Hour)

	result, err := svc.Sweep(ctx, 2, CleanupModeDryRun)
	require.NoError(t, err)

	assert.Len(t, result.StuckJobs, 1)
	assert.Zero(t, result.JobsFailed)
	assert.Zero(t, result.JobsDeleted)
	assert.Equal(t, valueobject.JobStatusPending, stale.Status())

	found, err := jobRepo.FindByID(ctx, stale.ID())
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestCleanupService_Sweep_MarkFailed(t *testing.T) {
	jobRepo := newFakeJobRepository()
	svc := NewCleanupService(jobRepo, newFakeChunkRepository())
	ctx := context.Background()

	stale := restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusRunning, 3, 5*time.Hour)

	result, err := svc.Sweep(ctx, 2, CleanupModeMarkFailed)
	require.NoError(t, err)

	assert.Equal(t, 1, result.JobsFailed)
	assert.Equal(t, valueobject.JobStatusFailed, stale.Status())
	require.NotNil(t, stale.ErrorMessage())
	assert.Contains(t, *stale.ErrorMessage(), "reaped")
}

func TestCleanupService_Sweep_DeleteRemovesChunksAndJob(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	svc := NewCleanupService(jobRepo, chunkRepo)
	ctx := context.Background()

	stale := restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusPending, 2, 5*time.Hour)
	for i := 0; i < 2; i++ {
		chunk, err := entity.NewDocumentChunk(stale.DocumentID(), stale.ID(), i, i*10, (i+1)*10)
		require.NoError(t, err)
		require.NoError(t, chunkRepo.SaveBulk(ctx, []*entity.DocumentChunk{chunk}))
	}

	result, err := svc.Sweep(ctx, 2, CleanupModeDelete)
	require.NoError(t, err)

	assert.Equal(t, 1, result.JobsDeleted)
	assert.Equal(t, 2, result.ChunksDeleted)

	found, err := jobRepo.FindByID(ctx, stale.ID())
	require.NoError(t, err)
	assert.Nil(t, found)

	chunks, err := chunkRepo.FindByJobID(ctx, stale.ID())
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestCleanupService_Sweep_ThresholdIsClamped(t *testing.T) {
	jobRepo := newFakeJobRepository()
	svc := NewCleanupService(jobRepo, newFakeChunkRepository())
	ctx := context.Background()

	restoreJobUpdatedAt(t, jobRepo, valueobject.JobStatusRunning, 1, 30*time.Minute)

	// Requested 0 clamps to 1 hour, so a 30-minute-old job is not stuck.
	result, err := svc.Sweep(ctx, 0, CleanupModeDryRun)
	require.NoError(t, err)
	assert.Empty(t, result.StuckJobs)
	assert.Equal(t, time.Hour, result.Threshold)

	// Requested 100 clamps to 24 hours.
	result, err = svc.Sweep(ctx, 100, CleanupModeDryRun)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, result.Threshold)
}

func TestCleanupService_Sweep_InvalidMode(t *testing.T) {
	svc := NewCleanupService(newFakeJobRepository(), newFakeChunkRepository())

	_, err := svc.Sweep(context.Background(), 2, CleanupMode("obliterate"))
	require.Error(t, err)
}
