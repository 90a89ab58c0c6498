package service

import (
	"context"
	"testing"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedJobWithChunks stores a running job with totalUnits chunks, failing
// the chunks whose indexes appear in failedIndexes and completing the rest.
func seedJobWithChunks(
	t *testing.T,
	jobRepo *fakeJobRepository,
	chunkRepo *fakeChunkRepository,
	totalUnits int,
	failedIndexes map[int]bool,
) *entity.ProcessingJob {
	t.Helper()
	ctx := context.Background()

	job := entity.NewProcessingJob(uuid.New(), valueobject.JobTypeDocumentChunk, nil)
	require.NoError(t, job.SetTotalUnits(totalUnits))
	require.NoError(t, jobRepo.Save(ctx, job))
	require.NoError(t, job.Start())
	require.NoError(t, jobRepo.Update(ctx, job))

	chunks := make([]*entity.DocumentChunk, 0, totalUnits)
	for i := 0; i < totalUnits; i++ {
		chunk, err := entity.NewDocumentChunk(job.DocumentID(), job.ID(), i, i*100, (i+1)*100)
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	require.NoError(t, chunkRepo.SaveBulk(ctx, chunks))

	for i, chunk := range chunks {
		require.NoError(t, chunk.StartProcessing())
		if failedIndexes[i] {
			require.NoError(t, chunk.Fail("embedding timeout"))
			_, err := jobRepo.IncrementFailedUnits(ctx, job.ID())
			require.NoError(t, err)
		} else {
			require.NoError(t, chunk.Complete("content", nil))
			_, err := jobRepo.IncrementCompletedUnits(ctx, job.ID())
			require.NoError(t, err)
		}
	}
	return job
}

func TestJobService_GetJob_NotFound(t *testing.T) {
	svc := NewJobService(newFakeJobRepository(), newFakeChunkRepository(), &fakePublisher{}, 0)

	_, err := svc.GetJob(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobService_EnsureRunning(t *testing.T) {
	jobRepo := newFakeJobRepository()
	svc := NewJobService(jobRepo, newFakeChunkRepository(), &fakePublisher{}, 0)
	ctx := context.Background()

	job := entity.NewProcessingJob(uuid.New(), valueobject.JobTypeDocumentChunk, nil)
	require.NoError(t, jobRepo.Save(ctx, job))

	require.NoError(t, svc.EnsureRunning(ctx, job.ID()))
	assert.Equal(t, valueobject.JobStatusRunning, job.Status())

	// Idempotent: a second call on a running job is a no-op.
	require.NoError(t, svc.EnsureRunning(ctx, job.ID()))
	assert.Equal(t, valueobject.JobStatusRunning, job.Status())
}

func TestJobService_FinalizeIfDone(t *testing.T) {
	t.Run("not all terminal is a no-op", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		chunkRepo := newFakeChunkRepository()
		svc := NewJobService(jobRepo, chunkRepo, &fakePublisher{}, 0)
		job := seedJobWithChunks(t, jobRepo, chunkRepo, 10, nil)

		err := svc.FinalizeIfDone(context.Background(), job.ID(), outbound.JobCounters{
			TotalUnits: 10, CompletedUnits: 5, FailedUnits: 0,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusRunning, job.Status())
	})

	t.Run("all completed finalizes to completed", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		chunkRepo := newFakeChunkRepository()
		svc := NewJobService(jobRepo, chunkRepo, &fakePublisher{}, 0)
		job := seedJobWithChunks(t, jobRepo, chunkRepo, 10, nil)

		err := svc.FinalizeIfDone(context.Background(), job.ID(), outbound.JobCounters{
			TotalUnits: 10, CompletedUnits: 10, FailedUnits: 0,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
		assert.Equal(t, 10, job.CompletedUnits())
	})

	t.Run("any failure beyond tolerance fails the job", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		chunkRepo := newFakeChunkRepository()
		svc := NewJobService(jobRepo, chunkRepo, &fakePublisher{}, 0)
		job := seedJobWithChunks(t, jobRepo, chunkRepo, 10, map[int]bool{3: true})

		err := svc.FinalizeIfDone(context.Background(), job.ID(), outbound.JobCounters{
			TotalUnits: 10, CompletedUnits: 9, FailedUnits: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusFailed, job.Status())
		require.NotNil(t, job.ErrorMessage())
	})

	t.Run("failure ratio within tolerance completes", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		chunkRepo := newFakeChunkRepository()
		svc := NewJobService(jobRepo, chunkRepo, &fakePublisher{}, 0.2)
		job := seedJobWithChunks(t, jobRepo, chunkRepo, 10, map[int]bool{0: true, 1: true})

		err := svc.FinalizeIfDone(context.Background(), job.ID(), outbound.JobCounters{
			TotalUnits: 10, CompletedUnits: 8, FailedUnits: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
	})

	t.Run("still-pending job with all-terminal counters finalizes", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		svc := NewJobService(jobRepo, newFakeChunkRepository(), &fakePublisher{}, 0)
		ctx := context.Background()

		// Every running-transition attempt was lost, so the job never
		// left pending even though all its units finished.
		job := entity.NewProcessingJob(uuid.New(), valueobject.JobTypeDocumentChunk, nil)
		require.NoError(t, job.SetTotalUnits(2))
		require.NoError(t, jobRepo.Save(ctx, job))
		require.Equal(t, valueobject.JobStatusPending, job.Status())

		err := svc.FinalizeIfDone(ctx, job.ID(), outbound.JobCounters{
			TotalUnits: 2, CompletedUnits: 2, FailedUnits: 0,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
		assert.NotNil(t, job.StartedAt())
	})

	t.Run("still-pending job finalizes to failed beyond tolerance", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		svc := NewJobService(jobRepo, newFakeChunkRepository(), &fakePublisher{}, 0)
		ctx := context.Background()

		job := entity.NewProcessingJob(uuid.New(), valueobject.JobTypeDocumentChunk, nil)
		require.NoError(t, job.SetTotalUnits(2))
		require.NoError(t, jobRepo.Save(ctx, job))

		err := svc.FinalizeIfDone(ctx, job.ID(), outbound.JobCounters{
			TotalUnits: 2, CompletedUnits: 1, FailedUnits: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusFailed, job.Status())
	})

	t.Run("already terminal is a no-op", func(t *testing.T) {
		jobRepo := newFakeJobRepository()
		chunkRepo := newFakeChunkRepository()
		svc := NewJobService(jobRepo, chunkRepo, &fakePublisher{}, 0)
		job := seedJobWithChunks(t, jobRepo, chunkRepo, 2, nil)
		require.NoError(t, job.UpdateProgress(2, 0))
		require.NoError(t, job.Complete())

		err := svc.FinalizeIfDone(context.Background(), job.ID(), outbound.JobCounters{
			TotalUnits: 2, CompletedUnits: 2, FailedUnits: 0,
		})
		require.NoError(t, err)
		assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
	})
}

func TestJobService_RetryFailedChunks(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	publisher := &fakePublisher{}
	svc := NewJobService(jobRepo, chunkRepo, publisher, 0)
	ctx := context.Background()

	failed := map[int]bool{2: true, 5: true, 8: true}
	job := seedJobWithChunks(t, jobRepo, chunkRepo, 10, failed)

	// Finalize: 3 of 10 failed with zero tolerance fails the job.
	require.NoError(t, svc.FinalizeIfDone(ctx, job.ID(), outbound.JobCounters{
		TotalUnits: 10, CompletedUnits: 7, FailedUnits: 3,
	}))
	require.Equal(t, valueobject.JobStatusFailed, job.Status())

	count, err := svc.RetryFailedChunks(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// The job reopened and exactly the failed chunks were reset.
	assert.Equal(t, valueobject.JobStatusRunning, job.Status())
	chunks, err := chunkRepo.FindByJobID(ctx, job.ID())
	require.NoError(t, err)
	for _, chunk := range chunks {
		if failed[chunk.ChunkIndex()] {
			assert.Equal(t, valueobject.ChunkStatusPending, chunk.Status())
		} else {
			assert.Equal(t, valueobject.ChunkStatusCompleted, chunk.Status())
		}
	}

	// Exactly the reset chunks were re-dispatched, in index order.
	messages := publisher.published()
	require.Len(t, messages, 3)
	assert.Equal(t, 2, messages[0].ChunkIndex)
	assert.Equal(t, 5, messages[1].ChunkIndex)
	assert.Equal(t, 8, messages[2].ChunkIndex)

	// The failed counter rewound so reprocessing can complete the job.
	counters, err := jobRepo.IncrementCompletedUnits(ctx, job.ID())
	require.NoError(t, err)
	assert.Equal(t, 8, counters.CompletedUnits)
	assert.Equal(t, 0, counters.FailedUnits)
}

func TestJobService_RetryFailedChunks_NoFailedChunks(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	publisher := &fakePublisher{}
	svc := NewJobService(jobRepo, chunkRepo, publisher, 0)

	job := seedJobWithChunks(t, jobRepo, chunkRepo, 3, nil)

	count, err := svc.RetryFailedChunks(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, publisher.published())
}

func TestJobService_RetryFailedChunks_RejectsWrongStatus(t *testing.T) {
	jobRepo := newFakeJobRepository()
	svc := NewJobService(jobRepo, newFakeChunkRepository(), &fakePublisher{}, 0)
	ctx := context.Background()

	job := entity.NewProcessingJob(uuid.New(), valueobject.JobTypeDocumentChunk, nil)
	require.NoError(t, jobRepo.Save(ctx, job))
	require.NoError(t, job.Start())
	require.NoError(t, job.Complete())

	_, err := svc.RetryFailedChunks(ctx, job.ID())
	require.Error(t, err)

	var domainErr *entity.DomainError
	require.ErrorAs(t, err, &domainErr)
}

func TestJobService_CancelJob(t *testing.T) {
	jobRepo := newFakeJobRepository()
	svc := NewJobService(jobRepo, newFakeChunkRepository(), &fakePublisher{}, 0)
	ctx := context.Background()

	job := entity.NewProcessingJob(uuid.New(), valueobject.JobTypeDocumentChunk, nil)
	require.NoError(t, jobRepo.Save(ctx, job))

	require.NoError(t, svc.CancelJob(ctx, job.ID()))
	assert.Equal(t, valueobject.JobStatusCancelled, job.Status())

	// Counter updates after cancellation land on a frozen job.
	counters, err := jobRepo.IncrementCompletedUnits(ctx, job.ID())
	require.NoError(t, err)
	assert.Zero(t, counters.CompletedUnits)

	require.Error(t, svc.CancelJob(ctx, job.ID()))
}
