package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	domainservice "caseindex/internal/domain/service"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChunkingServiceForTest(
	jobRepo *fakeJobRepository,
	chunkRepo *fakeChunkRepository,
	extractor *fakeExtractor,
	publisher *fakePublisher,
) *ChunkingService {
	return NewChunkingService(jobRepo, chunkRepo, extractor, publisher, domainservice.NewDefaultStrategySelector())
}

func TestChunkingService_ChunkDocument(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	extractor := &fakeExtractor{result: &outbound.ExtractionResult{
		Text:     "page one\fpage two\fpage three",
		MimeType: "application/pdf",
	}}
	publisher := &fakePublisher{}
	svc := newChunkingServiceForTest(jobRepo, chunkRepo, extractor, publisher)

	documentID := uuid.New()
	job, err := svc.ChunkDocument(context.Background(), documentID, "/data/brief.pdf")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, documentID, job.DocumentID())
	assert.Equal(t, 3, job.TotalUnits())
	assert.Equal(t, "/data/brief.pdf", job.Metadata()[MetadataKeyLocator])
	assert.Equal(t, "page", job.Metadata()[MetadataKeyStrategy])
	assert.Equal(t, "application/pdf", job.Metadata()[MetadataKeyMimeType])

	chunks, err := chunkRepo.FindByJobID(context.Background(), job.ID())
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex())
		assert.Equal(t, valueobject.ChunkStatusPending, chunk.Status())
		require.NotNil(t, chunk.PageNumber())
		assert.Equal(t, i+1, *chunk.PageNumber())
	}

	// One work message per chunk, carrying the chunk identity.
	messages := publisher.published()
	require.Len(t, messages, 3)
	for i, message := range messages {
		assert.Equal(t, job.ID(), message.JobID)
		assert.Equal(t, documentID, message.DocumentID)
		assert.Equal(t, i, message.ChunkIndex)
	}
}

func TestChunkingService_ChunkDocument_LargeFlatText(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	extractor := &fakeExtractor{result: &outbound.ExtractionResult{
		Text:     strings.Repeat("a", 150_000),
		MimeType: "text/plain",
	}}
	publisher := &fakePublisher{}
	svc := newChunkingServiceForTest(jobRepo, chunkRepo, extractor, publisher)

	job, err := svc.ChunkDocument(context.Background(), uuid.New(), "/data/transcript.txt")
	require.NoError(t, err)
	assert.Equal(t, "sliding-window", job.Metadata()[MetadataKeyStrategy])

	chunks, err := chunkRepo.FindByJobID(context.Background(), job.ID())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// 150k runes, windows of 4000 stepping 3500.
	assert.Equal(t, 4000, chunks[0].EndOffset()-chunks[0].StartOffset())
	assert.Equal(t, 3500, chunks[1].StartOffset())
	assert.Nil(t, chunks[0].PageNumber())
}

func TestChunkingService_ChunkDocument_EmptyDocumentCompletes(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	extractor := &fakeExtractor{result: &outbound.ExtractionResult{Text: "", MimeType: "text/plain"}}
	publisher := &fakePublisher{}
	svc := newChunkingServiceForTest(jobRepo, chunkRepo, extractor, publisher)

	job, err := svc.ChunkDocument(context.Background(), uuid.New(), "/data/empty.txt")
	require.NoError(t, err)

	assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
	assert.Equal(t, 0, job.TotalUnits())
	assert.Empty(t, publisher.published())
}

func TestChunkingService_ChunkDocument_ExtractionFailureFailsJob(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	extractor := &fakeExtractor{err: errors.New("corrupt file")}
	publisher := &fakePublisher{}
	svc := newChunkingServiceForTest(jobRepo, chunkRepo, extractor, publisher)

	// The submission itself succeeds; the failure lands in job state.
	job, err := svc.ChunkDocument(context.Background(), uuid.New(), "/data/bad.pdf")
	require.NoError(t, err)

	assert.Equal(t, valueobject.JobStatusFailed, job.Status())
	require.NotNil(t, job.ErrorMessage())
	assert.Contains(t, *job.ErrorMessage(), "corrupt file")

	stored, err := jobRepo.FindByID(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, valueobject.JobStatusFailed, stored.Status())
}

func TestChunkingService_ChunkDocument_Validation(t *testing.T) {
	svc := newChunkingServiceForTest(newFakeJobRepository(), newFakeChunkRepository(), &fakeExtractor{}, &fakePublisher{})

	_, err := svc.ChunkDocument(context.Background(), uuid.Nil, "/data/doc.txt")
	require.Error(t, err)

	_, err = svc.ChunkDocument(context.Background(), uuid.New(), "")
	require.Error(t, err)
}

func TestChunkingService_ChunkDocument_PublishFailureLeavesJobForReaper(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	extractor := &fakeExtractor{result: &outbound.ExtractionResult{Text: "one\ftwo", MimeType: "application/pdf"}}
	publisher := &fakePublisher{publishErr: errors.New("nats unavailable")}
	svc := newChunkingServiceForTest(jobRepo, chunkRepo, extractor, publisher)

	job, err := svc.ChunkDocument(context.Background(), uuid.New(), "/data/doc.pdf")
	require.NoError(t, err)

	// Dispatch failures do not fail the job; it sits at zero progress
	// where the stuck-job sweep finds it.
	assert.Equal(t, valueobject.JobStatusPending, job.Status())
	assert.Equal(t, 2, job.TotalUnits())
	assert.Equal(t, 0, job.CompletedUnits())
}

func TestChunkingService_ReprocessDocument(t *testing.T) {
	jobRepo := newFakeJobRepository()
	chunkRepo := newFakeChunkRepository()
	extractor := &fakeExtractor{result: &outbound.ExtractionResult{Text: "one\ftwo", MimeType: "application/pdf"}}
	publisher := &fakePublisher{}
	svc := newChunkingServiceForTest(jobRepo, chunkRepo, extractor, publisher)

	documentID := uuid.New()
	first, err := svc.ChunkDocument(context.Background(), documentID, "/data/doc.pdf")
	require.NoError(t, err)

	second, err := svc.ReprocessDocument(context.Background(), documentID, "/data/doc.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())

	// Only the fresh chunks remain.
	chunks, err := chunkRepo.FindByDocumentID(context.Background(), documentID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.Equal(t, second.ID(), chunk.JobID())
	}
}
