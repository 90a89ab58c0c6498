package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/messaging"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
)

// fakeJobRepository is an in-memory JobRepository. Counters live in their
// own map, mirroring the storage-side columns the atomic increments
// operate on.
type fakeJobRepository struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*entity.ProcessingJob
	counters map[uuid.UUID]*outbound.JobCounters
	saveErr  error
}

func newFakeJobRepository() *fakeJobRepository {
	return &fakeJobRepository{
		jobs:     make(map[uuid.UUID]*entity.ProcessingJob),
		counters: make(map[uuid.UUID]*outbound.JobCounters),
	}
}

func (r *fakeJobRepository) Save(_ context.Context, job *entity.ProcessingJob) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID()] = job
	r.counters[job.ID()] = &outbound.JobCounters{
		TotalUnits:     job.TotalUnits(),
		CompletedUnits: job.CompletedUnits(),
		FailedUnits:    job.FailedUnits(),
	}
	return nil
}

func (r *fakeJobRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id], nil
}

func (r *fakeJobRepository) FindByDocumentID(
	_ context.Context,
	documentID uuid.UUID,
	filters outbound.JobFilters,
) ([]*entity.ProcessingJob, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*entity.ProcessingJob
	for _, job := range r.jobs {
		if job.DocumentID() != documentID {
			continue
		}
		if filters.Status != nil && job.Status() != *filters.Status {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, len(jobs), nil
}

func (r *fakeJobRepository) Update(_ context.Context, job *entity.ProcessingJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID()] = job
	if counters, ok := r.counters[job.ID()]; ok {
		counters.TotalUnits = job.TotalUnits()
	}
	return nil
}

func (r *fakeJobRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
	delete(r.counters, id)
	return nil
}

func (r *fakeJobRepository) IncrementCompletedUnits(_ context.Context, jobID uuid.UUID) (outbound.JobCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters, ok := r.counters[jobID]
	if !ok {
		return outbound.JobCounters{}, errors.New("job not found")
	}
	if !r.jobs[jobID].IsTerminal() {
		counters.CompletedUnits++
	}
	return *counters, nil
}

func (r *fakeJobRepository) IncrementFailedUnits(_ context.Context, jobID uuid.UUID) (outbound.JobCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters, ok := r.counters[jobID]
	if !ok {
		return outbound.JobCounters{}, errors.New("job not found")
	}
	if !r.jobs[jobID].IsTerminal() {
		counters.FailedUnits++
	}
	return *counters, nil
}

func (r *fakeJobRepository) RewindFailedUnits(_ context.Context, jobID uuid.UUID, count int) (outbound.JobCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counters, ok := r.counters[jobID]
	if !ok {
		return outbound.JobCounters{}, errors.New("job not found")
	}
	counters.FailedUnits -= count
	return *counters, nil
}

func (r *fakeJobRepository) FindStuck(_ context.Context, updatedBefore time.Time) ([]*entity.ProcessingJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stuck []*entity.ProcessingJob
	for id, job := range r.jobs {
		if job.IsTerminal() {
			continue
		}
		if r.counters[id].CompletedUnits > 0 {
			continue
		}
		if job.UpdatedAt().Before(updatedBefore) {
			stuck = append(stuck, job)
		}
	}
	return stuck, nil
}

// fakeChunkRepository is an in-memory ChunkRepository driven by the chunk
// entity's own transition rules.
type fakeChunkRepository struct {
	mu     sync.Mutex
	chunks map[uuid.UUID]*entity.DocumentChunk
}

func newFakeChunkRepository() *fakeChunkRepository {
	return &fakeChunkRepository{chunks: make(map[uuid.UUID]*entity.DocumentChunk)}
}

func (r *fakeChunkRepository) SaveBulk(_ context.Context, chunks []*entity.DocumentChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, chunk := range chunks {
		r.chunks[chunk.ID()] = chunk
	}
	return nil
}

func (r *fakeChunkRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks[id], nil
}

func (r *fakeChunkRepository) FindByJobID(_ context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var chunks []*entity.DocumentChunk
	for _, chunk := range r.chunks {
		if chunk.JobID() == jobID {
			chunks = append(chunks, chunk)
		}
	}
	sortChunks(chunks)
	return chunks, nil
}

func (r *fakeChunkRepository) FindByDocumentID(_ context.Context, documentID uuid.UUID) ([]*entity.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var chunks []*entity.DocumentChunk
	for _, chunk := range r.chunks {
		if chunk.DocumentID() == documentID {
			chunks = append(chunks, chunk)
		}
	}
	sortChunks(chunks)
	return chunks, nil
}

func (r *fakeChunkRepository) FindByJobIDAndStatus(
	_ context.Context,
	jobID uuid.UUID,
	status valueobject.ChunkStatus,
) ([]*entity.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var chunks []*entity.DocumentChunk
	for _, chunk := range r.chunks {
		if chunk.JobID() == jobID && chunk.Status() == status {
			chunks = append(chunks, chunk)
		}
	}
	sortChunks(chunks)
	return chunks, nil
}

func (r *fakeChunkRepository) ClaimForProcessing(_ context.Context, chunkID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, ok := r.chunks[chunkID]
	if !ok {
		return false, errors.New("chunk not found")
	}
	if chunk.Status() != valueobject.ChunkStatusPending {
		return false, nil
	}
	return true, chunk.StartProcessing()
}

func (r *fakeChunkRepository) MarkCompleted(_ context.Context, chunkID uuid.UUID, contentText string, embedding []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, ok := r.chunks[chunkID]
	if !ok {
		return errors.New("chunk not found")
	}
	return chunk.Complete(contentText, embedding)
}

func (r *fakeChunkRepository) MarkFailed(_ context.Context, chunkID uuid.UUID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, ok := r.chunks[chunkID]
	if !ok {
		return errors.New("chunk not found")
	}
	return chunk.Fail(errorMessage)
}

func (r *fakeChunkRepository) MarkSkipped(_ context.Context, chunkID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	chunk, ok := r.chunks[chunkID]
	if !ok {
		return errors.New("chunk not found")
	}
	return chunk.Skip()
}

func (r *fakeChunkRepository) ResetFailedChunks(_ context.Context, jobID uuid.UUID) ([]*entity.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var reset []*entity.DocumentChunk
	for _, chunk := range r.chunks {
		if chunk.JobID() != jobID || chunk.Status() != valueobject.ChunkStatusFailed {
			continue
		}
		if err := chunk.ResetForRetry(); err != nil {
			return nil, err
		}
		reset = append(reset, chunk)
	}
	sortChunks(reset)
	return reset, nil
}

func (r *fakeChunkRepository) DeleteByJobID(_ context.Context, jobID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, chunk := range r.chunks {
		if chunk.JobID() == jobID {
			delete(r.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeChunkRepository) DeleteByDocumentID(_ context.Context, documentID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := 0
	for id, chunk := range r.chunks {
		if chunk.DocumentID() == documentID {
			delete(r.chunks, id)
			deleted++
		}
	}
	return deleted, nil
}

func sortChunks(chunks []*entity.DocumentChunk) {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex() < chunks[j].ChunkIndex()
	})
}

// fakePublisher records published chunk work messages.
type fakePublisher struct {
	mu         sync.Mutex
	messages   []messaging.ChunkWorkMessage
	publishErr error
}

func (p *fakePublisher) PublishChunkWork(_ context.Context, message messaging.ChunkWorkMessage) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakePublisher) published() []messaging.ChunkWorkMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.ChunkWorkMessage(nil), p.messages...)
}

// fakeExtractor returns a canned extraction result.
type fakeExtractor struct {
	result *outbound.ExtractionResult
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, _ string) (*outbound.ExtractionResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

// fakeSessionRepository is an in-memory BatchSessionRepository. Reads and
// writes go through deep copies so callers never share a pointer with the
// store, exactly as rows scanned from a real database behave.
type fakeSessionRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entity.BatchSession
}

func newFakeSessionRepository() *fakeSessionRepository {
	return &fakeSessionRepository{sessions: make(map[uuid.UUID]*entity.BatchSession)}
}

func cloneSession(session *entity.BatchSession) *entity.BatchSession {
	documentIDs := make([]uuid.UUID, len(session.DocumentIDs()))
	copy(documentIDs, session.DocumentIDs())
	errorLog := make([]entity.SessionError, len(session.ErrorLog()))
	copy(errorLog, session.ErrorLog())
	var checkpoint *time.Time
	if cp := session.LastCheckpoint(); cp != nil {
		cpCopy := *cp
		checkpoint = &cpCopy
	}
	return entity.RestoreBatchSession(
		session.ID(), session.Status(), documentIDs,
		session.DocumentsProcessed(), session.DocumentsSucceeded(), session.DocumentsFailed(),
		checkpoint, session.Options(), errorLog,
		session.CreatedAt(), session.UpdatedAt(),
	)
}

func (r *fakeSessionRepository) Save(_ context.Context, session *entity.BatchSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID()] = cloneSession(session)
	return nil
}

func (r *fakeSessionRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.BatchSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

func (r *fakeSessionRepository) Update(_ context.Context, session *entity.BatchSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID()]; !ok {
		return errors.New("session row not found")
	}
	r.sessions[session.ID()] = cloneSession(session)
	return nil
}

// Checkpoint mirrors the SQL adapter's status-less flush: counters, error
// log and checkpoint timestamp are written, the stored status survives.
func (r *fakeSessionRepository) Checkpoint(_ context.Context, session *entity.BatchSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID()]
	if !ok {
		return errors.New("session row not found")
	}
	flushed := cloneSession(session)
	r.sessions[session.ID()] = entity.RestoreBatchSession(
		flushed.ID(), stored.Status(), flushed.DocumentIDs(),
		flushed.DocumentsProcessed(), flushed.DocumentsSucceeded(), flushed.DocumentsFailed(),
		flushed.LastCheckpoint(), flushed.Options(), flushed.ErrorLog(),
		flushed.CreatedAt(), flushed.UpdatedAt(),
	)
	return nil
}

// fakeStatusRepository is an in-memory BatchDocumentStatusRepository.
type fakeStatusRepository struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]map[uuid.UUID]*entity.BatchDocumentStatus
}

func newFakeStatusRepository() *fakeStatusRepository {
	return &fakeStatusRepository{statuses: make(map[uuid.UUID]map[uuid.UUID]*entity.BatchDocumentStatus)}
}

func (r *fakeStatusRepository) SaveAll(_ context.Context, statuses []*entity.BatchDocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, status := range statuses {
		bySession, ok := r.statuses[status.SessionID()]
		if !ok {
			bySession = make(map[uuid.UUID]*entity.BatchDocumentStatus)
			r.statuses[status.SessionID()] = bySession
		}
		// Mirrors ON CONFLICT DO NOTHING: existing rows survive.
		if _, exists := bySession[status.DocumentID()]; !exists {
			bySession[status.DocumentID()] = status
		}
	}
	return nil
}

func (r *fakeStatusRepository) Find(_ context.Context, sessionID, documentID uuid.UUID) (*entity.BatchDocumentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[sessionID][documentID], nil
}

func (r *fakeStatusRepository) FindBySession(_ context.Context, sessionID uuid.UUID) ([]*entity.BatchDocumentStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*entity.BatchDocumentStatus
	for _, status := range r.statuses[sessionID] {
		all = append(all, status)
	}
	return all, nil
}

func (r *fakeStatusRepository) Update(_ context.Context, status *entity.BatchDocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bySession, ok := r.statuses[status.SessionID()]
	if !ok {
		bySession = make(map[uuid.UUID]*entity.BatchDocumentStatus)
		r.statuses[status.SessionID()] = bySession
	}
	bySession[status.DocumentID()] = status
	return nil
}
