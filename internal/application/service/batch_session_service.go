package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/domain/entity"
	"caseindex/internal/domain/valueobject"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Batch session defaults applied when the caller's options leave them zero.
const (
	DefaultBatchSize        = 10
	DefaultBatchConcurrency = 4
)

// ErrSessionNotFound is returned when a referenced session does not exist.
var ErrSessionNotFound = errors.New("batch session not found")

// BatchSessionService runs many documents through the pipeline with
// bounded concurrency and durable checkpoints. A session runs with
// concurrency of one at the session level; only documents within one
// internal batch run in parallel.
type BatchSessionService struct {
	sessionRepo outbound.BatchSessionRepository
	statusRepo  outbound.BatchDocumentStatusRepository
	processor   DocumentProcessor
}

// NewBatchSessionService creates a new batch session service.
func NewBatchSessionService(
	sessionRepo outbound.BatchSessionRepository,
	statusRepo outbound.BatchDocumentStatusRepository,
	processor DocumentProcessor,
) *BatchSessionService {
	return &BatchSessionService{
		sessionRepo: sessionRepo,
		statusRepo:  statusRepo,
		processor:   processor,
	}
}

// CreateSession durably records a session over the ordered document IDs
// and seeds a pending status row per document. The caller's request
// succeeds here; processing happens in Run.
func (s *BatchSessionService) CreateSession(
	ctx context.Context,
	documentIDs []uuid.UUID,
	options entity.SessionOptions,
) (*entity.BatchSession, error) {
	if options.BatchSize <= 0 {
		options.BatchSize = DefaultBatchSize
	}
	if options.Concurrency <= 0 {
		options.Concurrency = DefaultBatchConcurrency
	}

	session, err := entity.NewBatchSession(documentIDs, options)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to record batch session: %w", err)
	}

	statuses := make([]*entity.BatchDocumentStatus, 0, len(documentIDs))
	for _, documentID := range documentIDs {
		statuses = append(statuses, entity.NewBatchDocumentStatus(session.ID(), documentID))
	}
	if err := s.statusRepo.SaveAll(ctx, statuses); err != nil {
		return nil, fmt.Errorf("failed to seed document statuses: %w", err)
	}

	slogger.Info(ctx, "Batch session created", slogger.Fields{
		"session_id": session.ID().String(),
		"documents":  len(documentIDs),
	})
	return session, nil
}

// GetSession returns one session by ID.
func (s *BatchSessionService) GetSession(ctx context.Context, sessionID uuid.UUID) (*entity.BatchSession, error) {
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Run drives the session batch by batch until it finishes, pauses or is
// cancelled. Created sessions start, paused ones resume; resume trusts
// only the per-document status rows, never in-memory progress, so a crash
// loses at most one internal batch.
func (s *BatchSessionService) Run(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	switch session.Status() {
	case valueobject.SessionStatusCreated:
		if err := session.Start(); err != nil {
			return err
		}
	case valueobject.SessionStatusPaused:
		if err := session.Resume(); err != nil {
			return err
		}
	case valueobject.SessionStatusRunning:
		// Continue where the status rows say we left off.
	default:
		return entity.NewDomainError(
			fmt.Sprintf("cannot run a %s session", session.Status()),
			"INVALID_STATUS_TRANSITION",
		)
	}
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to persist session start: %w", err)
	}

	documentIDs := session.DocumentIDs()
	batchSize := session.Options().BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(documentIDs); start += batchSize {
		// Re-read before every batch so a pause or cancel issued from
		// another process stops dispatch at the next batch boundary.
		session, err = s.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.Status() != valueobject.SessionStatusRunning {
			slogger.Info(ctx, "Session no longer running, stopping dispatch", slogger.Fields{
				"session_id": sessionID.String(),
				"status":     session.Status().String(),
			})
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + batchSize
		if end > len(documentIDs) {
			end = len(documentIDs)
		}

		if err := s.runBatch(ctx, session, documentIDs[start:end]); err != nil {
			return err
		}
		if err := s.checkpoint(ctx, session); err != nil {
			return err
		}
	}

	return s.finish(ctx, sessionID)
}

// Pause stops dispatching further internal batches. In-flight documents
// finish; nothing is rolled back.
func (s *BatchSessionService) Pause(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := session.Pause(); err != nil {
		return err
	}
	return s.sessionRepo.Update(ctx, session)
}

// Cancel marks the session cancelled. No further batches dispatch.
func (s *BatchSessionService) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := session.Cancel(); err != nil {
		return err
	}
	return s.sessionRepo.Update(ctx, session)
}

// RetryFailed re-queues only the documents whose status is failed,
// reopening the session if it already finished. Returns the number of
// documents re-queued; Run processes them.
func (s *BatchSessionService) RetryFailed(ctx context.Context, sessionID uuid.UUID) (int, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	statuses, err := s.statusRepo.FindBySession(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list document statuses: %w", err)
	}

	var reset int
	for _, status := range statuses {
		if status.State() != valueobject.DocumentStateFailed {
			continue
		}
		if err := status.ResetForRetry(); err != nil {
			return reset, err
		}
		if err := s.statusRepo.Update(ctx, status); err != nil {
			return reset, fmt.Errorf("failed to reset document status: %w", err)
		}
		reset++
	}
	if reset == 0 {
		return 0, nil
	}

	if session.IsTerminal() {
		if err := session.ReopenForRetry(); err != nil {
			return reset, err
		}
	}
	if err := session.ReopenFailedDocuments(reset); err != nil {
		return reset, err
	}
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return reset, fmt.Errorf("failed to persist session reopen: %w", err)
	}

	slogger.Info(ctx, "Failed documents re-queued", slogger.Fields{
		"session_id": sessionID.String(),
		"documents":  reset,
	})
	return reset, nil
}

// runBatch processes one internal batch of documents concurrently, bounded
// by the session's concurrency option. Per-document failures become state
// and error-log entries; only infrastructure errors propagate.
func (s *BatchSessionService) runBatch(
	ctx context.Context,
	session *entity.BatchSession,
	documentIDs []uuid.UUID,
) error {
	concurrency := session.Options().Concurrency
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	group, groupCtx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var failures []entity.SessionError

	for _, documentID := range documentIDs {
		documentID := documentID
		if err := sem.Acquire(groupCtx, 1); err != nil {
			return err
		}

		group.Go(func() error {
			defer sem.Release(1)

			failure := s.processOne(groupCtx, session, documentID)
			if failure != nil {
				mu.Lock()
				failures = append(failures, *failure)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	for _, failure := range failures {
		session.RecordError(failure.DocumentID, failure.Message)
	}
	return nil
}

// processOne runs one document and writes its status row. A returned
// SessionError describes a per-document failure; nil means skipped or
// succeeded.
func (s *BatchSessionService) processOne(
	ctx context.Context,
	session *entity.BatchSession,
	documentID uuid.UUID,
) *entity.SessionError {
	status, err := s.statusRepo.Find(ctx, session.ID(), documentID)
	if err != nil {
		return s.failureRecord(ctx, nil, documentID, fmt.Sprintf("failed to read document status: %v", err))
	}
	if status == nil {
		status = entity.NewBatchDocumentStatus(session.ID(), documentID)
	}

	switch status.State() {
	case valueobject.DocumentStateCompleted:
		// Idempotent resume: never reprocess a completed document.
		return nil
	case valueobject.DocumentStateFailed:
		// Failed documents are re-queued only by retry-failed.
		return nil
	case valueobject.DocumentStatePending:
		if err := status.StartProcessing(); err != nil {
			return s.failureRecord(ctx, status, documentID, err.Error())
		}
		if err := s.statusRepo.Update(ctx, status); err != nil {
			return s.failureRecord(ctx, status, documentID, fmt.Sprintf("failed to claim document: %v", err))
		}
	case valueobject.DocumentStateProcessing:
		// Stale claim from a crashed run; process it again.
	}

	result, err := s.processor.ProcessDocument(ctx, documentID, session.Options())
	if err != nil {
		return s.failureRecord(ctx, status, documentID, err.Error())
	}

	if err := status.Complete(result); err != nil {
		return s.failureRecord(ctx, status, documentID, err.Error())
	}
	if err := s.statusRepo.Update(ctx, status); err != nil {
		return s.failureRecord(ctx, status, documentID, fmt.Sprintf("failed to persist completion: %v", err))
	}
	return nil
}

// failureRecord marks the document failed and returns the session error
// entry for it.
func (s *BatchSessionService) failureRecord(
	ctx context.Context,
	status *entity.BatchDocumentStatus,
	documentID uuid.UUID,
	message string,
) *entity.SessionError {
	slogger.Error(ctx, "Batch document failed", slogger.Fields{
		"document_id": documentID.String(),
		"error":       message,
	})

	if status != nil {
		if err := status.Fail(message); err == nil {
			if updateErr := s.statusRepo.Update(ctx, status); updateErr != nil {
				slogger.ErrorWithError(ctx, updateErr, "Could not persist document failure", slogger.Fields{
					"document_id": documentID.String(),
				})
			}
		}
	}

	return &entity.SessionError{DocumentID: documentID, Message: message}
}

// checkpoint recounts aggregates from the per-document status rows and
// flushes them with lastCheckpoint in one durable write. Recounting from
// rows, not memory, is what makes resume trustworthy.
func (s *BatchSessionService) checkpoint(ctx context.Context, session *entity.BatchSession) error {
	statuses, err := s.statusRepo.FindBySession(ctx, session.ID())
	if err != nil {
		return fmt.Errorf("failed to recount document statuses: %w", err)
	}

	var succeeded, failed int
	for _, status := range statuses {
		switch status.State() {
		case valueobject.DocumentStateCompleted:
			succeeded++
		case valueobject.DocumentStateFailed:
			failed++
		}
	}

	if err := session.Checkpoint(succeeded+failed, succeeded, failed); err != nil {
		return err
	}
	// The status-less write keeps a pause or cancel persisted mid-batch
	// intact; the next loop iteration re-reads it and stops dispatching.
	if err := s.sessionRepo.Checkpoint(ctx, session); err != nil {
		return fmt.Errorf("failed to flush checkpoint: %w", err)
	}

	slogger.Debug(ctx, "Session checkpoint flushed", slogger.Fields{
		"session_id": session.ID().String(),
		"processed":  succeeded + failed,
		"succeeded":  succeeded,
		"failed":     failed,
	})
	return nil
}

// finish completes the session once every batch has dispatched, unless a
// pause or cancel landed during the final batch.
func (s *BatchSessionService) finish(ctx context.Context, sessionID uuid.UUID) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status() != valueobject.SessionStatusRunning {
		return nil
	}
	if err := session.Complete(); err != nil {
		return err
	}
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}

	slogger.Info(ctx, "Batch session completed", slogger.Fields{
		"session_id": sessionID.String(),
		"processed":  session.DocumentsProcessed(),
		"succeeded":  session.DocumentsSucceeded(),
		"failed":     session.DocumentsFailed(),
	})
	return nil
}
