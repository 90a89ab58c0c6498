package entity

import (
	"testing"

	"caseindex/internal/domain/valueobject"

	"github.com/google/uuid"
)

func newTestDocumentIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}

func TestNewBatchSession(t *testing.T) {
	ids := newTestDocumentIDs(3)
	session, err := NewBatchSession(ids, SessionOptions{BatchSize: 10, Concurrency: 4})
	if err != nil {
		t.Fatalf("NewBatchSession failed: %v", err)
	}

	if session.ID() == uuid.Nil {
		t.Error("Expected non-nil session ID")
	}
	if session.Status() != valueobject.SessionStatusCreated {
		t.Errorf("Expected created status, got %s", session.Status())
	}
	if len(session.DocumentIDs()) != 3 {
		t.Errorf("Expected 3 documents, got %d", len(session.DocumentIDs()))
	}
	if session.LastCheckpoint() != nil {
		t.Error("Expected no checkpoint on a new session")
	}
}

func TestNewBatchSession_Rejections(t *testing.T) {
	if _, err := NewBatchSession(nil, SessionOptions{}); err == nil {
		t.Error("Expected error for empty document list")
	}

	id := uuid.New()
	if _, err := NewBatchSession([]uuid.UUID{id, id}, SessionOptions{}); err == nil {
		t.Error("Expected error for duplicate document IDs")
	}
}

func TestBatchSession_PauseResume(t *testing.T) {
	session, err := NewBatchSession(newTestDocumentIDs(2), SessionOptions{})
	if err != nil {
		t.Fatalf("NewBatchSession failed: %v", err)
	}

	if err := session.Pause(); err == nil {
		t.Error("Expected error pausing a created session")
	}
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := session.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if session.Status() != valueobject.SessionStatusRunning {
		t.Errorf("Expected running after resume, got %s", session.Status())
	}
	if err := session.Resume(); err == nil {
		t.Error("Expected error resuming a running session")
	}
}

func TestBatchSession_Checkpoint(t *testing.T) {
	session, err := NewBatchSession(newTestDocumentIDs(25), SessionOptions{})
	if err != nil {
		t.Fatalf("NewBatchSession failed: %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := session.Checkpoint(10, 8, 2); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if session.DocumentsProcessed() != 10 || session.DocumentsSucceeded() != 8 || session.DocumentsFailed() != 2 {
		t.Errorf("Expected 10/8/2, got %d/%d/%d",
			session.DocumentsProcessed(), session.DocumentsSucceeded(), session.DocumentsFailed())
	}
	if session.LastCheckpoint() == nil {
		t.Error("Expected checkpoint timestamp")
	}

	if err := session.Checkpoint(10, 9, 2); err == nil {
		t.Error("Expected error when processed != succeeded + failed")
	}
	if err := session.Checkpoint(5, 5, 0); err == nil {
		t.Error("Expected error when checkpoint moves backwards")
	}
	if err := session.Checkpoint(30, 30, 0); err == nil {
		t.Error("Expected error when processed exceeds document count")
	}
}

func TestBatchSession_RetryFailedRewind(t *testing.T) {
	session, err := NewBatchSession(newTestDocumentIDs(10), SessionOptions{})
	if err != nil {
		t.Fatalf("NewBatchSession failed: %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := session.Checkpoint(10, 7, 3); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if err := session.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if err := session.ReopenForRetry(); err != nil {
		t.Fatalf("ReopenForRetry failed: %v", err)
	}
	if err := session.ReopenFailedDocuments(3); err != nil {
		t.Fatalf("ReopenFailedDocuments failed: %v", err)
	}

	// The rewind makes room for the retried documents so the next
	// checkpoint does not appear to move backwards.
	if session.DocumentsProcessed() != 7 || session.DocumentsFailed() != 0 {
		t.Errorf("Expected 7 processed and 0 failed, got %d/%d",
			session.DocumentsProcessed(), session.DocumentsFailed())
	}
	if err := session.Checkpoint(10, 10, 0); err != nil {
		t.Fatalf("Checkpoint after retry failed: %v", err)
	}

	if err := session.ReopenFailedDocuments(1); err == nil {
		t.Error("Expected error rewinding more documents than failed")
	}
}

func TestBatchSession_RecordError(t *testing.T) {
	session, err := NewBatchSession(newTestDocumentIDs(2), SessionOptions{})
	if err != nil {
		t.Fatalf("NewBatchSession failed: %v", err)
	}
	documentID := session.DocumentIDs()[0]
	session.RecordError(documentID, "extraction failed")

	log := session.ErrorLog()
	if len(log) != 1 {
		t.Fatalf("Expected 1 error entry, got %d", len(log))
	}
	if log[0].DocumentID != documentID || log[0].Message != "extraction failed" {
		t.Errorf("Unexpected error entry: %+v", log[0])
	}
}

func TestBatchDocumentStatus_Lifecycle(t *testing.T) {
	status := NewBatchDocumentStatus(uuid.New(), uuid.New())
	if status.State() != valueobject.DocumentStatePending {
		t.Errorf("Expected pending, got %s", status.State())
	}

	if err := status.StartProcessing(); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := status.Complete(map[string]any{"chunk_job_id": "x"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if status.Result()["chunk_job_id"] != "x" {
		t.Error("Expected result snapshot to be stored")
	}
	if err := status.ResetForRetry(); err == nil {
		t.Error("Expected error retrying a completed document")
	}
}

func TestBatchDocumentStatus_FailAndRetry(t *testing.T) {
	status := NewBatchDocumentStatus(uuid.New(), uuid.New())
	if err := status.StartProcessing(); err != nil {
		t.Fatalf("StartProcessing failed: %v", err)
	}
	if err := status.Fail("no such file"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if status.ErrorMessage() == nil || *status.ErrorMessage() != "no such file" {
		t.Error("Expected failure message to be recorded")
	}

	if err := status.ResetForRetry(); err != nil {
		t.Fatalf("ResetForRetry failed: %v", err)
	}
	if status.State() != valueobject.DocumentStatePending {
		t.Errorf("Expected pending after retry reset, got %s", status.State())
	}
	if status.ErrorMessage() != nil {
		t.Error("Expected failure message cleared on retry reset")
	}
}
