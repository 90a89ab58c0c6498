package valueobject

import "testing"

func TestSessionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		allowed bool
	}{
		{"created to running", SessionStatusCreated, SessionStatusRunning, true},
		{"created to cancelled", SessionStatusCreated, SessionStatusCancelled, true},
		{"created to paused", SessionStatusCreated, SessionStatusPaused, false},
		{"running to paused", SessionStatusRunning, SessionStatusPaused, true},
		{"running to completed", SessionStatusRunning, SessionStatusCompleted, true},
		{"running to failed", SessionStatusRunning, SessionStatusFailed, true},
		{"running to cancelled", SessionStatusRunning, SessionStatusCancelled, true},
		{"paused resumes to running", SessionStatusPaused, SessionStatusRunning, true},
		{"paused to cancelled", SessionStatusPaused, SessionStatusCancelled, true},
		{"paused to completed", SessionStatusPaused, SessionStatusCompleted, false},
		{"completed reopens for retry", SessionStatusCompleted, SessionStatusRunning, true},
		{"failed reopens for retry", SessionStatusFailed, SessionStatusRunning, true},
		{"cancelled stays cancelled", SessionStatusCancelled, SessionStatusRunning, false},
		{"completed cannot pause", SessionStatusCompleted, SessionStatusPaused, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestChunkStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    ChunkStatus
		to      ChunkStatus
		allowed bool
	}{
		{"pending to processing", ChunkStatusPending, ChunkStatusProcessing, true},
		{"pending to skipped", ChunkStatusPending, ChunkStatusSkipped, true},
		{"pending cannot complete directly", ChunkStatusPending, ChunkStatusCompleted, false},
		{"processing to completed", ChunkStatusProcessing, ChunkStatusCompleted, true},
		{"processing to failed", ChunkStatusProcessing, ChunkStatusFailed, true},
		{"failed resets to pending for retry", ChunkStatusFailed, ChunkStatusPending, true},
		{"failed cannot complete directly", ChunkStatusFailed, ChunkStatusCompleted, false},
		{"completed never regresses", ChunkStatusCompleted, ChunkStatusPending, false},
		{"skipped never regresses", ChunkStatusSkipped, ChunkStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestChunkingStrategy_Validate(t *testing.T) {
	if err := PageStrategy().Validate(); err != nil {
		t.Errorf("Expected page strategy to be valid: %v", err)
	}
	if err := SectionStrategy().Validate(); err != nil {
		t.Errorf("Expected section strategy to be valid: %v", err)
	}
	if err := SlidingWindowStrategy(4000, 500).Validate(); err != nil {
		t.Errorf("Expected sliding-window strategy to be valid: %v", err)
	}
	if err := SlidingWindowStrategy(0, 0).Validate(); err == nil {
		t.Error("Expected error for zero chunk size")
	}
	if err := SlidingWindowStrategy(100, 100).Validate(); err == nil {
		t.Error("Expected error for overlap equal to chunk size")
	}
	if err := (ChunkingStrategy{Type: "bogus"}).Validate(); err == nil {
		t.Error("Expected error for unknown strategy type")
	}
}
