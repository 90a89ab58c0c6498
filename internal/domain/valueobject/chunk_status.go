package valueobject

import "fmt"

// ChunkStatus represents the processing status of a single document chunk.
type ChunkStatus string

// Chunk status constants.
const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusCompleted  ChunkStatus = "completed"
	ChunkStatusFailed     ChunkStatus = "failed"
	ChunkStatusSkipped    ChunkStatus = "skipped"
)

var validChunkStatuses = map[ChunkStatus]bool{
	ChunkStatusPending:    true,
	ChunkStatusProcessing: true,
	ChunkStatusCompleted:  true,
	ChunkStatusFailed:     true,
	ChunkStatusSkipped:    true,
}

// chunkStatusTransitions is the closed transition table for chunk statuses.
// The failed -> pending edge exists only for the authorized retry path; a
// chunk never regresses from completed.
var chunkStatusTransitions = map[ChunkStatus][]ChunkStatus{
	ChunkStatusPending: {
		ChunkStatusProcessing,
		ChunkStatusSkipped,
	},
	ChunkStatusProcessing: {
		ChunkStatusCompleted,
		ChunkStatusFailed,
		ChunkStatusSkipped,
	},
	ChunkStatusFailed: {
		ChunkStatusPending,
	},
	ChunkStatusCompleted: {},
	ChunkStatusSkipped:   {},
}

// NewChunkStatus creates a new ChunkStatus with validation.
func NewChunkStatus(status string) (ChunkStatus, error) {
	s := ChunkStatus(status)
	if !validChunkStatuses[s] {
		return "", fmt.Errorf("invalid chunk status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s ChunkStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the chunk has reached a final state. Failed is
// terminal for aggregation purposes even though retry can reopen it.
func (s ChunkStatus) IsTerminal() bool {
	return s == ChunkStatusCompleted || s == ChunkStatusFailed || s == ChunkStatusSkipped
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s ChunkStatus) CanTransitionTo(target ChunkStatus) bool {
	validTransitions, exists := chunkStatusTransitions[s]
	if !exists {
		return false
	}
	for _, validTarget := range validTransitions {
		if target == validTarget {
			return true
		}
	}
	return false
}
