package valueobject

import "fmt"

// DocumentState represents the per-document status within a batch session.
type DocumentState string

// Document state constants.
const (
	DocumentStatePending    DocumentState = "pending"
	DocumentStateProcessing DocumentState = "processing"
	DocumentStateCompleted  DocumentState = "completed"
	DocumentStateFailed     DocumentState = "failed"
)

var validDocumentStates = map[DocumentState]bool{
	DocumentStatePending:    true,
	DocumentStateProcessing: true,
	DocumentStateCompleted:  true,
	DocumentStateFailed:     true,
}

// documentStateTransitions is the closed transition table for batch document
// states. failed -> pending is the retry-failed edge.
var documentStateTransitions = map[DocumentState][]DocumentState{
	DocumentStatePending: {
		DocumentStateProcessing,
	},
	DocumentStateProcessing: {
		DocumentStateCompleted,
		DocumentStateFailed,
	},
	DocumentStateFailed: {
		DocumentStatePending,
	},
	DocumentStateCompleted: {},
}

// NewDocumentState creates a new DocumentState with validation.
func NewDocumentState(state string) (DocumentState, error) {
	s := DocumentState(state)
	if !validDocumentStates[s] {
		return "", fmt.Errorf("invalid document state: %s", state)
	}
	return s, nil
}

// String returns the string representation of the state.
func (s DocumentState) String() string {
	return string(s)
}

// IsTerminal returns true for completed and failed states.
func (s DocumentState) IsTerminal() bool {
	return s == DocumentStateCompleted || s == DocumentStateFailed
}

// CanTransitionTo returns true if the state can transition to the target state.
func (s DocumentState) CanTransitionTo(target DocumentState) bool {
	validTransitions, exists := documentStateTransitions[s]
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
