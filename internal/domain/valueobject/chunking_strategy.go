package valueobject

import "fmt"

// ChunkingStrategyType defines how a document is split into chunks.
type ChunkingStrategyType string

// Chunking strategy constants.
const (
	StrategyPage          ChunkingStrategyType = "page"
	StrategySection       ChunkingStrategyType = "section"
	StrategySlidingWindow ChunkingStrategyType = "sliding-window"
)

var validStrategyTypes = map[ChunkingStrategyType]bool{
	StrategyPage:          true,
	StrategySection:       true,
	StrategySlidingWindow: true,
}

// NewChunkingStrategyType creates a new ChunkingStrategyType with validation.
func NewChunkingStrategyType(strategy string) (ChunkingStrategyType, error) {
	s := ChunkingStrategyType(strategy)
	if !validStrategyTypes[s] {
		return "", fmt.Errorf("invalid chunking strategy: %s", strategy)
	}
	return s, nil
}

// String returns the string representation of the strategy type.
func (s ChunkingStrategyType) String() string {
	return string(s)
}

// ChunkingStrategy describes how to split one document: the strategy type
// plus the window parameters used by the sliding-window strategy.
type ChunkingStrategy struct {
	Type      ChunkingStrategyType
	ChunkSize int
	Overlap   int
}

// PageStrategy returns the page-per-chunk strategy.
func PageStrategy() ChunkingStrategy {
	return ChunkingStrategy{Type: StrategyPage}
}

// SectionStrategy returns the section-per-chunk strategy.
func SectionStrategy() ChunkingStrategy {
	return ChunkingStrategy{Type: StrategySection}
}

// SlidingWindowStrategy returns a fixed-size window strategy with overlap.
func SlidingWindowStrategy(chunkSize, overlap int) ChunkingStrategy {
	return ChunkingStrategy{Type: StrategySlidingWindow, ChunkSize: chunkSize, Overlap: overlap}
}

// Validate checks strategy parameters for consistency.
func (s ChunkingStrategy) Validate() error {
	if !validStrategyTypes[s.Type] {
		return fmt.Errorf("invalid chunking strategy: %s", s.Type)
	}
	if s.Type == StrategySlidingWindow {
		if s.ChunkSize <= 0 {
			return fmt.Errorf("sliding-window chunk size must be positive, got %d", s.ChunkSize)
		}
		if s.Overlap < 0 || s.Overlap >= s.ChunkSize {
			return fmt.Errorf("sliding-window overlap must be in [0, chunk size), got %d", s.Overlap)
		}
	}
	return nil
}
