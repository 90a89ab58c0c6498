// Package service contains pure domain services with no infrastructure
// dependencies.
package service

import (
	"strings"

	"caseindex/internal/domain/valueobject"
)

// Default sliding-window parameters for large flat-text documents.
const (
	DefaultSlidingWindowThreshold = 100_000
	DefaultWindowChunkSize        = 4000
	DefaultWindowOverlap          = 500
)

// StrategyProfile defines which extensions map to which chunking strategy
// and the window parameters applied to large flat-text documents.
type StrategyProfile struct {
	SectionExtensions  []string `yaml:"section_extensions"`
	FlatTextExtensions []string `yaml:"flat_text_extensions"`
	WindowThreshold    int64    `yaml:"window_threshold"`
	WindowChunkSize    int      `yaml:"window_chunk_size"`
	WindowOverlap      int      `yaml:"window_overlap"`
}

// DefaultStrategyProfile returns the built-in extension mapping.
func DefaultStrategyProfile() StrategyProfile {
	return StrategyProfile{
		SectionExtensions:  []string{".docx", ".doc", ".md", ".html", ".htm"},
		FlatTextExtensions: []string{".txt", ".csv", ".log"},
		WindowThreshold:    DefaultSlidingWindowThreshold,
		WindowChunkSize:    DefaultWindowChunkSize,
		WindowOverlap:      DefaultWindowOverlap,
	}
}

// StrategySelector picks a chunking strategy from a file's extension and
// size. Selection is a pure function of its inputs; the selector itself is
// immutable after construction.
type StrategySelector struct {
	profile StrategyProfile
}

// NewStrategySelector creates a selector for the given profile. Zero-valued
// window parameters fall back to the defaults.
func NewStrategySelector(profile StrategyProfile) *StrategySelector {
	if profile.WindowThreshold <= 0 {
		profile.WindowThreshold = DefaultSlidingWindowThreshold
	}
	if profile.WindowChunkSize <= 0 {
		profile.WindowChunkSize = DefaultWindowChunkSize
	}
	if profile.WindowOverlap < 0 || profile.WindowOverlap >= profile.WindowChunkSize {
		profile.WindowOverlap = DefaultWindowOverlap
	}
	return &StrategySelector{profile: profile}
}

// NewDefaultStrategySelector creates a selector with the built-in profile.
func NewDefaultStrategySelector() *StrategySelector {
	return NewStrategySelector(DefaultStrategyProfile())
}

// Select returns the chunking strategy for a document with the given file
// extension and size in bytes. Unknown extensions default to page chunking.
func (s *StrategySelector) Select(extension string, sizeBytes int64) valueobject.ChunkingStrategy {
	ext := normalizeExtension(extension)

	if containsExtension(s.profile.FlatTextExtensions, ext) {
		if sizeBytes > s.profile.WindowThreshold {
			return valueobject.SlidingWindowStrategy(s.profile.WindowChunkSize, s.profile.WindowOverlap)
		}
		return valueobject.PageStrategy()
	}

	if containsExtension(s.profile.SectionExtensions, ext) {
		return valueobject.SectionStrategy()
	}

	return valueobject.PageStrategy()
}

func normalizeExtension(extension string) string {
	ext := strings.ToLower(strings.TrimSpace(extension))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func containsExtension(extensions []string, ext string) bool {
	for _, candidate := range extensions {
		if normalizeExtension(candidate) == ext {
			return true
		}
	}
	return false
}
