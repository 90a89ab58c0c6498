package service

import (
	"strings"

	"caseindex/internal/domain/valueobject"
)

// ChunkSpan is one planned chunk: a half-open rune range into the
// document's extracted text, plus the source page when the strategy
// tracks pages.
type ChunkSpan struct {
	Start int
	End   int
	Page  *int
}

// Chunker splits extracted text into chunk spans according to a chunking
// strategy. Splitting is pure: same text and strategy, same spans.
type Chunker struct{}

// NewChunker creates a Chunker.
func NewChunker() *Chunker {
	return &Chunker{}
}

// Split plans the chunk spans for the given text. Empty text yields no
// spans. Offsets are rune offsets so multi-byte content slices cleanly.
func (c *Chunker) Split(text string, strategy valueobject.ChunkingStrategy) ([]ChunkSpan, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	switch strategy.Type {
	case valueobject.StrategySlidingWindow:
		return slidingWindowSpans(text, strategy.ChunkSize, strategy.Overlap), nil
	case valueobject.StrategySection:
		return sectionSpans(text), nil
	default:
		return pageSpans(text), nil
	}
}

// pageSpans splits on form feed, the page separator extraction emits for
// page-oriented formats. Text without form feeds is a single page.
func pageSpans(text string) []ChunkSpan {
	runes := []rune(text)
	var spans []ChunkSpan

	page := 1
	start := 0
	for i, r := range runes {
		if r != '\f' {
			continue
		}
		if i > start {
			spans = append(spans, pageSpan(start, i, page))
			page++
		}
		start = i + 1
	}
	if start < len(runes) {
		spans = append(spans, pageSpan(start, len(runes), page))
	}
	return spans
}

func pageSpan(start, end, page int) ChunkSpan {
	p := page
	return ChunkSpan{Start: start, End: end, Page: &p}
}

// sectionSpans splits at heading lines (markdown-style '#' prefixes). A
// document without headings falls back to paragraph boundaries so it never
// collapses to one giant chunk.
func sectionSpans(text string) []ChunkSpan {
	runes := []rune(text)
	boundaries := headingBoundaries(runes)
	if len(boundaries) == 0 {
		boundaries = paragraphBoundaries(runes)
	}

	var spans []ChunkSpan
	start := 0
	for _, boundary := range boundaries {
		if boundary > start && hasContent(runes[start:boundary]) {
			spans = append(spans, ChunkSpan{Start: start, End: boundary})
		}
		start = boundary
	}
	if start < len(runes) && hasContent(runes[start:]) {
		spans = append(spans, ChunkSpan{Start: start, End: len(runes)})
	}
	if spans == nil && hasContent(runes) {
		spans = []ChunkSpan{{Start: 0, End: len(runes)}}
	}
	return spans
}

// headingBoundaries returns the rune offsets of lines that start a new
// heading, excluding a heading at offset zero.
func headingBoundaries(runes []rune) []int {
	var boundaries []int
	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		if i < len(runes) && runes[i] != '\n' {
			continue
		}
		line := string(runes[lineStart:i])
		if lineStart > 0 && strings.HasPrefix(strings.TrimSpace(line), "#") {
			boundaries = append(boundaries, lineStart)
		}
		lineStart = i + 1
	}
	return boundaries
}

// paragraphBoundaries returns offsets after blank-line runs.
func paragraphBoundaries(runes []rune) []int {
	var boundaries []int
	newlines := 0
	for i, r := range runes {
		switch r {
		case '\n':
			newlines++
		case '\r':
		default:
			if newlines >= 2 {
				boundaries = append(boundaries, i)
			}
			newlines = 0
		}
	}
	return boundaries
}

func hasContent(runes []rune) bool {
	return strings.TrimSpace(string(runes)) != ""
}

// slidingWindowSpans emits fixed-size windows stepping by chunkSize minus
// overlap, so consecutive chunks share overlap runes of context.
func slidingWindowSpans(text string, chunkSize, overlap int) []ChunkSpan {
	runes := []rune(text)
	step := chunkSize - overlap

	var spans []ChunkSpan
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		spans = append(spans, ChunkSpan{Start: start, End: end})
		if end == len(runes) {
			break
		}
	}
	return spans
}
