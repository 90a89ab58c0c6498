package outbound

import "context"

// ExtractionResult is the outcome of extracting text from a stored document.
type ExtractionResult struct {
	Text string
	// NeedsReview flags a low-confidence extraction that a human should
	// check before downstream analysis trusts it.
	NeedsReview bool
	MimeType    string
}

// TextExtractor defines the outbound port for the extraction contract: given
// a storage locator, return the document's extracted text.
type TextExtractor interface {
	Extract(ctx context.Context, locator string) (*ExtractionResult, error)
}
