// Package extraction provides text extraction adapters for stored
// documents.
package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/port/outbound"

	"code.sajari.com/docconv"
)

// minConfidentTextLength is the extracted-text length below which a
// non-empty document is flagged for review. Scanned PDFs with no text
// layer tend to land here.
const minConfidentTextLength = 32

// DocconvExtractor extracts text from documents on the local filesystem
// using docconv. The locator is a filesystem path.
type DocconvExtractor struct {
	useOCR bool
}

// NewDocconvExtractor creates a docconv-backed extractor.
func NewDocconvExtractor(useOCR bool) *DocconvExtractor {
	return &DocconvExtractor{useOCR: useOCR}
}

// Extract reads the document at the locator and extracts its text. Plain
// text types skip docconv entirely.
func (e *DocconvExtractor) Extract(ctx context.Context, locator string) (*outbound.ExtractionResult, error) {
	if locator == "" {
		return nil, errors.New("locator cannot be empty")
	}

	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", locator, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mimeType := mimeTypeFor(locator)

	if isPlainText(mimeType) {
		return &outbound.ExtractionResult{
			Text:     string(data),
			MimeType: mimeType,
		}, nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), mimeType, e.useOCR)
	if err != nil {
		return nil, fmt.Errorf("extraction failed for %s (%s): %w", locator, mimeType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := res.Body
	needsReview := len(strings.TrimSpace(text)) < minConfidentTextLength
	if needsReview {
		slogger.Warn(ctx, "Extraction yielded little or no text, flagging for review", slogger.Fields{
			"locator":   locator,
			"mime_type": mimeType,
		})
	}

	return &outbound.ExtractionResult{
		Text:        text,
		NeedsReview: needsReview,
		MimeType:    mimeType,
	}, nil
}

func mimeTypeFor(locator string) string {
	ext := strings.ToLower(filepath.Ext(locator))
	if mimeType := mime.TypeByExtension(ext); mimeType != "" {
		// TypeByExtension may append a charset parameter.
		if base, _, err := mime.ParseMediaType(mimeType); err == nil {
			return base
		}
		return mimeType
	}

	switch ext {
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".doc":
		return "application/msword"
	case ".md", ".log":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func isPlainText(mimeType string) bool {
	switch mimeType {
	case "text/plain", "text/csv", "text/markdown":
		return true
	}
	return false
}
