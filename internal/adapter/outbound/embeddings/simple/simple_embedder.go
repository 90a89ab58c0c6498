// Package simple provides a deterministic local embedding service used when
// no embedding API is configured. Vectors are derived from token hashes, so
// identical text always embeds identically. Useful for development and for
// pipelines that only need chunking.
package simple

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
)

const defaultDimensions = 768

// Embedder is a hash-based embedding service.
type Embedder struct {
	dimensions int
}

// NewEmbedder creates a deterministic embedder with the given vector size.
func NewEmbedder(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// GenerateEmbedding produces a normalized bag-of-tokens hash vector.
func (e *Embedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	vector := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		idx := int(sum % uint64(e.dimensions))
		// Alternate sign off a second hash bit so vectors are not all
		// positive.
		if sum&(1<<63) != 0 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}
