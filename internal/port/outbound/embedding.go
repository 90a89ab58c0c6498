package outbound

import "context"

// EmbeddingService defines the outbound port for embedding generation.
// Failures here are chunk-level failures, never fatal to a job.
type EmbeddingService interface {
	// GenerateEmbedding returns a fixed-length vector for the given text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// Dimensions returns the vector length this service produces.
	Dimensions() int
}
