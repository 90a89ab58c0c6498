// Package gemini provides a Gemini-backed embedding service.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"caseindex/internal/config"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultModel      = "gemini-embedding-001"
	defaultDimensions = 768
)

// Embedder generates chunk embeddings via the Gemini API.
type Embedder struct {
	client     *genai.Client
	modelName  string
	dimensions int
}

// NewEmbedder creates a Gemini embedding client from configuration.
func NewEmbedder(ctx context.Context, cfg config.GeminiConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}

	return &Embedder{
		client:     client,
		modelName:  modelName,
		dimensions: dimensions,
	}, nil
}

// GenerateEmbedding embeds one chunk of text.
func (e *Embedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errors.New("text cannot be empty")
	}

	model := e.client.EmbeddingModel(e.modelName)
	resp, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, errors.New("gemini embed: empty embedding in response")
	}

	return resp.Embedding.Values, nil
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
