// Package embedding binds the embedding collaborator. Vectors are
// deterministic for identical input; the model itself is external.
package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"knowledge-rag/internal/config"
)

// Embedder converts text into fixed-length float vectors.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder generates embeddings through a local ollama model.
type OllamaEmbedder struct {
	impl *embeddings.EmbedderImpl
}

// NewOllamaEmbedder creates the embedder binding. The binding is expensive
// to set up, so the composition root constructs it once and shares it.
func NewOllamaEmbedder(cfg config.LLMConfig) (*OllamaEmbedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing embedding model: %w", err)
	}
	impl, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	log.Info().
		Str("base_url", cfg.BaseURL).
		Str("embedding_model", cfg.Model).
		Msg("embedder initialized")

	return &OllamaEmbedder{impl: impl}, nil
}

// EmbedDocuments embeds a batch of texts, one vector per input.
func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return vector, nil
}

var _ Embedder = (*OllamaEmbedder)(nil)
