package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"knowledge-rag/internal/config"
)

// FallbackClient is the alternate binding to the same provider, used when
// the primary client fails with a non-timeout error. Exactly one fallback
// attempt is made per query.
type FallbackClient struct {
	llm  *ollama.LLM
	opts Options
}

// NewFallbackClient creates the langchaingo binding.
func NewFallbackClient(cfg config.LLMConfig, opts Options) (*FallbackClient, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing fallback model: %w", err)
	}
	return &FallbackClient{llm: llm, opts: opts}, nil
}

// Name identifies this binding in answer metadata and logs.
func (f *FallbackClient) Name() string { return "langchain-ollama" }

// Generate runs a single completion through langchaingo.
func (f *FallbackClient) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, f.llm, prompt,
		llms.WithTemperature(f.opts.Temperature),
		llms.WithMaxTokens(f.opts.NumPredict),
	)
	if err != nil {
		return "", fmt.Errorf("fallback generation: %w", err)
	}
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

var _ Generator = (*FallbackClient)(nil)
var _ Generator = (*Client)(nil)
