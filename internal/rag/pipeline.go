package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/llm"
	"knowledge-rag/internal/models"
	"knowledge-rag/internal/vectorstore"
)

// PrimaryGenerator is the first-choice answer backend. On top of plain
// generation it can report liveness and stream partial output.
type PrimaryGenerator interface {
	llm.Generator
	Ping(ctx context.Context) error
	Stream(ctx context.Context, prompt string) (<-chan string, <-chan error)
}

// Pipeline answers questions over the ingested corpus: retrieve, assemble a
// grounded prompt, generate with a fallback chain. It never returns an error
// to the caller once retrieval has run; degraded situations produce fixed
// answers instead.
type Pipeline struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	primary  PrimaryGenerator
	fallback llm.Generator
	cfg      config.RAGConfig
}

func NewPipeline(store vectorstore.Store, embedder embedding.Embedder, primary PrimaryGenerator, fallback llm.Generator, cfg config.RAGConfig) *Pipeline {
	return &Pipeline{
		store:    store,
		embedder: embedder,
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
	}
}

// Query runs the full answer flow for one question. topK <= 0 means use the
// configured default. When includeSources is true the response carries the
// retrieved citations even for degraded answers, so the caller can always see
// what the answer would have been grounded on.
func (p *Pipeline) Query(ctx context.Context, question string, topK int, includeSources bool) models.QueryResponse {
	start := time.Now()

	hits := p.Retrieve(ctx, question, topK)
	if len(hits) == 0 {
		return models.QueryResponse{
			Answer:      models.NoKnowledgeAnswer,
			Sources:     []models.SourceDocument{},
			QueryTimeMs: elapsedMs(start),
			GeneratedBy: "none",
		}
	}

	// Always a list, never null, whatever branch answers.
	sources := []models.SourceDocument{}
	if includeSources {
		sources = formatSources(hits)
	}

	prompt := buildPrompt(question, formatContext(hits))

	if err := p.primary.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("primary generator unreachable")
		return models.QueryResponse{
			Answer:      models.ProviderUnavailableAnswer,
			Sources:     sources,
			QueryTimeMs: elapsedMs(start),
			GeneratedBy: "none",
		}
	}

	answer, err := p.primary.Generate(ctx, prompt)
	if err == nil {
		return models.QueryResponse{
			Answer:      answer,
			Sources:     sources,
			QueryTimeMs: elapsedMs(start),
			GeneratedBy: p.primary.Name(),
		}
	}

	if errors.Is(err, llm.ErrTimeout) {
		log.Warn().Err(err).Msg("primary generation timed out")
		return models.QueryResponse{
			Answer:      models.ProviderSlowAnswer,
			Sources:     sources,
			QueryTimeMs: elapsedMs(start),
			GeneratedBy: "none",
		}
	}

	log.Warn().Err(err).Str("fallback", p.fallback.Name()).Msg("primary generation failed, trying fallback")

	answer, fbErr := p.fallback.Generate(ctx, prompt)
	if fbErr == nil {
		return models.QueryResponse{
			Answer:      answer,
			Sources:     sources,
			QueryTimeMs: elapsedMs(start),
			GeneratedBy: p.fallback.Name(),
		}
	}

	log.Error().Err(fbErr).Msg("fallback generation failed")
	return models.QueryResponse{
		Answer:      fmt.Sprintf("Error generating response: %v. Fallback also failed: %v", err, fbErr),
		Sources:     sources,
		QueryTimeMs: elapsedMs(start),
		GeneratedBy: "none",
	}
}

// StreamQuery answers a question as a stream of text fragments. Retrieval and
// prompt construction happen before the channel is returned, so a caller that
// has the channel is guaranteed the generation phase has started. Degraded
// cases arrive as a single fragment; a mid-stream failure appends a final
// error fragment after whatever was already emitted. The channel is always
// closed.
func (p *Pipeline) StreamQuery(ctx context.Context, question string, topK int) <-chan string {
	out := make(chan string)

	hits := p.Retrieve(ctx, question, topK)
	if len(hits) == 0 {
		go func() {
			defer close(out)
			select {
			case out <- models.NoKnowledgeAnswer:
			case <-ctx.Done():
			}
		}()
		return out
	}

	prompt := buildPrompt(question, formatContext(hits))
	fragments, errc := p.primary.Stream(ctx, prompt)

	go func() {
		defer close(out)
		for fragment := range fragments {
			select {
			case out <- fragment:
			case <-ctx.Done():
				return
			}
		}
		if err := <-errc; err != nil {
			log.Error().Err(err).Msg("streaming generation failed")
			select {
			case out <- fmt.Sprintf("\n\nError during generation: %v", err):
			case <-ctx.Done():
			}
		}
	}()
	return out
}

// Sources returns only the citations a question would be grounded on,
// without running generation.
func (p *Pipeline) Sources(ctx context.Context, question string, topK int) []models.SourceDocument {
	return formatSources(p.Retrieve(ctx, question, topK))
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
