package rag

import (
	"context"

	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/models"
)

// Retrieve embeds the question and runs similarity search. It soft-fails:
// a failed embedding or an empty collection both come back as zero hits so
// the caller can answer with the no-knowledge response instead of erroring.
//
// Hits are passed through exactly as ranked. By default no score threshold
// is applied; set rag.min_score in config to drop low-relevance hits before
// prompt construction.
func (p *Pipeline) Retrieve(ctx context.Context, query string, topK int) []models.Hit {
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	log.Info().Str("query", truncate(query, 100)).Int("top_k", topK).Msg("retrieving documents")

	vector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("query embedding failed")
		return nil
	}

	hits, err := p.store.Query(ctx, vector, topK, nil)
	if err != nil {
		log.Error().Err(err).Msg("index query failed")
		return nil
	}

	if p.cfg.MinScore > 0 {
		kept := hits[:0]
		for _, hit := range hits {
			if hit.Score >= p.cfg.MinScore {
				kept = append(kept, hit)
			}
		}
		hits = kept
	}

	log.Info().Int("num_results", len(hits)).Msg("retrieval complete")
	return hits
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
