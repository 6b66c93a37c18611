package rag

import (
	"fmt"
	"strings"

	"knowledge-rag/internal/models"
)

// formatContext renders retrieved hits into the numbered source blocks the
// answer prompt expects. Each block is labelled with the document title when
// one is present, otherwise its source identifier.
func formatContext(hits []models.Hit) string {
	blocks := make([]string, 0, len(hits))
	for i, hit := range hits {
		label := hit.Metadata[models.MetaTitle]
		if label == "" {
			label = hit.Metadata[models.MetaSource]
		}
		if label == "" {
			label = "unknown"
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d: %s]\n%s", i+1, label, hit.Content))
	}
	return strings.Join(blocks, models.ContextSeparator)
}

// formatSources converts hits into the source attributions returned alongside
// an answer. Content is clipped for display; scores and metadata pass through
// untouched so callers can re-rank or audit.
func formatSources(hits []models.Hit) []models.SourceDocument {
	sources := make([]models.SourceDocument, 0, len(hits))
	for _, hit := range hits {
		content := hit.Content
		if len(content) > models.SourceDisplayLimit {
			content = content[:models.SourceDisplayLimit] + "..."
		}
		sources = append(sources, models.SourceDocument{
			Content:        content,
			Source:         hit.Metadata[models.MetaSource],
			Title:          hit.Metadata[models.MetaTitle],
			RelevanceScore: hit.Score,
			Metadata:       hit.Metadata,
		})
	}
	return sources
}

func buildPrompt(question string, contextText string) string {
	return fmt.Sprintf(models.RAGSystemPrompt, contextText) + "\n\n" + fmt.Sprintf(models.RAGUserPrompt, question)
}
