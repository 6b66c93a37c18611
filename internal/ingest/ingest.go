// Package ingest turns heterogeneous sources into indexed chunks. It owns
// chunk identity derivation and the single-writer discipline over the
// vector store.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/chunker"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/models"
	"knowledge-rag/internal/parser"
	"knowledge-rag/internal/scraper"
	"knowledge-rag/internal/vectorstore"
)

// Crawler is the content-fetching collaborator for URL ingestion.
type Crawler interface {
	Crawl(ctx context.Context, startURL string, followLinks bool) ([]scraper.Page, error)
}

// Service orchestrates ingestion: normalize sources into documents, chunk,
// embed, derive IDs, upsert.
type Service struct {
	store    vectorstore.Store
	embedder embedding.Embedder
	chunker  *chunker.Chunker
	crawler  Crawler

	// writeMu serializes index mutation (upsert, reset). Queries are not
	// blocked; the store handles read/write interleaving.
	writeMu sync.Mutex
}

// NewService wires the orchestrator with its collaborators.
func NewService(store vectorstore.Store, embedder embedding.Embedder, c *chunker.Chunker, crawler Crawler) *Service {
	return &Service{store: store, embedder: embedder, chunker: c, crawler: crawler}
}

// ChunkID derives the stable identifier for a chunk. Identical
// (source, index, content) always yields the same ID, which is what makes
// re-ingestion idempotent; changed content at the same position yields a
// new ID and orphans the old record until a reset.
func ChunkID(source string, index int, content string) string {
	sum := md5.Sum([]byte(content))
	return fmt.Sprintf("%s_%d_%s", source, index, hex.EncodeToString(sum[:])[:12])
}

// Ingest routes a request to the matching source handler. Failures come
// back as a structured result, never as a panic or uncaught error.
func (s *Service) Ingest(ctx context.Context, kind models.IngestKind, source string, followLinks bool, metadata map[string]string) models.IngestResult {
	jobID := uuid.NewString()
	log.Info().
		Str("job_id", jobID).
		Str("kind", string(kind)).
		Str("source", truncate(source, 100)).
		Bool("follow_links", followLinks).
		Msg("ingestion started")

	switch kind {
	case models.IngestURL:
		return s.ingestURL(ctx, source, followLinks, metadata)
	case models.IngestFile:
		return s.ingestFile(ctx, source, metadata)
	case models.IngestDirectory:
		return s.ingestDirectory(ctx, source, metadata)
	case models.IngestText:
		return s.ingestText(ctx, source, metadata)
	default:
		return models.IngestResult{
			Success: false,
			Message: fmt.Sprintf("Unknown ingest type: %s", kind),
		}
	}
}

func (s *Service) ingestURL(ctx context.Context, startURL string, followLinks bool, metadata map[string]string) models.IngestResult {
	pages, err := s.crawler.Crawl(ctx, startURL, followLinks)
	if err != nil {
		return models.IngestResult{
			Success: false,
			Message: fmt.Sprintf("Crawl failed: %v", err),
			Errors:  []string{err.Error()},
		}
	}
	if len(pages) == 0 {
		return models.IngestResult{
			Success: false,
			Message: "No content could be extracted from the URL",
		}
	}

	docs := make([]models.Document, 0, len(pages))
	for _, page := range pages {
		docs = append(docs, models.Document{
			Content:  page.Content,
			Metadata: mergeMeta(page.Metadata(), metadata),
		})
	}
	return s.processDocuments(ctx, docs)
}

func (s *Service) ingestFile(ctx context.Context, path string, metadata map[string]string) models.IngestResult {
	if _, err := os.Stat(path); err != nil {
		return models.IngestResult{
			Success: false,
			Message: fmt.Sprintf("File not found: %s", path),
		}
	}

	content, err := parser.ReadFile(path)
	if err != nil || strings.TrimSpace(content) == "" {
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("file read error")
		}
		return models.IngestResult{
			Success: false,
			Message: fmt.Sprintf("Could not read file: %s", path),
		}
	}

	return s.processDocuments(ctx, []models.Document{{
		Content:  content,
		Metadata: mergeMeta(fileMeta(path), metadata),
	}})
}

func (s *Service) ingestDirectory(ctx context.Context, dir string, metadata map[string]string) models.IngestResult {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return models.IngestResult{
			Success: false,
			Message: fmt.Sprintf("Directory not found: %s", dir),
		}
	}

	var docs []models.Document
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("walk error, skipping")
			return nil
		}
		if d.IsDir() || !parser.IsSupported(path) {
			return nil
		}
		content, err := parser.ReadFile(path)
		if err != nil {
			// Individual unreadable files are not fatal to the batch.
			log.Error().Err(err).Str("path", path).Msg("file read error, skipping")
			return nil
		}
		if strings.TrimSpace(content) == "" {
			return nil
		}
		docs = append(docs, models.Document{
			Content:  content,
			Metadata: mergeMeta(fileMeta(path), metadata),
		})
		return nil
	})
	if walkErr != nil {
		return models.IngestResult{
			Success: false,
			Message: fmt.Sprintf("Error walking directory: %v", walkErr),
			Errors:  []string{walkErr.Error()},
		}
	}
	if len(docs) == 0 {
		return models.IngestResult{
			Success: false,
			Message: "No supported files found in directory",
		}
	}

	return s.processDocuments(ctx, docs)
}

func (s *Service) ingestText(ctx context.Context, text string, metadata map[string]string) models.IngestResult {
	meta := mergeMeta(map[string]string{
		models.MetaSource: models.DirectInputSource,
		models.MetaType:   models.TypeText,
	}, metadata)

	return s.processDocuments(ctx, []models.Document{{Content: text, Metadata: meta}})
}

// processDocuments chunks, embeds, derives IDs and upserts. It is the
// shared tail of every ingestion path.
func (s *Service) processDocuments(ctx context.Context, docs []models.Document) models.IngestResult {
	var allChunks []models.Chunk
	for _, doc := range docs {
		allChunks = append(allChunks, s.chunker.Chunk(doc.Content, doc.Metadata)...)
	}

	if len(allChunks) == 0 {
		return models.IngestResult{
			Success:            false,
			Message:            "No chunks created from documents",
			DocumentsProcessed: len(docs),
		}
	}

	ids := make([]string, len(allChunks))
	texts := make([]string, len(allChunks))
	metadatas := make([]map[string]string, len(allChunks))
	for i, chunk := range allChunks {
		source := chunk.Metadata[models.MetaSource]
		if source == "" {
			source = "unknown"
		}
		ids[i] = ChunkID(source, chunk.ChunkIndex, chunk.Content)
		texts[i] = chunk.Content
		metadatas[i] = chunk.Metadata
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return models.IngestResult{
			Success:            false,
			Message:            fmt.Sprintf("Error embedding documents: %v", err),
			DocumentsProcessed: len(docs),
			Errors:             []string{err.Error()},
		}
	}

	s.writeMu.Lock()
	err = s.store.Upsert(ctx, ids, texts, vectors, metadatas)
	s.writeMu.Unlock()
	if err != nil {
		return models.IngestResult{
			Success:            false,
			Message:            fmt.Sprintf("Error storing documents: %v", err),
			DocumentsProcessed: len(docs),
			Errors:             []string{err.Error()},
		}
	}

	log.Info().
		Int("documents_processed", len(docs)).
		Int("chunks_created", len(allChunks)).
		Msg("ingestion complete")

	return models.IngestResult{
		Success:            true,
		Message:            "Documents ingested successfully",
		DocumentsProcessed: len(docs),
		ChunksCreated:      len(allChunks),
	}
}

// Reset drops every indexed record. Serialized with ingestion writes.
func (s *Service) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.store.Reset(ctx)
}

// Stats reports the store's record count and dimensionality.
func (s *Service) Stats(ctx context.Context) (models.CollectionStats, error) {
	return s.store.Stats(ctx)
}

func fileMeta(path string) map[string]string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return map[string]string{
		models.MetaSource:   abs,
		models.MetaFilename: filepath.Base(path),
		models.MetaType:     models.TypeFile,
	}
}

func mergeMeta(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
