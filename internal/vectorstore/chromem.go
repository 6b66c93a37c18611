package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/models"
)

// ChromemStore is the default Store, backed by the embedded chromem-go
// database with gob persistence. It needs no external service.
type ChromemStore struct {
	db   *chromem.DB
	name string

	// mu guards collection (swapped on Reset) and dim. chromem synchronizes
	// access within a collection, but not the swap itself.
	mu         sync.RWMutex
	collection *chromem.Collection
	dim        int
}

// NewChromemStore opens (or creates) a persistent chromem database at the
// configured path.
func NewChromemStore(cfg config.ChromemConfig) (*ChromemStore, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", cfg.Path, err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}

	s := &ChromemStore{db: db, name: cfg.Collection}
	if s.collection, err = s.openCollection(); err != nil {
		return nil, err
	}

	log.Info().
		Str("path", cfg.Path).
		Str("collection", cfg.Collection).
		Int("document_count", s.collection.Count()).
		Msg("chromem store initialized")

	return s, nil
}

// openCollection gets or creates the collection. Vectors are always
// precomputed by the caller, so the embedding func must never run; chromem
// would otherwise silently fall back to its OpenAI default.
func (s *ChromemStore) openCollection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(s.name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", s.name, err)
	}
	return c, nil
}

func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("store received no precomputed embedding")
}

// Upsert adds records in batches, overwriting on ID collision. An error
// fails the current batch; earlier batches stay committed.
func (s *ChromemStore) Upsert(ctx context.Context, ids, texts []string, vectors [][]float32, metadatas []map[string]string) error {
	if err := validateBatch(ids, texts, vectors, metadatas); err != nil {
		return err
	}

	s.mu.Lock()
	if len(vectors[0]) > 0 {
		s.dim = len(vectors[0])
	}
	col := s.collection
	s.mu.Unlock()

	for start := 0; start < len(ids); start += DefaultBatchSize {
		end := min(start+DefaultBatchSize, len(ids))

		docs := make([]chromem.Document, 0, end-start)
		for i := start; i < end; i++ {
			docs = append(docs, chromem.Document{
				ID:        ids[i],
				Content:   texts[i],
				Metadata:  metadatas[i],
				Embedding: vectors[i],
			})
		}
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return fmt.Errorf("adding batch %d-%d: %w", start, end, err)
		}

		log.Debug().Int("batch_start", start).Int("batch_end", end).Msg("batch added")
	}
	return nil
}

// Query returns up to k hits ordered by descending similarity. An empty
// collection yields zero hits and no error.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]models.Hit, error) {
	s.mu.RLock()
	col := s.collection
	s.mu.RUnlock()

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.name, err)
	}

	hits := make([]models.Hit, len(results))
	for i, r := range results {
		hits[i] = models.Hit{
			Content:  r.Content,
			Metadata: r.Metadata,
			Score:    r.Similarity,
		}
	}
	return hits, nil
}

// Reset drops every record; queries return nothing until re-populated.
func (s *ChromemStore) Reset(ctx context.Context) error {
	log.Warn().Str("collection", s.name).Msg("resetting collection")

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("dropping collection %s: %w", s.name, err)
	}
	c, err := s.openCollection()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.collection = c
	s.mu.Unlock()
	return nil
}

// Stats reports record count and the dimensionality seen on upsert.
func (s *ChromemStore) Stats(ctx context.Context) (models.CollectionStats, error) {
	s.mu.RLock()
	col := s.collection
	dim := s.dim
	s.mu.RUnlock()

	return models.CollectionStats{
		CollectionName:     s.name,
		DocumentCount:      col.Count(),
		EmbeddingDimension: dim,
	}, nil
}

// Close is a no-op; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

var _ Store = (*ChromemStore)(nil)
