// Package vectorstore wraps the vector index behind a narrow contract.
// The index owns its storage layout entirely; nothing above this package
// inspects it.
package vectorstore

import (
	"context"
	"errors"

	"knowledge-rag/internal/models"
)

// DefaultBatchSize is the upsert batch granularity. Batches before a
// failing one stay committed, so ingestion is only best-effort atomic.
const DefaultBatchSize = 100

var (
	// ErrEmptyBatch is returned when an upsert carries no records.
	ErrEmptyBatch = errors.New("empty or nil batch")

	// ErrBatchMismatch is returned when the upsert slices disagree in length.
	ErrBatchMismatch = errors.New("ids, texts, vectors and metadatas must have equal length")
)

// Store is the index gateway consumed by ingestion and retrieval.
//
// Upsert overwrites on ID collision, which is what makes re-ingesting
// unchanged content idempotent. Query returns up to k hits ordered by
// descending similarity and never errors on an empty collection.
type Store interface {
	Upsert(ctx context.Context, ids, texts []string, vectors [][]float32, metadatas []map[string]string) error
	Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]models.Hit, error)
	Reset(ctx context.Context) error
	Stats(ctx context.Context) (models.CollectionStats, error)
	Close() error
}

func validateBatch(ids, texts []string, vectors [][]float32, metadatas []map[string]string) error {
	if len(ids) == 0 {
		return ErrEmptyBatch
	}
	if len(texts) != len(ids) || len(vectors) != len(ids) || len(metadatas) != len(ids) {
		return ErrBatchMismatch
	}
	return nil
}
