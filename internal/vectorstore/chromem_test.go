package vectorstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/models"
)

func newTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore(config.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "test_docs",
	})
	require.NoError(t, err)
	return store
}

func testBatch() (ids, texts []string, vectors [][]float32, metadatas []map[string]string) {
	ids = []string{"doc_0_aaa", "doc_1_bbb"}
	texts = []string{"vacation policy allows 25 days", "every employee gets a laptop"}
	vectors = [][]float32{{1, 0, 0}, {0, 1, 0}}
	metadatas = []map[string]string{
		{models.MetaSource: "handbook", models.MetaChunkIndex: "0"},
		{models.MetaSource: "handbook", models.MetaChunkIndex: "1"},
	}
	return
}

func TestChromemUpsertAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, texts, vectors, metadatas := testBatch()
	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))

	hits, err := store.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "vacation policy allows 25 days", hits[0].Content)
	assert.Equal(t, "handbook", hits[0].Metadata[models.MetaSource])
	assert.InDelta(t, 1.0, hits[0].Score, 1e-3)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestChromemUpsertIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, texts, vectors, metadatas := testBatch()
	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))
	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
	assert.Equal(t, 3, stats.EmbeddingDimension)
	assert.Equal(t, "test_docs", stats.CollectionName)
}

func TestChromemQueryEmptyCollection(t *testing.T) {
	store := newTestStore(t)

	hits, err := store.Query(context.Background(), []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemReset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, texts, vectors, metadatas := testBatch()
	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))
	require.NoError(t, store.Reset(ctx))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocumentCount)

	hits, err := store.Query(ctx, []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestChromemConcurrentResetAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, texts, vectors, metadatas := testBatch()
	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := store.Query(ctx, []float32{1, 0, 0}, 1, nil)
				assert.NoError(t, err)
				_, err = store.Stats(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	// Single writer, like ingest.Service's write mutex guarantees.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			assert.NoError(t, store.Reset(ctx))
		}
	}()
	wg.Wait()

	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentCount)
}

func TestChromemMetadataFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := []string{"a", "b"}
	texts := []string{"first", "second"}
	vectors := [][]float32{{1, 0}, {0.9, 0.1}}
	metadatas := []map[string]string{
		{models.MetaType: models.TypeWebpage},
		{models.MetaType: models.TypeFile},
	}
	require.NoError(t, store.Upsert(ctx, ids, texts, vectors, metadatas))

	hits, err := store.Query(ctx, []float32{1, 0}, 1, map[string]string{models.MetaType: models.TypeFile})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "second", hits[0].Content)
}

func TestValidateBatch(t *testing.T) {
	err := validateBatch(nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)

	err = validateBatch([]string{"a"}, []string{"x", "y"}, [][]float32{{1}}, []map[string]string{nil})
	assert.ErrorIs(t, err, ErrBatchMismatch)
}
