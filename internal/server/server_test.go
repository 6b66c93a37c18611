package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-rag/internal/chunker"
	"knowledge-rag/internal/config"
	"knowledge-rag/internal/ingest"
	"knowledge-rag/internal/models"
	"knowledge-rag/internal/rag"
	"knowledge-rag/internal/scraper"
)

type memStore struct {
	records map[string]models.Hit
}

func newMemStore() *memStore {
	return &memStore{records: map[string]models.Hit{}}
}

func (m *memStore) Upsert(ctx context.Context, ids, texts []string, vectors [][]float32, metadatas []map[string]string) error {
	for i, id := range ids {
		m.records[id] = models.Hit{Content: texts[i], Metadata: metadatas[i], Score: 0.9}
	}
	return nil
}

func (m *memStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]models.Hit, error) {
	var hits []models.Hit
	for _, h := range m.records {
		if len(hits) == k {
			break
		}
		hits = append(hits, h)
	}
	return hits, nil
}

func (m *memStore) Reset(ctx context.Context) error {
	m.records = map[string]models.Hit{}
	return nil
}

func (m *memStore) Stats(ctx context.Context) (models.CollectionStats, error) {
	return models.CollectionStats{CollectionName: "test", DocumentCount: len(m.records)}, nil
}

func (m *memStore) Close() error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

type stubGenerator struct {
	pingErr error
	answer  string
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Ping(ctx context.Context) error { return g.pingErr }

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.answer, nil
}

func (g *stubGenerator) Stream(ctx context.Context, prompt string) (<-chan string, <-chan error) {
	out := make(chan string, 1)
	errc := make(chan error, 1)
	out <- g.answer
	close(out)
	close(errc)
	return out, errc
}

type noopCrawler struct{}

func (noopCrawler) Crawl(ctx context.Context, startURL string, followLinks bool) ([]scraper.Page, error) {
	return nil, nil
}

func newTestServer(store *memStore, gen *stubGenerator) *Server {
	svc := ingest.NewService(store, stubEmbedder{}, chunker.New(1000, 200), noopCrawler{})
	pipeline := rag.NewPipeline(store, stubEmbedder{}, gen, gen, config.Default().RAG)
	return New(svc, pipeline, gen, config.ServerConfig{Host: "127.0.0.1", Port: 0})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthHealthy(t *testing.T) {
	s := newTestServer(newMemStore(), &stubGenerator{answer: "ok"})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["llm"])
	assert.Equal(t, "healthy", resp.Components["vector_store"])
}

func TestHealthDegraded(t *testing.T) {
	s := newTestServer(newMemStore(), &stubGenerator{pingErr: context.DeadlineExceeded})

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Contains(t, resp.Components["llm"], "unhealthy")
}

func TestQueryRequiresQuestion(t *testing.T) {
	s := newTestServer(newMemStore(), &stubGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryRoundTrip(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{answer: "Vacation is 25 days."}
	s := newTestServer(store, gen)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ingest",
		`{"type":"text","source":"The vacation policy allows 25 days per year."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s.Handler(), http.MethodPost, "/query", `{"question":"How many vacation days?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Vacation is 25 days.", resp.Answer)
	assert.Equal(t, "stub", resp.GeneratedBy)
	assert.NotEmpty(t, resp.Sources)
}

func TestQueryStream(t *testing.T) {
	store := newMemStore()
	gen := &stubGenerator{answer: "streamed answer"}
	s := newTestServer(store, gen)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ingest",
		`{"type":"text","source":"Something worth retrieving from the knowledge base."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/query/stream", `{"question":"anything"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, "streamed answer", string(body))
}

func TestIngestValidation(t *testing.T) {
	s := newTestServer(newMemStore(), &stubGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ingest", `{"type":"carrier-pigeon","source":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/ingest", `{"type":"text"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestFailureStatus(t *testing.T) {
	s := newTestServer(newMemStore(), &stubGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ingest", `{"type":"text","source":"   "}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var result models.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Success)
}

func TestClearAndStats(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &stubGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ingest",
		`{"type":"text","source":"Some content for the collection."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/ingest/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.CollectionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.DocumentCount)

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/ingest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/ingest/stats", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.DocumentCount)
}

func TestRefreshReplacesCollection(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store, &stubGenerator{})

	rec := doJSON(t, s.Handler(), http.MethodPost, "/ingest",
		`{"type":"text","source":"Old content that refresh should discard."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/ingest/refresh",
		`{"type":"text","source":"Fresh content replacing everything."}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.records, 1)
	for _, hit := range store.records {
		assert.Contains(t, hit.Content, "Fresh content")
	}
}
