package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge-rag/internal/config"
)

func newTestClient(baseURL string) *Client {
	return NewClient(config.LLMConfig{
		BaseURL:     baseURL,
		Model:       "test-model",
		TimeoutSecs: 2,
	}, Options{Temperature: 0.1, NumPredict: 300, NumCtx: 4096})
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	assert.NoError(t, newTestClient(srv.URL).Ping(context.Background()))
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := newTestClient(srv.URL).Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPingBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, 300, req.Options.NumPredict)

		fmt.Fprint(w, `{"response":"the answer","done":true}`)
	}))
	defer srv.Close()

	answer, err := newTestClient(srv.URL).Generate(context.Background(), "a prompt")
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "a prompt")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{"response":"late","done":true}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL).Generate(ctx, "a prompt")
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		fmt.Fprint(w, `{"response":"hello ","done":false}`+"\n")
		fmt.Fprint(w, `{"response":"world","done":false}`+"\n")
		fmt.Fprint(w, `{"response":"","done":true}`+"\n")
	}))
	defer srv.Close()

	frags, errc := newTestClient(srv.URL).Stream(context.Background(), "a prompt")

	var got string
	for f := range frags {
		got += f
	}
	assert.NoError(t, <-errc)
	assert.Equal(t, "hello world", got)
}

func TestStreamServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	frags, errc := newTestClient(srv.URL).Stream(context.Background(), "a prompt")

	for range frags {
	}
	err := <-errc
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
