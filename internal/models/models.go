package models

import "time"

// IngestKind identifies what kind of content an ingest request carries.
type IngestKind string

const (
	IngestURL       IngestKind = "url"
	IngestFile      IngestKind = "file"
	IngestDirectory IngestKind = "directory"
	IngestText      IngestKind = "text"
)

// Document is a raw piece of content on its way into the index. It only
// lives for the duration of an ingestion run.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Chunk is a bounded retrieval unit cut from a single document.
type Chunk struct {
	Content    string
	Metadata   map[string]string
	ChunkIndex int
}

// Hit is a single retrieval result with its similarity score.
// Score is 1 - cosine distance; treat it as monotonic, not as a probability.
type Hit struct {
	Content  string
	Metadata map[string]string
	Score    float32
}

// IngestRequest is the body of POST /ingest.
type IngestRequest struct {
	Type        IngestKind        `json:"type"`
	Source      string            `json:"source"`
	FollowLinks bool              `json:"follow_links"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IngestResult reports the outcome of one ingestion run. Failures are
// carried here as data, never as panics past the ingestion boundary.
type IngestResult struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	DocumentsProcessed int      `json:"documents_processed"`
	ChunksCreated      int      `json:"chunks_created"`
	Errors             []string `json:"errors,omitempty"`
}

// QueryRequest is the body of POST /query and /query/stream.
type QueryRequest struct {
	Question       string `json:"question"`
	TopK           int    `json:"top_k,omitempty"`
	IncludeSources *bool  `json:"include_sources,omitempty"`
}

// SourceDocument is a citation shown to the user. Content is truncated for
// display; RelevanceScore is the untouched retrieval score.
type SourceDocument struct {
	Content        string            `json:"content"`
	Source         string            `json:"source"`
	Title          string            `json:"title,omitempty"`
	RelevanceScore float32           `json:"relevance_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// QueryResponse is the answer to a query, whichever terminal state the
// pipeline reached.
type QueryResponse struct {
	Answer      string           `json:"answer"`
	Sources     []SourceDocument `json:"sources"`
	QueryTimeMs float64          `json:"query_time_ms"`
	GeneratedBy string           `json:"generated_by,omitempty"`
}

// CollectionStats describes the state of the vector store.
type CollectionStats struct {
	CollectionName     string `json:"collection_name"`
	DocumentCount      int    `json:"document_count"`
	EmbeddingDimension int    `json:"embedding_dimension"`
}

// HealthResponse reports per-component health for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}
