package vectorstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/models"
)

// Vector marshals to the pgvector text format ('[0.1,0.2,...]').
type Vector []float32

// Value implements driver.Valuer.
func (v Vector) Value() (driver.Value, error) {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String(), nil
}

// Scan implements sql.Scanner.
func (v *Vector) Scan(src any) error {
	var s string
	switch t := src.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	case nil:
		*v = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Vector", src)
	}

	s = strings.Trim(s, "[]")
	if s == "" {
		*v = Vector{}
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("parsing vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	*v = out
	return nil
}

// chunkRecord is the pgvector-backed row for one indexed chunk.
type chunkRecord struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`

	ID       string `bun:"id,pk"`
	Content  string `bun:"content,notnull"`
	Vector   Vector `bun:"embedding,notnull,type:vector"`
	Metadata string `bun:"metadata,type:jsonb"`

	Distance float64 `bun:"distance,scanonly"`
}

// PostgresStore is an alternate Store backed by postgres with the pgvector
// extension, for deployments that already run a database.
type PostgresStore struct {
	db *bun.DB

	mu  sync.Mutex
	dim int
}

// NewPostgresStore connects to postgres, ensures the pgvector extension and
// the chunks table, and returns the store.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("enabling pgvector extension: %w", err)
	}
	if _, err := db.NewCreateTable().Model((*chunkRecord)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("creating chunks table: %w", err)
	}

	log.Info().Msg("postgres store initialized")
	return &PostgresStore{db: db}, nil
}

// Upsert inserts records in batches with overwrite-on-conflict semantics.
func (s *PostgresStore) Upsert(ctx context.Context, ids, texts []string, vectors [][]float32, metadatas []map[string]string) error {
	if err := validateBatch(ids, texts, vectors, metadatas); err != nil {
		return err
	}

	s.mu.Lock()
	if len(vectors[0]) > 0 {
		s.dim = len(vectors[0])
	}
	s.mu.Unlock()

	for start := 0; start < len(ids); start += DefaultBatchSize {
		end := min(start+DefaultBatchSize, len(ids))

		recs := make([]chunkRecord, 0, end-start)
		for i := start; i < end; i++ {
			meta, err := json.Marshal(metadatas[i])
			if err != nil {
				return fmt.Errorf("encoding metadata for %s: %w", ids[i], err)
			}
			recs = append(recs, chunkRecord{
				ID:       ids[i],
				Content:  texts[i],
				Vector:   Vector(vectors[i]),
				Metadata: string(meta),
			})
		}

		_, err := s.db.NewInsert().
			Model(&recs).
			On("CONFLICT (id) DO UPDATE").
			Set("content = EXCLUDED.content").
			Set("embedding = EXCLUDED.embedding").
			Set("metadata = EXCLUDED.metadata").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upserting batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// Query orders by cosine distance and converts it to a similarity score.
func (s *PostgresStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]models.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	q := s.db.NewSelect().
		Model((*chunkRecord)(nil)).
		Column("id", "content", "metadata").
		ColumnExpr("embedding <=> ? AS distance", Vector(vector)).
		OrderExpr("embedding <=> ?", Vector(vector)).
		Limit(k)
	for key, val := range filter {
		q = q.Where("metadata ->> ? = ?", key, val)
	}

	var recs []chunkRecord
	if err := q.Scan(ctx, &recs); err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}

	hits := make([]models.Hit, 0, len(recs))
	for _, rec := range recs {
		meta := map[string]string{}
		if rec.Metadata != "" {
			if err := json.Unmarshal([]byte(rec.Metadata), &meta); err != nil {
				log.Error().Err(err).Str("id", rec.ID).Msg("bad metadata payload, skipping fields")
			}
		}
		hits = append(hits, models.Hit{
			Content:  rec.Content,
			Metadata: meta,
			Score:    float32(1 - rec.Distance),
		})
	}
	return hits, nil
}

// Reset removes all rows but keeps the table.
func (s *PostgresStore) Reset(ctx context.Context) error {
	log.Warn().Msg("truncating chunks table")
	if _, err := s.db.NewTruncateTable().Model((*chunkRecord)(nil)).Exec(ctx); err != nil {
		return fmt.Errorf("truncating chunks: %w", err)
	}
	return nil
}

// Stats reports row count and the dimensionality seen on upsert.
func (s *PostgresStore) Stats(ctx context.Context) (models.CollectionStats, error) {
	count, err := s.db.NewSelect().Model((*chunkRecord)(nil)).Count(ctx)
	if err != nil {
		return models.CollectionStats{}, fmt.Errorf("counting chunks: %w", err)
	}

	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()

	return models.CollectionStats{
		CollectionName:     "chunks",
		DocumentCount:      count,
		EmbeddingDimension: dim,
	}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
