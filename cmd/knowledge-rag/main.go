package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"knowledge-rag/internal/chunker"
	"knowledge-rag/internal/config"
	"knowledge-rag/internal/embedding"
	"knowledge-rag/internal/ingest"
	"knowledge-rag/internal/llm"
	"knowledge-rag/internal/models"
	"knowledge-rag/internal/rag"
	"knowledge-rag/internal/scraper"
	"knowledge-rag/internal/server"
	"knowledge-rag/internal/vectorstore"
)

var (
	configPath string

	ingestType  string
	source      string
	followLinks bool

	topK      int
	streaming bool
)

func main() {
	root := &cobra.Command{
		Use:   "knowledge-rag",
		Short: "Retrieval-augmented question answering over a document knowledge base",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE:  runServe,
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Add content to the knowledge base",
		RunE:  runIngest,
	}
	ingestCmd.Flags().StringVarP(&ingestType, "type", "t", "url", "content type: url, file, directory or text")
	ingestCmd.Flags().StringVarP(&source, "source", "s", "", "URL, path or raw text to ingest")
	ingestCmd.Flags().BoolVar(&followLinks, "follow-links", false, "crawl same-origin links from the start URL")
	_ = ingestCmd.MarkFlagRequired("source")

	queryCmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a question against the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (0 uses the configured default)")
	queryCmd.Flags().BoolVar(&streaming, "stream", false, "stream the answer as it is generated")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every document from the knowledge base",
		RunE:  runReset,
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		RunE:  runStats,
	}

	root.AddCommand(serveCmd, ingestCmd, queryCmd, resetCmd, statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	return cfg, nil
}

// app holds the wired components behind every command.
type app struct {
	cfg      *config.Config
	store    vectorstore.Store
	ingester *ingest.Service
	pipeline *rag.Pipeline
	primary  *llm.Client
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var store vectorstore.Store
	switch cfg.Store.Type {
	case "chromem":
		store, err = vectorstore.NewChromemStore(cfg.Store.Chromem)
	case "postgres":
		store, err = vectorstore.NewPostgresStore(ctx, cfg.Store.Postgres)
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	embedder, err := embedding.NewOllamaEmbedder(cfg.Embedding)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	opts := llm.Options{
		Temperature: cfg.RAG.Temperature,
		NumPredict:  cfg.RAG.NumPredict,
		NumCtx:      cfg.RAG.NumCtx,
	}
	primary := llm.NewClient(cfg.Ollama, opts)
	fallback, err := llm.NewFallbackClient(cfg.Ollama, opts)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating fallback generator: %w", err)
	}

	chunk := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	crawler := scraper.New(cfg.Crawler)

	return &app{
		cfg:      cfg,
		store:    store,
		ingester: ingest.NewService(store, embedder, chunk, crawler),
		pipeline: rag.NewPipeline(store, embedder, primary, fallback, cfg.RAG),
		primary:  primary,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("closing vector store")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	srv := server.New(a.ingester, a.pipeline, a.primary, a.cfg.Server)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	result := a.ingester.Ingest(ctx, models.IngestKind(ingestType), source, followLinks, nil)
	if !result.Success {
		for _, e := range result.Errors {
			log.Error().Msg(e)
		}
		return fmt.Errorf("ingestion failed: %s", result.Message)
	}

	fmt.Printf("%s\ndocuments: %d, chunks: %d\n", result.Message, result.DocumentsProcessed, result.ChunksCreated)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	question := args[0]

	if streaming {
		for fragment := range a.pipeline.StreamQuery(ctx, question, topK) {
			fmt.Print(fragment)
		}
		fmt.Println()
		return nil
	}

	resp := a.pipeline.Query(ctx, question, topK, true)
	fmt.Printf("%s\n\n", resp.Answer)
	for i, src := range resp.Sources {
		fmt.Printf("[%d] %s (score %.3f)\n", i+1, src.Source, src.RelevanceScore)
	}
	fmt.Printf("\nanswered by %s in %.0f ms\n", resp.GeneratedBy, resp.QueryTimeMs)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ingester.Reset(ctx); err != nil {
		return fmt.Errorf("clearing collection: %w", err)
	}
	fmt.Println("Collection cleared successfully")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	stats, err := a.ingester.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading collection stats: %w", err)
	}
	fmt.Printf("collection: %s\ndocuments: %d\nembedding dimension: %d\n",
		stats.CollectionName, stats.DocumentCount, stats.EmbeddingDimension)
	return nil
}
