// Package server exposes the knowledge base over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"knowledge-rag/internal/config"
	"knowledge-rag/internal/ingest"
	"knowledge-rag/internal/models"
	"knowledge-rag/internal/rag"
)

// Version is reported by GET /health.
const Version = "1.0.0"

// Server wires the ingestion service and the answer pipeline to HTTP routes.
type Server struct {
	echo     *echo.Echo
	ingester *ingest.Service
	pipeline *rag.Pipeline
	primary  rag.PrimaryGenerator
	cfg      config.ServerConfig
}

func New(ingester *ingest.Service, pipeline *rag.Pipeline, primary rag.PrimaryGenerator, cfg config.ServerConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger)

	s := &Server{
		echo:     e,
		ingester: ingester,
		pipeline: pipeline,
		primary:  primary,
		cfg:      cfg,
	}
	s.registerRoutes()
	return s
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		log.Info().
			Str("method", c.Request().Method).
			Str("uri", c.Request().RequestURI).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("http request")

		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.POST("/query", s.handleQuery)
	s.echo.POST("/query/stream", s.handleQueryStream)

	s.echo.POST("/ingest", s.handleIngest)
	s.echo.POST("/ingest/refresh", s.handleRefresh)
	s.echo.DELETE("/ingest", s.handleClear)
	s.echo.GET("/ingest/stats", s.handleStats)
}

// errorBody is the JSON shape of every HTTP-level failure.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	components := map[string]string{"api": "healthy"}

	if _, err := s.ingester.Stats(ctx); err != nil {
		components["vector_store"] = fmt.Sprintf("unhealthy: %v", err)
	} else {
		components["vector_store"] = "healthy"
	}

	if err := s.primary.Ping(ctx); err != nil {
		components["llm"] = fmt.Sprintf("unhealthy: %v", err)
	} else {
		components["llm"] = "healthy"
	}

	status := "healthy"
	for _, v := range components {
		if v != "healthy" {
			status = "degraded"
			break
		}
	}

	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Version:    Version,
		Components: components,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Detail: err.Error()})
	}
	if req.Question == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "question field is required"})
	}

	includeSources := true
	if req.IncludeSources != nil {
		includeSources = *req.IncludeSources
	}

	resp := s.pipeline.Query(c.Request().Context(), req.Question, req.TopK, includeSources)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleQueryStream(c echo.Context) error {
	var req models.QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Detail: err.Error()})
	}
	if req.Question == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "question field is required"})
	}

	ctx := c.Request().Context()
	fragments := s.pipeline.StreamQuery(ctx, req.Question, req.TopK)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	resp.WriteHeader(http.StatusOK)

	for fragment := range fragments {
		if _, err := resp.Write([]byte(fragment)); err != nil {
			return err
		}
		resp.Flush()
	}
	return nil
}

func (s *Server) handleIngest(c echo.Context) error {
	req, ok := bindIngest(c)
	if !ok {
		return nil
	}

	result := s.ingester.Ingest(c.Request().Context(), req.Type, req.Source, req.FollowLinks, req.Metadata)
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// handleRefresh clears the index, then ingests the requested source into the
// empty collection.
func (s *Server) handleRefresh(c echo.Context) error {
	req, ok := bindIngest(c)
	if !ok {
		return nil
	}

	ctx := c.Request().Context()
	if err := s.ingester.Reset(ctx); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "failed to clear collection", Detail: err.Error()})
	}

	result := s.ingester.Ingest(ctx, req.Type, req.Source, req.FollowLinks, req.Metadata)
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleClear(c echo.Context) error {
	if err := s.ingester.Reset(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "failed to clear collection", Detail: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Collection cleared successfully"})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.ingester.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "failed to read collection stats", Detail: err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// bindIngest decodes and validates an ingest request body. On failure it
// writes the error response itself and reports ok=false.
func bindIngest(c echo.Context) (models.IngestRequest, bool) {
	var req models.IngestRequest
	if err := c.Bind(&req); err != nil {
		_ = c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body", Detail: err.Error()})
		return req, false
	}
	switch req.Type {
	case models.IngestURL, models.IngestFile, models.IngestDirectory, models.IngestText:
	default:
		_ = c.JSON(http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unsupported ingest type: %q", req.Type)})
		return req, false
	}
	if req.Source == "" {
		_ = c.JSON(http.StatusBadRequest, errorBody{Error: "source field is required"})
		return req, false
	}
	return req, true
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Info().Str("addr", addr).Msg("starting http server")
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying mux for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
