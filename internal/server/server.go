// Package server provides the HTTP API for kioku.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	queryTimeout      = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Server is the HTTP server for the kioku API.
type Server struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	ledger  storage.RunLedger
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. ledger may be nil,
// in which case /api/v1/runs reports 501.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	ledger storage.RunLedger,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		indexer: idx,
		ledger:  ledger,
		config:  cfg,
		logger:  logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the routed API wrapped in OpenTelemetry instrumentation.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(queryTimeout))
		r.Post("/api/v1/search", s.handleSearch)
		r.Get("/api/v1/status", s.handleStatus)
		r.Get("/api/v1/runs", s.handleRuns)
		r.Get("/health", s.handleHealth)
	})
	// Runs are not bounded by the request timeout.
	r.Post("/api/v1/update", s.handleUpdate)
	r.Post("/api/v1/rebuild", s.handleRebuild)

	return otelhttp.NewHandler(r, s.config.Server.ServiceName)
}

// Start starts the HTTP server and blocks until it stops. A Stop that lands
// before Start makes Start return immediately.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
