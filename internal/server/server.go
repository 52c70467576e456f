// Package server provides the HTTP API for Bunken.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bunken/internal/compose"
	"github.com/hyperjump/bunken/internal/config"
	"github.com/hyperjump/bunken/internal/ingest"
	"github.com/hyperjump/bunken/internal/library"
	"github.com/hyperjump/bunken/internal/retrieval"
)

// WatchService is the part of the directory watcher the API drives. nil
// disables the watch endpoints.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Bunken API.
type Server struct {
	ingestor  *ingest.Ingestor
	retriever *retrieval.Retriever
	store     library.Store
	config    *config.ServerConfig
	logger    *zap.Logger
	server    *http.Server

	composeCfg config.ComposeConfig

	watch       WatchService
	configPath  string
	appConfig   *config.Config
	appConfigMu sync.Mutex
}

// NewServer creates a server with the given dependencies. watch may be nil;
// configPath and appConfig enable persisting watch directory changes and may
// be empty/nil.
func NewServer(
	ingestor *ingest.Ingestor,
	retriever *retrieval.Retriever,
	store library.Store,
	cfg *config.ServerConfig,
	composeCfg *config.ComposeConfig,
	logger *zap.Logger,
	watch WatchService,
	configPath string,
	appConfig *config.Config,
) *Server {
	s := &Server{
		ingestor:   ingestor,
		retriever:  retriever,
		store:      store,
		config:     cfg,
		logger:     logger,
		watch:      watch,
		configPath: configPath,
		appConfig:  appConfig,
	}
	if composeCfg != nil {
		s.composeCfg = *composeCfg
	}
	return s
}

// composer returns a composer for one request, honoring a per-request
// max_chars override.
func (s *Server) composer(maxChars int) *compose.Composer {
	cc := s.composeCfg
	if maxChars > 0 {
		cc.MaxContextChars = maxChars
	}
	return compose.NewComposer(&cc)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleIngestDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Delete("/api/v1/documents", s.handleClearLibrary)
	r.Post("/api/v1/retrieve", s.handleRetrieve)
	r.Post("/api/v1/context", s.handleContext)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
