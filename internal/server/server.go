// Package server provides the HTTP API for bunrui.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/corpus"
	"github.com/hyperjump/bunrui/internal/metrics"
	"github.com/hyperjump/bunrui/pkg/utils"
)

// WatchService manages the inbox directories the server ingests from.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the bunrui API.
type Server struct {
	corpus  *corpus.Service
	config  *config.Config
	metrics *metrics.Metrics
	logger  *zap.Logger
	server  *http.Server

	watch      WatchService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics instruments every route and exposes GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithWatch enables the watch directory endpoints. When configPath is set,
// directory changes are written back to the config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server over svc.
func NewServer(svc *corpus.Service, cfg *config.Config, opts ...Option) *Server {
	s := &Server{corpus: svc, config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Router builds the handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	if s.config.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	}
	r.Use(middleware.Compress(5))

	r.Post("/upload", s.handleUpload)
	r.Post("/cluster", s.handleCluster)
	r.Post("/predict", s.handlePredict)
	r.Post("/semantic-search", s.handleSearch)
	r.Get("/documents", s.handleListDocuments)
	r.Delete("/documents", s.handleClearDocuments)
	r.Get("/document/{id}", s.handleGetDocument)
	r.Patch("/document/{id}", s.handleUpdateDocument)
	r.Delete("/document/{id}", s.handleDeleteDocument)
	r.Get("/cluster-contents", s.handleClusterContents)
	r.Get("/projection", s.handleProjection)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.metrics != nil && s.config.Metrics.EnabledOrDefault() {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Get("/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
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
