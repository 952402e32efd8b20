// Package server provides the docindex HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/docindex/internal/config"
	"github.com/hyperjump/docindex/internal/pipeline"
	"github.com/hyperjump/docindex/internal/storage"
	"go.uber.org/zap"
)

const requestTimeout = 60 * time.Second

// Builder runs a full pipeline build.
type Builder interface {
	Run(ctx context.Context) (*pipeline.Summary, error)
}

// Server is the HTTP server for the docindex API.
type Server struct {
	builder Builder
	catalog storage.Catalog
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(cfg *config.Config, builder Builder, catalog storage.Catalog, logger *zap.Logger) *Server {
	return &Server{
		builder: builder,
		catalog: catalog,
		config:  cfg,
		logger:  logger,
	}
}

// Routes returns the API router. Builds are exempt from the request timeout.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/health", s.handleHealth)
			r.Get("/status", s.handleStatus)
			r.Get("/chunks/*", s.handleGetChunk)
		})
		r.Post("/build", s.handleBuild)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
