// Package server exposes distance scoring over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jacklau/distscore/internal/config"
	"github.com/jacklau/distscore/internal/pipeline"
	"github.com/jacklau/distscore/internal/store"
)

// Documents is the read side of the document store used by the API.
type Documents interface {
	GetDocument(id string) (*store.Document, error)
	ListDocuments() ([]store.Document, error)
}

// Deps holds the dependencies for the Server. Documents and Gatherer are optional.
type Deps struct {
	Config    *config.Config
	Pipeline  *pipeline.Pipeline
	Documents Documents
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// Server serves the scoring API.
type Server struct {
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	timeout    time.Duration
}

// New creates a server listening on cfg.Server.Addr.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Pipeline == nil {
		deps.Pipeline = pipeline.New(pipeline.Deps{Logger: deps.Logger})
	}

	timeout, err := deps.Config.Defaults.RequestTimeout()
	if err != nil {
		return nil, fmt.Errorf("parsing request_timeout: %w", err)
	}
	readTimeout, err := deps.Config.Server.ReadTimeout()
	if err != nil {
		return nil, fmt.Errorf("parsing read_timeout: %w", err)
	}

	r := chi.NewRouter()
	s := &Server{
		deps:    deps,
		router:  r,
		timeout: timeout,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         deps.Config.Server.Addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Start listens and serves until Shutdown is called.
func (s *Server) Start() error {
	s.deps.Logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.deps.Logger.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chiMiddleware.GetReqID(r.Context()),
			)
		})
	}
}
