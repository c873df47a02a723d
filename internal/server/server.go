// Package server is the thin REST layer over the repository family. It
// translates HTTP verbs into repository calls and error kinds into status
// codes; all data semantics live in the tables package.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/tablestore/internal/version"
)

// Server serves the table REST API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger
	resources  map[string]Resource
}

// New creates a Server exposing the given named resources.
func New(addr string, resources map[string]Resource, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		resources: resources,
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/tables/{table}", s.handleList)
	s.mux.HandleFunc("POST /api/v1/tables/{table}", s.handleCreate)
	s.mux.HandleFunc("GET /api/v1/tables/{table}/{id}", s.handleGet)
	s.mux.HandleFunc("PATCH /api/v1/tables/{table}/{id}", s.handleUpdate)
	s.mux.HandleFunc("PATCH /api/v1/tables/{table}/{id}/priority", s.handleUpdatePriority)
	s.mux.HandleFunc("POST /api/v1/tables/{table}/{id}/restore", s.handleRestore)
	s.mux.HandleFunc("DELETE /api/v1/tables/{table}/{id}", s.handleDelete)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "tablestore",
		"version": version.Short(),
	})
}
