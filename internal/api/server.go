package api

import (
	"context"
	"net/http"
	"time"

	"gapsentry/internal/api/health"
	"gapsentry/internal/metrics"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// Server exposes metrics and health probes
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer creates the HTTP server with all routes
func NewServer(addr string, healthHandler *health.Handler) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", healthHandler.HandleHealth)
	mux.HandleFunc("/ready", healthHandler.HandleReadiness)
	mux.HandleFunc("/live", healthHandler.HandleLiveness)
	mux.Handle("/metrics", metrics.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: logger.Get().With("component", "http_server"),
	}
}

// Start listens until the server is shut down
func (s *Server) Start() error {
	s.log.Infow("Starting HTTP server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown waits for active requests to finish within ctx
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "http server shutdown failed")
	}
	s.log.Infow("HTTP server stopped")
	return nil
}
