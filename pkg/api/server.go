package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/artstore/artstore/internal/logger"
)

// Server wraps an http.Server with the lifecycle every ArtStore service
// shares: background listen, context-driven graceful shutdown, idempotent
// Stop.
type Server struct {
	name         string
	server       *http.Server
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates an API HTTP server for the given handler.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. Defaults are applied here so the server works correctly even
// when created directly in tests.
//
// name identifies the owning service in log lines ("element", "admin", ...).
func NewServer(name string, config ServerConfig, handler http.Handler) *Server {
	config.ApplyDefaults()

	return &Server{
		name: name,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      handler,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}
}

// Start starts the API HTTP server and blocks until the context is cancelled
// or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns nil on success.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "service", s.name, "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received", "service", s.name)
		// Fresh context for the drain; the cancelled one would abort
		// shutdown immediately.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated", "service", s.name)

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "service", s.name, logger.Err(err))
		} else {
			logger.Info("API server stopped gracefully", "service", s.name)
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
