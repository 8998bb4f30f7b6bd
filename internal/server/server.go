// Package server runs the HTTP listeners of the process with graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/mir00r/traffic-resilience/pkg/logger"
)

const defaultIdleTimeout = 120 * time.Second

// Options defines listener timeouts. Zero values fall back to the defaults
// of http.Server except IdleTimeout.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server wraps an http.Server
type Server struct {
	name       string
	httpServer *http.Server
	logger     *logger.Logger
}

// New creates a server named name listening on port
func New(name string, port int, handler http.Handler, opts Options, log *logger.Logger) *Server {
	idle := opts.IdleTimeout
	if idle == 0 {
		idle = defaultIdleTimeout
	}

	return &Server{
		name: name,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  idle,
		},
		logger: log.WithField("server", name),
	}
}

// Start listens on the configured address and serves until Shutdown. It
// returns nil after a graceful shutdown.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("%s server: %w", s.name, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown
func (s *Server) Serve(l net.Listener) error {
	s.logger.WithField("addr", l.Addr().String()).Info("Starting HTTP server")

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", s.name, err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to shutdown HTTP server")
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
