// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes sessions, chat turns and expression search over
// HTTP. Chat turns stream as Server-Sent Events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pdiddy/expression-learner/pkg/types"
)

const (
	defaultAddr            = ":8000"
	defaultShutdownTimeout = 10 * time.Second
)

// Server is the HTTP API server.
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	logger          *slog.Logger
}

// New builds a Server from cfg serving the routes of h.
func New(cfg types.ServerConfig, h *Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = defaultAddr
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	return &Server{
		addr:            addr,
		shutdownTimeout: timeout,
		httpServer: &http.Server{
			Handler:           Routes(h, cfg.AllowedOrigins, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Chat replies stream for as long as the model takes.
			WriteTimeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()
	s.logger.Info("server started", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Routes returns the API handler wrapped in CORS and request logging.
func Routes(h *Handler, allowedOrigins []string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.HandleRoot)
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /session", h.HandleCreateSession)
	mux.HandleFunc("GET /session/{id}", h.HandleGetSession)
	mux.HandleFunc("POST /start_chat", h.HandleStartChat)
	mux.HandleFunc("POST /chat", h.HandleChat)
	mux.HandleFunc("GET /smoke", h.HandleSmoke)
	mux.HandleFunc("GET /expressions", h.HandleExpressions)
	mux.HandleFunc("GET /topics", h.HandleTopics)
	mux.HandleFunc("GET /topics/cache", h.HandleTopicCache)
	mux.HandleFunc("DELETE /topics/cache", h.HandleClearTopicCache)

	return logRequests(logger, cors(allowedOrigins, mux))
}
