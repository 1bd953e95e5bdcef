// Package mcp is the console server: it accepts agent runs over HTTP and
// streams their transcript to WebSocket viewers.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-agent/internal/config"
	"github.com/xkilldash9x/scalpel-agent/internal/memory"
)

// Server hosts the run API and the transcript feed.
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	hub      *Hub
	runs     *RunService
	handlers *Handlers
	router   chi.Router
}

// NewServer wires the services. runners maps environment names to agent
// runs; archive may be nil when recall storage is not configured.
func NewServer(logger *zap.Logger, cfg config.ServerConfig, runners map[string]RunFunc, archive memory.Archive) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("cannot initialize server with a nil logger")
	}
	if len(runners) == 0 {
		return nil, fmt.Errorf("server needs at least one environment runner")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}

	logger = logger.Named("mcp")
	hub := NewHub(logger)
	runs := NewRunService(logger, runners, hub)
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		hub:      hub,
		runs:     runs,
		handlers: NewHandlers(logger, NewQueryService(archive, logger), runs),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// The WebSocket route stays outside the timeout group; the feed is long lived.
	r.Get("/ws/v1/transcript", s.hub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		s.handlers.RegisterRoutes(r)
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Hub exposes the transcript hub.
func (s *Server) Hub() *Hub { return s.hub }

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Console server starting", zap.String("address", ln.Addr().String()))
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.closeServices()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down console server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// Viewers are hijacked connections that Shutdown does not track.
	s.hub.Close()
	var errs []error
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}
	if err := s.runs.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	<-errCh
	s.logger.Info("Console server stopped.")
	return errors.Join(errs...)
}

func (s *Server) closeServices() {
	s.hub.Close()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.runs.Shutdown(ctx); err != nil {
		s.logger.Warn("Active run did not stop in time", zap.Error(err))
	}
}

// corsMiddleware provides basic CORS support for browser-based consoles.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
