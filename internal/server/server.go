// Package server runs the optional HTTP status API next to the bridge.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/keylight2mqtt/internal/config"
	"github.com/jmylchreest/keylight2mqtt/internal/http/handlers"
	"github.com/jmylchreest/keylight2mqtt/internal/http/mw"
	"github.com/jmylchreest/keylight2mqtt/internal/http/routes"
	"github.com/jmylchreest/keylight2mqtt/internal/ws"
)

// EventsPath is where the WebSocket event stream is mounted
const EventsPath = "/api/v1/events"

// Server serves the status API. It only reads the bridge status snapshot.
type Server struct {
	logger     *slog.Logger
	cfg        config.HealthConfig
	router     chi.Router
	listener   net.Listener
	httpServer *http.Server
	wg         sync.WaitGroup
}

// Option configures a Server
type Option func(*options)

type options struct {
	hub *ws.Hub
}

// WithEventStream mounts the WebSocket event stream backed by hub
func WithEventStream(hub *ws.Hub) Option {
	return func(o *options) { o.hub = hub }
}

// New builds the router for the status API. Nothing listens until Start.
func New(logger *slog.Logger, cfg config.HealthConfig, status handlers.StatusSource, version *handlers.VersionHandler, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	router := chi.NewRouter()
	router.Use(mw.RequestLogging(logger))
	router.Use(mw.RateLimitByIP(cfg.RequestsPerMinute))

	api := humachi.New(router, routes.NewHumaConfig(version.Version, ""))
	routes.Register(api, routes.NewHandlers(status, version))

	if o.hub != nil {
		router.Get(EventsPath, ws.Handler(o.hub, logger))
	}

	return &Server{
		logger: logger,
		cfg:    cfg,
		router: router,
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// Listen errors are returned; serve errors after that are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("server: status API listening", "address", ln.Addr().String())

	s.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("server: panic in HTTP server goroutine", "recover", r)
			}
		}()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server: HTTP server failed", "error", err)
		}
	})
	return nil
}

// Addr returns the bound address once started, or "" before.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the HTTP server down, waiting up to 5 seconds for requests in flight.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server: HTTP server shutdown failed", "error", err)
	}
	s.wg.Wait()
	s.logger.Info("server: status API stopped")
}
