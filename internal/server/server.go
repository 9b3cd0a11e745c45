// Package server exposes the daemon's HTTP surface: the push webhook,
// a health endpoint, Prometheus metrics, and a small read-only runs API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docsdeploy/internal/config"
	"git.home.luguber.info/inful/docsdeploy/internal/deploy"
	"git.home.luguber.info/inful/docsdeploy/internal/history"
	"git.home.luguber.info/inful/docsdeploy/internal/metrics"
	"git.home.luguber.info/inful/docsdeploy/internal/trigger"
)

// Dispatcher accepts push events for deployment. Satisfied by
// *deploy.Service; narrowed to an interface so handler tests can stub it.
type Dispatcher interface {
	Filter() *trigger.Filter
	HandleEvent(ctx context.Context, ev trigger.PushEvent) (*deploy.Report, error)
}

// Server hosts the webhook and operational endpoints on one listener.
type Server struct {
	cfg        config.ServerConfig
	dispatcher Dispatcher
	hist       history.Store
	registry   *prometheus.Registry

	httpServer *http.Server
	boundAddr  string
	mchain     func(http.Handler) http.Handler

	// Base context for deploys started by webhook delivery; webhook
	// requests are acknowledged before the run finishes, so runs must
	// outlive the request context.
	runCtx context.Context
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithHistory enables the runs API backed by the given store.
func WithHistory(store history.Store) Option {
	return func(s *Server) { s.hist = store }
}

// WithMetricsRegistry exposes /metrics for the given registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) { s.registry = reg }
}

// New constructs the HTTP server wiring.
func New(cfg config.ServerConfig, dispatcher Dispatcher, options ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		runCtx:     context.Background(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.mchain = chain(slog.Default())
	return s
}

// Handler builds the route table. Exposed for handler tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+s.cfg.WebhookPath, s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", metrics.HTTPHandler(s.registry))
	}
	if s.hist != nil {
		mux.HandleFunc("GET /api/runs", s.handleListRuns)
		mux.HandleFunc("GET /api/runs/latest", s.handleLatestRun)
		mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	}
	return s.mchain(mux)
}

// Start binds the listener and serves in the background. Binding happens
// up front so a taken port fails fast instead of surfacing from the
// serve goroutine.
func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}

	s.runCtx = context.WithoutCancel(ctx)
	s.boundAddr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started",
		slog.String("addr", ln.Addr().String()),
		slog.String("webhook_path", s.cfg.WebhookPath))
	return nil
}

// Addr returns the bound listen address once Start has succeeded. With a
// ":0" config address this is the kernel-assigned port.
func (s *Server) Addr() string { return s.boundAddr }

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}
