// Package server exposes the HTTP surface: agent listing, chat, SSE
// streaming, health probes, discovery cards, the A2A task API, and the
// metrics endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paddockai/paddock/pkg/a2a"
	"github.com/paddockai/paddock/pkg/agent"
	"github.com/paddockai/paddock/pkg/config"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Options wires the server to its collaborators.
type Options struct {
	Config   *config.Config
	Registry *agent.Registry
	Executor *a2a.Executor
	Version  string
}

type Server struct {
	cfg      *config.Config
	registry *agent.Registry
	executor *a2a.Executor
	cards    *a2a.CardGenerator
	version  string

	router     chi.Router
	httpServer *http.Server
}

func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		registry: opts.Registry,
		executor: opts.Executor,
		version:  opts.Version,
		cards: a2a.NewCardGenerator(
			opts.Config.Observability.ServiceName,
			"Multi-tenant agent hosting service",
			opts.Version,
			opts.Config.Server.BaseURL,
			opts.Registry,
		),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(traceMiddleware)
	r.Use(metricsMiddleware)
	r.Use(accessLogMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleHealth)
	r.Get("/health/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/agents", s.handleListAgents)
	r.Get("/agents/{path}", s.handleGetAgent)
	r.Post("/agents/{path}/chat", s.handleChat)
	r.Post("/agents/{path}/stream", s.handleChatStream)

	r.Get("/.well-known/agent.json", s.handleServiceCard)
	r.Get("/.well-known/agents/{path}/agent.json", s.handleAgentCard)

	r.Route("/a2a/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreateTask)
		r.Get("/", s.handleListTasks)
		r.Get("/{id}", s.handleGetTask)
		r.Post("/{id}/cancel", s.handleCancelTask)
		r.Get("/{id}/stream", s.handleStreamTask)
	})

	return r
}

// Handler returns the routed handler, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains with a deadline.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr, "baseURL", s.cfg.Server.BaseURL)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests with a deadline.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": s.version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"agents": s.registry.Count(),
	})
}
