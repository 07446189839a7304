package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowtidehq/flowtide/breaker"
)

// Server serves the health and metrics endpoints. It owns its own
// prometheus registry, so multiple Servers in one process never fight
// over metric registration.
type Server struct {
	addr     string
	logger   *slog.Logger
	checker  *Checker
	registry *prometheus.Registry

	mu      sync.Mutex
	srv     *http.Server
	ln      net.Listener
	started bool
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	addr     string
	logger   *slog.Logger
	jobs     JobCounter
	breakers *breaker.Registry
}

// WithAddr sets the listen address. Defaults to ":8090".
func WithAddr(addr string) ServerOption {
	return func(c *serverConfig) { c.addr = addr }
}

// WithServerLogger sets the structured logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(c *serverConfig) { c.logger = l }
}

// WithJobCounter wires queue depth gauges from the job store.
func WithJobCounter(jc JobCounter) ServerOption {
	return func(c *serverConfig) { c.jobs = jc }
}

// WithBreakers wires breaker state gauges from the registry.
func WithBreakers(r *breaker.Registry) ServerOption {
	return func(c *serverConfig) { c.breakers = r }
}

// NewServer creates a Server probing the two store backends.
func NewServer(queue, database Pinger, opts ...ServerOption) *Server {
	cfg := &serverConfig{
		addr:   ":8090",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	checker := NewChecker(queue, database)
	registry := prometheus.NewRegistry()
	if cfg.jobs != nil {
		registry.MustRegister(NewCollector(checker, cfg.jobs, cfg.breakers))
	}

	return &Server{
		addr:     cfg.addr,
		logger:   cfg.logger,
		checker:  checker,
		registry: registry,
	}
}

// Handler returns the routed handler, also used directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /live", s.handleLive)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.started = true

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server error", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("health server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down, waiting for in-flight requests until the
// context expires. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.srv.Shutdown(ctx)
}

// Addr returns the bound address, useful when listening on ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())
	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())
	checks := make(map[string]bool, len(report.Checks))
	for _, c := range report.Checks {
		checks[c.Name] = c.Healthy
	}
	ready := report.Status == StatusHealthy

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"ready":  ready,
		"checks": checks,
	})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"alive":          true,
		"uptime_seconds": s.checker.Uptime().Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
