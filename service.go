package flowtide

import (
	"context"
	"errors"
	"log/slog"
)

// Option configures a Service.
type Option func(*Service) error

// Storer is the minimal store lifecycle interface held by the Service.
// Both the queue store and the relational store satisfy it; the full
// subsystem interfaces (job.Store, schedule.Store, bottleneck.Store)
// live in layers that do not create import cycles.
type Storer interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// runner is the internal lifecycle interface for owned components:
// worker pools, the scheduler, and the health server.
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// shutdownEmitter notifies extensions of graceful shutdown.
type shutdownEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Service is the orchestrator daemon: it owns the queue handles, the
// worker pools, the recurring-job scheduler, the breaker registry, and
// the health server, and coordinates their startup and shutdown.
//
// Create one with New() and functional options, then wire the concrete
// components with the engine package. Nothing here is a process-wide
// singleton; tests construct as many Services as they like.
type Service struct {
	config     Config
	logger     *slog.Logger
	queueStore Storer
	database   Storer
	extensions shutdownEmitter

	health    runner
	pools     []runner
	scheduler runner

	started bool
}

// New creates a Service with the given options.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Logger returns the service's logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// QueueStore returns the durable queue store.
func (s *Service) QueueStore() Storer { return s.queueStore }

// Database returns the relational persistence store.
func (s *Service) Database() Storer { return s.database }

// Config returns a copy of the service's configuration.
func (s *Service) Config() Config { return s.config }

// SetHealth sets the health server runner (called by the engine package).
func (s *Service) SetHealth(r runner) { s.health = r }

// AddPool registers a worker pool runner (called by the engine package).
func (s *Service) AddPool(r runner) { s.pools = append(s.pools, r) }

// SetScheduler sets the scheduler runner (called by the engine package).
func (s *Service) SetScheduler(r runner) { s.scheduler = r }

// SetExtensions sets the shutdown emitter (called by the engine package).
func (s *Service) SetExtensions(e shutdownEmitter) { s.extensions = e }

// Start brings the service up: health server, then worker pools, then
// the scheduler. The health server comes first so readiness probes see
// real store state before any job runs.
func (s *Service) Start(ctx context.Context) error {
	if s.queueStore == nil {
		return ErrNoQueueStore
	}
	if s.database == nil {
		return ErrNoDatabase
	}

	if s.health != nil {
		if err := s.health.Start(ctx); err != nil {
			return err
		}
	}
	for _, p := range s.pools {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	s.started = true
	s.logger.Info("service started", slog.Int("pools", len(s.pools)))
	return nil
}

// Stop shuts the service down in dependency order: the health server
// first (orchestrators stop routing traffic), then the scheduler (no
// new repeating jobs materialize), then the worker pools (in-flight
// jobs get the configured grace), then the store connections.
// Stop is idempotent.
func (s *Service) Stop(ctx context.Context) error {
	if !s.started {
		return nil
	}
	s.started = false

	if s.health != nil {
		if err := s.health.Stop(ctx); err != nil {
			s.logger.Error("health server stop error", slog.String("error", err.Error()))
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Error("scheduler stop error", slog.String("error", err.Error()))
		}
	}
	for _, p := range s.pools {
		if err := p.Stop(ctx); err != nil {
			s.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
	}
	if s.extensions != nil {
		s.extensions.EmitShutdown(ctx)
	}

	var errs []error
	if s.queueStore != nil {
		if err := s.queueStore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("service stopped")
	return errors.Join(errs...)
}

// WithLogger sets the structured logger for the service.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		s.logger = l
		return nil
	}
}

// WithConfig replaces the service configuration wholesale.
func WithConfig(cfg Config) Option {
	return func(s *Service) error {
		s.config = cfg
		return nil
	}
}

// WithQueueStore sets the durable queue store backend.
func WithQueueStore(st Storer) Option {
	return func(s *Service) error {
		s.queueStore = st
		return nil
	}
}

// WithDatabase sets the relational persistence backend.
func WithDatabase(st Storer) Option {
	return func(s *Service) error {
		s.database = st
		return nil
	}
}
