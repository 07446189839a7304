package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/ext"
	"github.com/flowtidehq/flowtide/handler"
	"github.com/flowtidehq/flowtide/health"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/middleware"
	"github.com/flowtidehq/flowtide/observability"
	"github.com/flowtidehq/flowtide/queue"
	"github.com/flowtidehq/flowtide/schedule"
	"github.com/flowtidehq/flowtide/scope"
	"github.com/flowtidehq/flowtide/store"
	"github.com/flowtidehq/flowtide/worker"
)

// Collaborators bundles the external integrations the job handlers
// call: the sync client, the prediction and agent backends, briefing
// generation, and chat delivery. All fields are required; Build fails
// fast on a missing one so the gap surfaces at startup, not when the
// first job of that kind runs.
type Collaborators struct {
	SyncClient        handler.SyncClient
	Predictor         handler.Predictor
	AgentRunner       handler.AgentRunner
	BriefingGenerator handler.BriefingGenerator
	Notifier          handler.Notifier
	MilestoneChecker  handler.MilestoneChecker
}

func (c Collaborators) validate() error {
	var missing []string
	if c.SyncClient == nil {
		missing = append(missing, "SyncClient")
	}
	if c.Predictor == nil {
		missing = append(missing, "Predictor")
	}
	if c.AgentRunner == nil {
		missing = append(missing, "AgentRunner")
	}
	if c.BriefingGenerator == nil {
		missing = append(missing, "BriefingGenerator")
	}
	if c.Notifier == nil {
		missing = append(missing, "Notifier")
	}
	if c.MilestoneChecker == nil {
		missing = append(missing, "MilestoneChecker")
	}
	if len(missing) > 0 {
		return fmt.Errorf("engine: missing collaborators %v", missing)
	}
	return nil
}

// Engine is the fully wired orchestrator: job registry, extension
// registry, breaker registry, queue policies, detection engine, worker
// pools, scheduler, planner, and health server, all constructed over
// the two store backends and handed to the Service for lifecycle
// management.
type Engine struct {
	svc        *flowtide.Service
	queueStore store.QueueStore
	database   store.Database
	logger     *slog.Logger

	registry   *job.Registry
	extensions *ext.Registry
	breakers   *breaker.Registry
	policies   *queue.Registry
	detection  *bottleneck.Engine
	pools      []*worker.Pool
	scheduler  *schedule.Scheduler
	planner    *schedule.Planner
	health     *health.Server

	// Build-time configuration, set by options before wiring.
	quiet             handler.QuietHours
	thresholds        *bottleneck.Thresholds
	extraExtensions   []ext.Extension
	extraMiddleware   []middleware.Middleware
	retentionInterval time.Duration
}

// Option configures Build.
type Option func(*Engine)

// WithQuietHours replaces the standard hour-window quiet-hours policy.
func WithQuietHours(q handler.QuietHours) Option {
	return func(e *Engine) { e.quiet = q }
}

// WithThresholds overrides the detection thresholds.
func WithThresholds(t bottleneck.Thresholds) Option {
	return func(e *Engine) { e.thresholds = &t }
}

// WithExtension registers an additional extension after the built-in
// metrics extension. May be given multiple times.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.extraExtensions = append(e.extraExtensions, x) }
}

// WithMiddleware appends middleware after the standard chain, i.e.
// closest to the handler.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) { e.extraMiddleware = append(e.extraMiddleware, mws...) }
}

// WithRetentionInterval sets how often the retention sweeper purges
// terminal jobs.
func WithRetentionInterval(d time.Duration) Option {
	return func(e *Engine) { e.retentionInterval = d }
}

// Build wires every subsystem over the two store backends and attaches
// the resulting runners to the Service. The Service's Config drives
// concurrency ceilings, intervals, the health port, and feature
// toggles; its logger flows into every component.
func Build(
	svc *flowtide.Service,
	queueStore store.QueueStore,
	database store.Database,
	collab Collaborators,
	opts ...Option,
) (*Engine, error) {
	if svc == nil {
		return nil, fmt.Errorf("engine: nil service")
	}
	if queueStore == nil {
		return nil, flowtide.ErrNoQueueStore
	}
	if database == nil {
		return nil, flowtide.ErrNoDatabase
	}
	if err := collab.validate(); err != nil {
		return nil, err
	}

	logger := svc.Logger()
	cfg := svc.Config()

	e := &Engine{
		svc:               svc,
		queueStore:        queueStore,
		database:          database,
		logger:            logger,
		quiet:             handler.HourWindow{},
		retentionInterval: time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}

	// Extension registry first: everything downstream emits into it.
	e.extensions = ext.NewRegistry(logger)
	e.extensions.Register(observability.NewMetricsExtension())
	for _, x := range e.extraExtensions {
		e.extensions.Register(x)
	}

	e.breakers = breaker.NewRegistry(
		breaker.WithRegistryLogger(logger),
		breaker.WithRegistryStateChange(func(name string, from, to breaker.State) {
			e.extensions.EmitBreakerStateChanged(context.Background(), name, from, to)
		}),
	)

	e.policies = queue.NewRegistry(cfg.QueueConcurrency)
	manager := queue.NewManager(e.policies)

	detectionOpts := []bottleneck.Option{
		bottleneck.WithLogger(logger),
		bottleneck.WithEvents(extensionEvents{e.extensions}),
	}
	if e.thresholds != nil {
		detectionOpts = append(detectionOpts, bottleneck.WithThresholds(*e.thresholds))
	}
	e.detection = bottleneck.NewEngine(database, database, detectionOpts...)

	handlers := &handler.Set{
		Sync:     handler.NewSyncHandler(collab.SyncClient, database, e.breakers, logger),
		Analysis: handler.NewAnalysisHandler(e.detection, collab.Predictor),
		Agents:   handler.NewAgentHandler(collab.AgentRunner),
		Heartbeat: handler.NewHeartbeatHandler(
			collab.BriefingGenerator, collab.Notifier, e.quiet, database, e.breakers, logger),
		Progress: handler.NewProgressHandler(
			database, database, database, collab.MilestoneChecker, collab.Notifier, e.breakers, logger),
	}

	e.registry = job.NewRegistry()
	handler.RegisterAll(e.registry, handlers)
	if err := e.registry.Validate(); err != nil {
		return nil, err
	}

	mws := []middleware.Middleware{
		middleware.Recover(logger),
		middleware.Tracing(),
		middleware.Metrics(),
		middleware.Logging(logger),
		middleware.Scope(),
		middleware.Timeout(logger),
	}
	mws = append(mws, e.extraMiddleware...)

	executor := worker.NewExecutor(e.registry, e.extensions, queueStore, e.policies, logger, mws...)

	// One pool per queue so each queue gets its own concurrency
	// ceiling. The retention sweeper covers all queues, so only the
	// first pool runs it.
	for i, name := range queue.Names() {
		poolOpts := []worker.PoolOption{
			worker.WithPoolQueues([]string{name}),
			worker.WithPoolConcurrency(e.policies.Policy(name).Concurrency),
			worker.WithPollInterval(cfg.PollInterval),
			worker.WithHeartbeatInterval(cfg.HeartbeatInterval),
			worker.WithStaleJobThreshold(cfg.StaleJobThreshold),
			worker.WithQueueManager(manager),
		}
		if i == 0 {
			poolOpts = append(poolOpts, worker.WithRetention(e.policies, e.retentionInterval))
		}
		p := worker.NewPool(queueStore, executor, e.extensions, logger, poolOpts...)
		e.pools = append(e.pools, p)
		svc.AddPool(p)
	}

	enqueue := func(ctx context.Context, kind job.Kind, payload []byte, jobOpts ...job.Option) (id.JobID, error) {
		j, err := e.EnqueueRaw(ctx, kind, payload, jobOpts...)
		if err != nil {
			return id.Nil, err
		}
		return j.ID, nil
	}
	e.scheduler = schedule.NewScheduler(
		queueStore, enqueue, e.extensions, e.pools[0].WorkerID(), logger,
		schedule.WithTickInterval(cfg.ScheduleTickInterval),
	)

	e.planner = schedule.NewPlanner(queueStore, database,
		schedule.WithFeatures(schedule.Features{
			Agents:      cfg.AgentsEnabled,
			Briefings:   cfg.BriefingsEnabled,
			Predictions: cfg.PredictionsEnabled,
		}),
		schedule.WithPlannerLogger(logger),
	)

	e.health = health.NewServer(queueStore, database,
		health.WithAddr(fmt.Sprintf(":%d", cfg.HealthPort)),
		health.WithServerLogger(logger),
		health.WithJobCounter(queueStore),
		health.WithBreakers(e.breakers),
	)

	svc.SetHealth(e.health)
	svc.SetScheduler(e.scheduler)
	svc.SetExtensions(e.extensions)

	return e, nil
}

// Register registers an additional typed job definition, replacing the
// standard handler for that kind.
func Register[T any](e *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(e.registry, def)
}

// Enqueue serializes payload and enqueues a job of the given kind.
func Enqueue[T any](ctx context.Context, e *Engine, kind job.Kind, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job kind %q: %w", kind, err)
	}
	return e.EnqueueRaw(ctx, kind, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload. Options
// start from the registered definition for the kind, so ad hoc
// enqueues land on the same queue with the same timeout as scheduled
// ones; caller options override. The org scope is taken from the
// options if set, otherwise from the context.
func (e *Engine) EnqueueRaw(ctx context.Context, kind job.Kind, payload []byte, opts ...job.Option) (*job.Job, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("enqueue: unknown job kind %q: %w", kind, flowtide.ErrPermanent)
	}

	options, ok := e.registry.Options(kind)
	if !ok {
		options = job.DefaultOptions()
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.OrgID == "" {
		if orgID, ok := scope.OrgFrom(ctx); ok {
			options.OrgID = orgID
		}
	}

	now := time.Now().UTC()
	runAt := options.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	j := &job.Job{
		ID:          id.NewJobID(),
		Kind:        kind,
		Queue:       options.Queue,
		Payload:     payload,
		State:       job.StatePending,
		OrgID:       options.OrgID,
		ScheduleKey: options.ScheduleKey,
		MaxAttempts: options.MaxAttempts,
		RunAt:       runAt,
		Timeout:     options.Timeout,
	}
	j.Touch(now)

	if err := e.queueStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	e.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// extensionEvents forwards detection lifecycle events into the
// extension registry.
type extensionEvents struct {
	ext *ext.Registry
}

func (a extensionEvents) BottleneckDetected(ctx context.Context, b *bottleneck.Bottleneck) {
	a.ext.EmitBottleneckDetected(ctx, b)
}

func (a extensionEvents) BottleneckResolved(ctx context.Context, b *bottleneck.Bottleneck) {
	a.ext.EmitBottleneckResolved(ctx, b)
}

var _ bottleneck.Events = extensionEvents{}

// Extensions returns the extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.extensions }

// Registry returns the job registry.
func (e *Engine) Registry() *job.Registry { return e.registry }

// Breakers returns the circuit-breaker registry.
func (e *Engine) Breakers() *breaker.Registry { return e.breakers }

// Policies returns the queue policy registry.
func (e *Engine) Policies() *queue.Registry { return e.policies }

// Detection returns the bottleneck detection engine.
func (e *Engine) Detection() *bottleneck.Engine { return e.detection }

// Scheduler returns the repeating-job scheduler.
func (e *Engine) Scheduler() *schedule.Scheduler { return e.scheduler }

// Planner returns the recurring-schedule planner. Run Plan once after
// Build, before Service.Start.
func (e *Engine) Planner() *schedule.Planner { return e.planner }

// Health returns the health/metrics HTTP server.
func (e *Engine) Health() *health.Server { return e.health }
