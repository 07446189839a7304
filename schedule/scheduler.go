package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
)

// EnqueueFunc is the callback the scheduler uses to enqueue jobs.
// This breaks the import cycle: the engine provides the implementation.
type EnqueueFunc func(ctx context.Context, kind job.Kind, payload []byte, opts ...job.Option) (id.JobID, error)

// Emitter emits schedule lifecycle events.
// ext.Registry satisfies this interface via EmitScheduleFired.
type Emitter interface {
	EmitScheduleFired(ctx context.Context, entryKey string, jobID id.JobID)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithLockTTL sets the TTL for per-entry locks.
func WithLockTTL(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.lockTTL = d }
}

// Scheduler fires due entries on a tick loop. Multiple scheduler
// processes can run against the same store: the per-entry lock gives
// at-most-one fire per due time, so no leader election is needed.
type Scheduler struct {
	store    Store
	enqueue  EnqueueFunc
	emitter  Emitter
	workerID id.WorkerID
	logger   *slog.Logger

	tickInterval time.Duration
	lockTTL      time.Duration

	// parsedSchedules caches parsed cron expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	store Store,
	enqueue EnqueueFunc,
	emitter Emitter,
	workerID id.WorkerID,
	logger *slog.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        store,
		enqueue:      enqueue,
		emitter:      emitter,
		workerID:     workerID,
		logger:       logger,
		tickInterval: 1 * time.Second,
		lockTTL:      30 * time.Second,
		parsed:       make(map[string]cronlib.Schedule),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick goroutine.
func (s *Scheduler) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.tickLoop()
	s.logger.Info("scheduler started",
		slog.String("worker_id", s.workerID.String()),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for the tick goroutine
// to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// tickLoop fires on each tick interval and processes due entries.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	entries, err := s.store.ListEntries(ctx)
	if err != nil {
		s.logger.Error("list schedule entries error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		if !entry.Enabled {
			continue
		}
		if entry.NextRunAt == nil || entry.NextRunAt.After(now) {
			continue
		}
		s.fireEntry(ctx, entry, now)
	}
}

func (s *Scheduler) fireEntry(ctx context.Context, entry *Entry, now time.Time) {
	// Acquire the per-entry lock first so concurrent schedulers agree
	// on a single firer.
	acquired, err := s.store.AcquireEntryLock(ctx, entry.Key, s.workerID.String(), s.lockTTL)
	if err != nil {
		s.logger.Error("acquire entry lock error",
			slog.String("entry_key", entry.Key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !acquired {
		return // Another worker got it.
	}
	defer func() {
		if relErr := s.store.ReleaseEntryLock(ctx, entry.Key, s.workerID.String()); relErr != nil {
			s.logger.Error("release entry lock error",
				slog.String("entry_key", entry.Key),
				slog.String("error", relErr.Error()),
			)
		}
	}()

	enqOpts := []job.Option{job.WithScheduleKey(entry.Key)}
	if entry.Queue != "" {
		enqOpts = append(enqOpts, job.WithQueue(entry.Queue))
	}
	if entry.OrgID != "" {
		enqOpts = append(enqOpts, job.WithOrgID(entry.OrgID))
	}

	jobID, enqErr := s.enqueue(ctx, entry.Kind, entry.Payload, enqOpts...)
	if enqErr != nil {
		s.logger.Error("schedule enqueue error",
			slog.String("entry_key", entry.Key),
			slog.String("job_kind", string(entry.Kind)),
			slog.String("error", enqErr.Error()),
		)
		return
	}

	// Advance NextRunAt so the entry is not re-fired on the next tick.
	sched, parseErr := s.getOrParseSchedule(entry.Schedule)
	if parseErr != nil {
		s.logger.Error("parse schedule error",
			slog.String("entry_key", entry.Key),
			slog.String("schedule", entry.Schedule),
			slog.String("error", parseErr.Error()),
		)
		return
	}
	next := sched.Next(now)
	if updateErr := s.store.UpdateEntryAfterFire(ctx, entry.Key, now, next); updateErr != nil {
		s.logger.Error("update entry after fire error",
			slog.String("entry_key", entry.Key),
			slog.String("error", updateErr.Error()),
		)
	}

	if s.emitter != nil {
		s.emitter.EmitScheduleFired(ctx, entry.Key, jobID)
	}

	s.logger.Info("schedule fired",
		slog.String("entry_key", entry.Key),
		slog.String("job_kind", string(entry.Kind)),
		slog.String("job_id", jobID.String()),
	)
}

// getOrParseSchedule caches parsed cron expressions.
func (s *Scheduler) getOrParseSchedule(expr string) (cronlib.Schedule, error) {
	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
