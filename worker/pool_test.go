package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowtidehq/flowtide/ext"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/queue"
	"github.com/flowtidehq/flowtide/store/memory"
	"github.com/flowtidehq/flowtide/worker"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met before timeout")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func enqueuePending(t *testing.T, s *memory.Store, kind job.Kind, queueName string) *job.Job {
	t.Helper()
	j := &job.Job{
		ID:          id.NewJobID(),
		Kind:        kind,
		Queue:       queueName,
		Payload:     []byte(`{}`),
		State:       job.StatePending,
		MaxAttempts: 5,
		RunAt:       time.Now().UTC().Add(-time.Second),
	}
	j.Touch(time.Now().UTC())
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return j
}

func TestPoolExecutesJobs(t *testing.T) {
	s := memory.New()

	var executed atomic.Int32
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition(job.KindBottleneckDetection,
		func(context.Context, struct{}) error {
			executed.Add(1)
			return nil
		}))

	logger := quietLogger()
	extensions := ext.NewRegistry(logger)
	executor := worker.NewExecutor(reg, extensions, s, queue.NewRegistry(nil), logger)
	pool := worker.NewPool(s, executor, extensions, logger,
		worker.WithPoolConcurrency(2),
		worker.WithPollInterval(20*time.Millisecond),
	)

	j1 := enqueuePending(t, s, job.KindBottleneckDetection, queue.Analysis)
	j2 := enqueuePending(t, s, job.KindBottleneckDetection, queue.Analysis)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool { return executed.Load() == 2 })
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	for _, j := range []*job.Job{j1, j2} {
		got, err := s.GetJob(context.Background(), j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.State != job.StateCompleted {
			t.Fatalf("job %s state %q, want completed", j.ID, got.State)
		}
	}
}

func TestPoolHonorsQueueFilter(t *testing.T) {
	s := memory.New()

	var executed atomic.Int32
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition(job.KindSync,
		func(context.Context, struct{}) error {
			executed.Add(1)
			return nil
		}))

	logger := quietLogger()
	extensions := ext.NewRegistry(logger)
	executor := worker.NewExecutor(reg, extensions, s, queue.NewRegistry(nil), logger)
	pool := worker.NewPool(s, executor, extensions, logger,
		worker.WithPoolConcurrency(1),
		worker.WithPoolQueues([]string{queue.Heartbeat}),
		worker.WithPollInterval(20*time.Millisecond),
	)

	// On a queue the pool does not poll.
	other := enqueuePending(t, s, job.KindSync, queue.Sync)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if executed.Load() != 0 {
		t.Fatalf("executed %d jobs from an unpolled queue", executed.Load())
	}
	got, err := s.GetJob(context.Background(), other.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StatePending {
		t.Fatalf("job state %q, want still pending", got.State)
	}
}

func TestPoolStopIsIdempotent(t *testing.T) {
	s := memory.New()
	logger := quietLogger()
	extensions := ext.NewRegistry(logger)
	executor := worker.NewExecutor(job.NewRegistry(), extensions, s, queue.NewRegistry(nil), logger)
	pool := worker.NewPool(s, executor, extensions, logger,
		worker.WithPollInterval(20*time.Millisecond),
	)

	if err := pool.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := pool.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestPoolReapsStaleJobs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	// A running job whose heartbeat stopped long ago.
	stale := &job.Job{
		ID:          id.NewJobID(),
		Kind:        job.KindSync,
		Queue:       queue.Sync,
		State:       job.StateRunning,
		MaxAttempts: 5,
		RunAt:       time.Now().UTC().Add(-time.Hour),
	}
	old := time.Now().UTC().Add(-time.Hour)
	stale.HeartbeatAt = &old
	stale.StartedAt = &old
	stale.Touch(time.Now().UTC())
	if err := s.EnqueueJob(ctx, stale); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	logger := quietLogger()
	extensions := ext.NewRegistry(logger)
	executor := worker.NewExecutor(job.NewRegistry(), extensions, s, queue.NewRegistry(nil), logger)
	pool := worker.NewPool(s, executor, extensions, logger,
		worker.WithPoolConcurrency(0), // no dequeue workers, reaper only
		worker.WithPollInterval(20*time.Millisecond),
		worker.WithStaleJobThreshold(50*time.Millisecond),
	)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		got, err := s.GetJob(ctx, stale.ID)
		return err == nil && got.State == job.StatePending
	})
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, err := s.GetJob(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.HeartbeatAt != nil || got.StartedAt != nil {
		t.Fatal("reaped job should have cleared heartbeat and start timestamps")
	}
	if !got.WorkerID.IsNil() {
		t.Fatal("reaped job should have no worker assignment")
	}
}

func TestPoolRetentionSweep(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	// More completed jobs than the retention count allows.
	policies := queue.NewRegistry(nil)
	keep := policies.Policy(queue.Analysis).RemoveOnComplete.Count
	for i := 0; i < keep+5; i++ {
		j := enqueuePending(t, s, job.KindBottleneckDetection, queue.Analysis)
		j.State = job.StateCompleted
		done := time.Now().UTC()
		j.CompletedAt = &done
		if err := s.UpdateJob(ctx, j); err != nil {
			t.Fatalf("UpdateJob: %v", err)
		}
	}

	logger := quietLogger()
	extensions := ext.NewRegistry(logger)
	executor := worker.NewExecutor(job.NewRegistry(), extensions, s, policies, logger)
	pool := worker.NewPool(s, executor, extensions, logger,
		worker.WithPoolConcurrency(0),
		worker.WithRetention(policies, 50*time.Millisecond),
	)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		count, err := s.CountJobs(ctx, job.CountOpts{Queue: queue.Analysis, State: job.StateCompleted})
		return err == nil && count == int64(keep)
	})
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
