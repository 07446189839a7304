package worker_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/ext"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/queue"
	"github.com/flowtidehq/flowtide/store/memory"
	"github.com/flowtidehq/flowtide/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecutorFixture(t *testing.T, handler func(ctx context.Context, payload struct{}) error) (*worker.Executor, *memory.Store) {
	t.Helper()

	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition(job.KindBottleneckDetection, handler))

	s := memory.New()
	return worker.NewExecutor(
		reg,
		ext.NewRegistry(quietLogger()),
		s,
		queue.NewRegistry(nil),
		quietLogger(),
	), s
}

func enqueueTestJob(t *testing.T, s *memory.Store, maxAttempts int) *job.Job {
	t.Helper()
	j := &job.Job{
		ID:          id.NewJobID(),
		Kind:        job.KindBottleneckDetection,
		Queue:       queue.Analysis,
		Payload:     []byte(`{}`),
		State:       job.StateRunning,
		MaxAttempts: maxAttempts,
		RunAt:       time.Now().UTC(),
	}
	j.Touch(time.Now().UTC())
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return j
}

func TestExecutorSuccess(t *testing.T) {
	t.Parallel()

	e, s := newExecutorFixture(t, func(context.Context, struct{}) error { return nil })
	j := enqueueTestJob(t, s, 5)

	if err := e.Execute(context.Background(), j); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Fatalf("got state %q, want completed", got.State)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt not set")
	}
	if got.Attempts != 1 {
		t.Fatalf("got %d attempts, want 1", got.Attempts)
	}
}

func TestExecutorRetriesUntilExhausted(t *testing.T) {
	t.Parallel()

	handlerErr := errors.New("provider timeout")
	e, s := newExecutorFixture(t, func(context.Context, struct{}) error { return handlerErr })
	j := enqueueTestJob(t, s, 3)
	ctx := context.Background()

	// Attempts 1 and 2 schedule retries.
	for i := 1; i <= 2; i++ {
		if err := e.Execute(ctx, j); err == nil {
			t.Fatalf("attempt %d: expected error", i)
		}
		got, err := s.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.State != job.StateRetrying {
			t.Fatalf("attempt %d: got state %q, want retrying", i, got.State)
		}
		if got.Attempts != i {
			t.Fatalf("attempt %d: got %d attempts", i, got.Attempts)
		}
		if !got.RunAt.After(time.Now().UTC()) {
			t.Fatalf("attempt %d: RunAt not pushed into the future", i)
		}
	}

	// Attempt 3 exhausts the budget.
	if err := e.Execute(ctx, j); !errors.Is(err, handlerErr) {
		t.Fatalf("final attempt: got %v, want handler error", err)
	}
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed", got.State)
	}
	if got.LastError == "" {
		t.Fatal("LastError not recorded")
	}
}

func TestExecutorPermanentErrorSkipsRetry(t *testing.T) {
	t.Parallel()

	permErr := fmt.Errorf("organization deleted: %w", flowtide.ErrPermanent)
	e, s := newExecutorFixture(t, func(context.Context, struct{}) error { return permErr })
	j := enqueueTestJob(t, s, 5)

	if err := e.Execute(context.Background(), j); !errors.Is(err, flowtide.ErrPermanent) {
		t.Fatalf("got %v, want permanent error", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed on first attempt", got.State)
	}
	if got.Attempts != 1 {
		t.Fatalf("got %d attempts, want 1", got.Attempts)
	}
}

func TestExecutorUndecodablePayloadIsPermanent(t *testing.T) {
	t.Parallel()

	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition(job.KindSync,
		func(context.Context, job.SyncPayload) error { return nil }))

	s := memory.New()
	e := worker.NewExecutor(reg, ext.NewRegistry(quietLogger()), s, queue.NewRegistry(nil), quietLogger())

	j := &job.Job{
		ID:          id.NewJobID(),
		Kind:        job.KindSync,
		Queue:       queue.Sync,
		Payload:     []byte(`{not json`),
		State:       job.StateRunning,
		MaxAttempts: 5,
		RunAt:       time.Now().UTC(),
	}
	j.Touch(time.Now().UTC())
	if err := s.EnqueueJob(context.Background(), j); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if err := e.Execute(context.Background(), j); !errors.Is(err, flowtide.ErrPermanent) {
		t.Fatalf("got %v, want permanent decode error", err)
	}
	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed", got.State)
	}
}

func TestExecutorMissingHandlerFails(t *testing.T) {
	t.Parallel()

	e, s := newExecutorFixture(t, func(context.Context, struct{}) error { return nil })
	j := enqueueTestJob(t, s, 5)
	j.Kind = job.KindPredictions // no handler registered for this kind

	if err := e.Execute(context.Background(), j); err == nil {
		t.Fatal("expected error for missing handler")
	}
	got, _ := s.GetJob(context.Background(), j.ID)
	if got.State != job.StateFailed {
		t.Fatalf("got state %q, want failed", got.State)
	}
}
