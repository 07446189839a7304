// Package worker provides the job execution engine — an Executor that
// invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines polling for jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/ext"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/middleware"
	"github.com/flowtidehq/flowtide/queue"
)

// Executor runs a single job through middleware and the registered
// handler, then handles retry scheduling, state updates, and lifecycle
// events. Retry backoff comes from the job's queue policy.
type Executor struct {
	registry   *job.Registry
	extensions *ext.Registry
	store      job.Store
	policies   *queue.Registry
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	extensions *ext.Registry,
	store job.Store,
	policies *queue.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		extensions: extensions,
		store:      store,
		policies:   policies,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a job through the middleware chain and handler.
// On success: marks completed, emits JobCompleted.
// On failure with attempts remaining: marks retrying with backoff,
// emits JobRetrying. A permanent error or an exhausted attempt budget
// marks the job failed and emits JobFailed; failed jobs stay in the
// queue store until the retention sweeper removes them.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	handler, ok := e.registry.Get(j.Kind)
	if !ok {
		failErr := fmt.Errorf("no handler registered for job kind %q", j.Kind)
		return e.markFailed(ctx, j, failErr)
	}

	start := time.Now()

	// The terminal handler that calls the registered job handler.
	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	j.Attempts++
	j.UpdatedAt = time.Now().UTC()

	if err != nil {
		return e.handleFailure(ctx, j, err)
	}

	return e.handleSuccess(ctx, j, elapsed)
}

// handleSuccess marks the job as completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	now := time.Now().UTC()
	j.State = job.StateCompleted
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job after success",
			slog.String("job_id", j.ID.String()),
			slog.String("job_kind", string(j.Kind)),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure decides between retrying and failing. Permanent errors
// skip the retry budget entirely: retrying cannot fix a bad payload or
// a missing tenant.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error) error {
	j.LastError = handlerErr.Error()

	if errors.Is(handlerErr, flowtide.ErrPermanent) {
		return e.markFailed(ctx, j, handlerErr)
	}
	if j.Attempts >= j.MaxAttempts {
		return e.markFailed(ctx, j, handlerErr)
	}
	return e.scheduleRetry(ctx, j)
}

// scheduleRetry sets the job to StateRetrying with a backoff delay from
// the queue policy.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job) error {
	delay := e.policies.Policy(j.Queue).Backoff.Delay(j.Attempts)
	nextRunAt := time.Now().UTC().Add(delay)
	j.RunAt = nextRunAt
	j.State = job.StateRetrying
	j.StartedAt = nil
	j.HeartbeatAt = nil

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobRetrying(ctx, j, j.Attempts, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", string(j.Kind)),
		slog.Int("attempt", j.Attempts),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %s", j.Kind, j.Attempts, j.MaxAttempts, j.LastError)
}

// markFailed transitions the job to its terminal failed state.
func (e *Executor) markFailed(ctx context.Context, j *job.Job, handlerErr error) error {
	now := time.Now().UTC()
	j.State = job.StateFailed
	j.LastError = handlerErr.Error()
	j.CompletedAt = &now

	if updateErr := e.store.UpdateJob(ctx, j); updateErr != nil {
		e.logger.Error("failed to update job as failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	e.extensions.EmitJobFailed(ctx, j, handlerErr)

	e.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("job_kind", string(j.Kind)),
		slog.Int("attempts", j.Attempts),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
