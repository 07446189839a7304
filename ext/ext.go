// Package ext defines the extension system for Flowtide.
// Extensions are notified of lifecycle events (job enqueued, completed,
// bottleneck detected, etc.) and can react to them — logging, metrics,
// alerting, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// ──────────────────────────────────────────────────
// Detection lifecycle hooks
// ──────────────────────────────────────────────────

// BottleneckDetected is called when a detection pass surfaces a new
// bottleneck. Re-detections of an already active bottleneck do not fire.
type BottleneckDetected interface {
	OnBottleneckDetected(ctx context.Context, b *bottleneck.Bottleneck) error
}

// BottleneckResolved is called when a previously active bottleneck is
// marked resolved.
type BottleneckResolved interface {
	OnBottleneckResolved(ctx context.Context, b *bottleneck.Bottleneck) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// ScheduleFired is called when a recurring schedule entry fires and
// enqueues a job.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, entryKey string, jobID id.JobID) error
}

// BreakerStateChanged is called when a circuit breaker transitions state.
type BreakerStateChanged interface {
	OnBreakerStateChanged(ctx context.Context, name string, from, to breaker.State) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
