package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/ext"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/flowtidehq/flowtide/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.JobEnqueued         = (*MetricsExtension)(nil)
	_ ext.JobCompleted        = (*MetricsExtension)(nil)
	_ ext.JobFailed           = (*MetricsExtension)(nil)
	_ ext.JobRetrying         = (*MetricsExtension)(nil)
	_ ext.BottleneckDetected  = (*MetricsExtension)(nil)
	_ ext.BottleneckResolved  = (*MetricsExtension)(nil)
	_ ext.ScheduleFired       = (*MetricsExtension)(nil)
	_ ext.BreakerStateChanged = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via OpenTelemetry
// counters. Register it as an extension to automatically track enqueue
// rates, completion counts, failure rates, retry counts, schedule fires,
// bottleneck detections/resolutions, and breaker state changes.
type MetricsExtension struct {
	jobEnqueued        metric.Int64Counter
	jobCompleted       metric.Int64Counter
	jobFailed          metric.Int64Counter
	jobRetried         metric.Int64Counter
	scheduleFired      metric.Int64Counter
	bottleneckDetected metric.Int64Counter
	bottleneckResolved metric.Int64Counter
	breakerTransitions metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// OTel MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Use this variant to inject a test MeterProvider.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}

	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.jobEnqueued, _ = meter.Int64Counter("flowtide.job.enqueued",
		metric.WithDescription("Total jobs accepted into a queue"))
	m.jobCompleted, _ = meter.Int64Counter("flowtide.job.completed",
		metric.WithDescription("Total jobs completed successfully"))
	m.jobFailed, _ = meter.Int64Counter("flowtide.job.failed",
		metric.WithDescription("Total jobs failed with no retries remaining"))
	m.jobRetried, _ = meter.Int64Counter("flowtide.job.retried",
		metric.WithDescription("Total job retry attempts scheduled"))
	m.scheduleFired, _ = meter.Int64Counter("flowtide.schedule.fired",
		metric.WithDescription("Total schedule entries fired"))
	m.bottleneckDetected, _ = meter.Int64Counter("flowtide.bottleneck.detected",
		metric.WithDescription("Total new bottlenecks surfaced by detection passes"))
	m.bottleneckResolved, _ = meter.Int64Counter("flowtide.bottleneck.resolved",
		metric.WithDescription("Total bottlenecks marked resolved"))
	m.breakerTransitions, _ = meter.Int64Counter("flowtide.breaker.transitions",
		metric.WithDescription("Total circuit breaker state transitions"))

	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobEnqueued.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobCompleted.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobFailed.Add(ctx, 1, jobAttrs(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobRetried.Add(ctx, 1, jobAttrs(j))
	return nil
}

// ── Detection lifecycle hooks ───────────────────────

// OnBottleneckDetected implements ext.BottleneckDetected.
func (m *MetricsExtension) OnBottleneckDetected(ctx context.Context, b *bottleneck.Bottleneck) error {
	m.bottleneckDetected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(b.Key.Type)),
		attribute.String("severity", string(b.Severity)),
	))
	return nil
}

// OnBottleneckResolved implements ext.BottleneckResolved.
func (m *MetricsExtension) OnBottleneckResolved(ctx context.Context, b *bottleneck.Bottleneck) error {
	m.bottleneckResolved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(b.Key.Type)),
	))
	return nil
}

// ── Other lifecycle hooks ───────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, _ string, _ id.JobID) error {
	m.scheduleFired.Add(ctx, 1)
	return nil
}

// OnBreakerStateChanged implements ext.BreakerStateChanged.
func (m *MetricsExtension) OnBreakerStateChanged(ctx context.Context, name string, _, to breaker.State) error {
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("to", string(to)),
	))
	return nil
}

func jobAttrs(j *job.Job) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("job_kind", string(j.Kind)),
		attribute.String("queue", j.Queue),
	)
}
