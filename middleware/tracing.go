package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowtidehq/flowtide/job"
)

// tracerName is the instrumentation scope name for flowtide tracing.
const tracerName = "github.com/flowtidehq/flowtide"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: flowtide.job.id, flowtide.job.kind, flowtide.queue,
// flowtide.attempts, flowtide.org_id. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "flowtide.job.execute",
			trace.WithAttributes(
				attribute.String("flowtide.job.id", j.ID.String()),
				attribute.String("flowtide.job.kind", string(j.Kind)),
				attribute.String("flowtide.queue", j.Queue),
				attribute.Int("flowtide.attempts", j.Attempts),
				attribute.String("flowtide.org_id", j.OrgID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
