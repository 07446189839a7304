package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/flowtidehq/flowtide/job"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				attrs := []any{
					slog.String("job_kind", string(j.Kind)),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				}
				if j.OrgID != "" {
					attrs = append(attrs, slog.String("org_id", j.OrgID))
				}
				logger.Error("job handler panicked", attrs...)
				retErr = fmt.Errorf("panic in job %s: %v", j.Kind, r)
			}
		}()
		return next(ctx)
	}
}
