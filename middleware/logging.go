package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowtidehq/flowtide/job"
)

// Logging returns middleware that logs job start and completion. Every
// line carries the job identity and, when the job is organization
// scoped, the org it runs for, so one org's job history can be pulled
// out of the logs directly.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		l := logger.With(
			slog.String("job_kind", string(j.Kind)),
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
		)
		if j.OrgID != "" {
			l = l.With(slog.String("org_id", j.OrgID))
		}

		l.Info("job started", slog.Int("attempt", j.Attempts))

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			l.Error("job failed",
				slog.Duration("elapsed", elapsed),
				slog.Int("attempt", j.Attempts),
				slog.String("error", err.Error()),
			)
			return err
		}
		l.Info("job completed", slog.Duration("elapsed", elapsed))
		return nil
	}
}
