package middleware

import (
	"context"

	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/scope"
)

// Scope returns middleware that restores the organization scope from the
// job's OrgID field into the context. This ensures handlers see the same
// organization identity as the original enqueue caller.
func Scope() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = scope.WithOrg(ctx, j.OrgID)
		return next(ctx)
	}
}
