// Package scope carries organization identity through context.Context.
//
// Every job is scoped to one organization; the scope middleware restores
// the job's OrgID into the context before the handler runs so
// collaborators (stores, notifiers, breakers) can attribute their work
// without threading an extra parameter everywhere.
package scope

import "context"

type orgKey struct{}

// WithOrg attaches an organization ID to the context. An empty orgID
// returns the context unchanged.
func WithOrg(ctx context.Context, orgID string) context.Context {
	if orgID == "" {
		return ctx
	}
	return context.WithValue(ctx, orgKey{}, orgID)
}

// OrgFrom extracts the organization ID from the context.
// Returns false if no scope is present.
func OrgFrom(ctx context.Context) (string, bool) {
	orgID, ok := ctx.Value(orgKey{}).(string)
	return orgID, ok && orgID != ""
}
