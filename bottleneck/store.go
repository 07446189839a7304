package bottleneck

import (
	"context"
	"time"
)

// Store defines the persistence contract for bottleneck records. The
// production backend is the relational store; the memory backend
// serves tests.
type Store interface {
	// UpsertBottleneck creates the bottleneck if no active record exists
	// for its Key, or updates the existing active record in place
	// (type, severity, title, description, impact). It returns true when
	// a new record was created. Upserting identical data is a no-op.
	UpsertBottleneck(ctx context.Context, b *Bottleneck) (created bool, err error)

	// ListActiveBottlenecks returns all active bottlenecks for the
	// organization, optionally filtered by type (empty means all types).
	ListActiveBottlenecks(ctx context.Context, orgID string, typ Type) ([]*Bottleneck, error)

	// ResolveBottlenecks transitions the active bottlenecks with the
	// given keys to resolved and stamps ResolvedAt. Already-resolved and
	// unknown keys are skipped. It returns the records it transitioned.
	ResolveBottlenecks(ctx context.Context, orgID string, keys []Key, at time.Time) ([]*Bottleneck, error)

	// CountActiveBottlenecks returns the number of active bottlenecks
	// for the organization across all types.
	CountActiveBottlenecks(ctx context.Context, orgID string) (int, error)
}

// Snapshots is the read side of the persistence collaborator: the task
// and pull-request state detectors scan, plus the stuck flags they
// maintain on matched entities.
type Snapshots interface {
	// ListOpenPullRequests returns all open review requests for the
	// organization.
	ListOpenPullRequests(ctx context.Context, orgID string) ([]*PullRequest, error)

	// ListActiveTasks returns all non-terminal tasks for the organization.
	ListActiveTasks(ctx context.Context, orgID string) ([]*Task, error)

	// MarkPullRequestsStuck flags or unflags the given pull requests.
	MarkPullRequestsStuck(ctx context.Context, orgID string, ids []string, stuck bool) error

	// MarkTasksStuck flags or unflags the given tasks.
	MarkTasksStuck(ctx context.Context, orgID string, ids []string, stuck bool) error

	// CountConnectedIntegrations returns how many integrations the
	// organization has in a connected state. The guarantee pass uses it
	// to choose between the setup advisory and the monitoring record.
	CountConnectedIntegrations(ctx context.Context, orgID string) (int, error)

	// CountTasksByStatus returns the number of tasks per status for the
	// organization, including terminal tasks. The daily progress
	// snapshot is built from these counts.
	CountTasksByStatus(ctx context.Context, orgID string) (map[TaskStatus]int, error)
}
