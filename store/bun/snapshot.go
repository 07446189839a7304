package bunstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/directory"
)

// ListOpenPullRequests returns all open review requests for the
// organization, sorted by ID.
func (s *Store) ListOpenPullRequests(ctx context.Context, orgID string) ([]*bottleneck.PullRequest, error) {
	var models []pullRequestModel
	err := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Where("status = ?", string(bottleneck.PullRequestOpen)).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("flowtide/bun: list open pull requests: %w", err)
	}

	out := make([]*bottleneck.PullRequest, 0, len(models))
	for i := range models {
		out = append(out, fromPullRequestModel(&models[i]))
	}
	return out, nil
}

// ListActiveTasks returns all non-terminal tasks for the organization,
// sorted by ID.
func (s *Store) ListActiveTasks(ctx context.Context, orgID string) ([]*bottleneck.Task, error) {
	var models []taskModel
	err := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Where("status NOT IN (?)", bun.In([]string{
			string(bottleneck.TaskDone),
			string(bottleneck.TaskCancelled),
		})).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("flowtide/bun: list active tasks: %w", err)
	}

	out := make([]*bottleneck.Task, 0, len(models))
	for i := range models {
		out = append(out, fromTaskModel(&models[i]))
	}
	return out, nil
}

// MarkPullRequestsStuck flags or unflags the given pull requests.
func (s *Store) MarkPullRequestsStuck(ctx context.Context, orgID string, ids []string, stuck bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewUpdate().
		Model((*pullRequestModel)(nil)).
		Set("stuck = ?", stuck).
		Where("org_id = ?", orgID).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("flowtide/bun: mark pull requests stuck: %w", err)
	}
	return nil
}

// MarkTasksStuck flags or unflags the given tasks.
func (s *Store) MarkTasksStuck(ctx context.Context, orgID string, ids []string, stuck bool) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.NewUpdate().
		Model((*taskModel)(nil)).
		Set("stuck = ?", stuck).
		Where("org_id = ?", orgID).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("flowtide/bun: mark tasks stuck: %w", err)
	}
	return nil
}

// CountConnectedIntegrations returns how many integrations the
// organization has in a connected state.
func (s *Store) CountConnectedIntegrations(ctx context.Context, orgID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*integrationModel)(nil)).
		Where("org_id = ?", orgID).
		Where("status = ?", string(directory.StatusConnected)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("flowtide/bun: count connected integrations: %w", err)
	}
	return count, nil
}

// CountTasksByStatus returns the number of tasks per status for the
// organization, including terminal tasks.
func (s *Store) CountTasksByStatus(ctx context.Context, orgID string) (map[bottleneck.TaskStatus]int, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*taskModel)(nil)).
		ColumnExpr("status, COUNT(*) AS count").
		Where("org_id = ?", orgID).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("flowtide/bun: count tasks by status: %w", err)
	}

	counts := make(map[bottleneck.TaskStatus]int, len(rows))
	for _, r := range rows {
		counts[bottleneck.TaskStatus(r.Status)] = r.Count
	}
	return counts, nil
}
