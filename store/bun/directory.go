package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/directory"
)

// ListOrganizations returns all organizations sorted by ID.
func (s *Store) ListOrganizations(ctx context.Context) ([]*directory.Organization, error) {
	var models []organizationModel
	err := s.db.NewSelect().
		Model(&models).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("flowtide/bun: list organizations: %w", err)
	}

	out := make([]*directory.Organization, 0, len(models))
	for i := range models {
		out = append(out, fromOrganizationModel(&models[i]))
	}
	return out, nil
}

// GetOrganization retrieves one organization by ID.
func (s *Store) GetOrganization(ctx context.Context, orgID string) (*directory.Organization, error) {
	m := new(organizationModel)
	err := s.db.NewSelect().
		Model(m).
		Where("id = ?", orgID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, flowtide.ErrOrgNotFound
		}
		return nil, fmt.Errorf("flowtide/bun: get organization: %w", err)
	}
	return fromOrganizationModel(m), nil
}

// ListIntegrations returns all integrations for an organization,
// regardless of status.
func (s *Store) ListIntegrations(ctx context.Context, orgID string) ([]*directory.Integration, error) {
	var models []integrationModel
	err := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("flowtide/bun: list integrations: %w", err)
	}

	out := make([]*directory.Integration, 0, len(models))
	for i := range models {
		out = append(out, fromIntegrationModel(&models[i]))
	}
	return out, nil
}

// SaveProgressSnapshot upserts the snapshot for (org, date), so a
// retried snapshot job overwrites the same row instead of duplicating.
func (s *Store) SaveProgressSnapshot(ctx context.Context, p *directory.ProgressSnapshot) error {
	m := toProgressSnapshotModel(p)
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (org_id, date) DO UPDATE").
		Set("tasks_total = EXCLUDED.tasks_total").
		Set("tasks_done = EXCLUDED.tasks_done").
		Set("tasks_in_progress = EXCLUDED.tasks_in_progress").
		Set("tasks_blocked = EXCLUDED.tasks_blocked").
		Set("active_bottlenecks = EXCLUDED.active_bottlenecks").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("flowtide/bun: save progress snapshot: %w", err)
	}
	return nil
}
