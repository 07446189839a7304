package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/id"
)

// UpsertBottleneck creates the bottleneck if no active record exists
// for its Key, or updates the existing active record in place. The
// partial unique index on (org_id, type, entity_kind, entity_id) WHERE
// status = 'active' makes this race-safe; the DO UPDATE guard clause
// keeps identical re-detections from touching the row at all.
func (s *Store) UpsertBottleneck(ctx context.Context, b *bottleneck.Bottleneck) (bool, error) {
	if b.ID.IsNil() {
		b.ID = id.NewBottleneckID()
	}
	now := time.Now().UTC()

	var result struct {
		ID      string `bun:"id"`
		Created bool   `bun:"created"`
	}
	err := s.db.NewRaw(`
		INSERT INTO flowtide_bottlenecks
			(id, org_id, project_id, entity_kind, entity_id, type, severity,
			 status, title, description, impact, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, type, entity_kind, entity_id) WHERE status = 'active'
		DO UPDATE SET
			severity = EXCLUDED.severity,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			impact = EXCLUDED.impact,
			updated_at = EXCLUDED.updated_at
		WHERE (flowtide_bottlenecks.severity, flowtide_bottlenecks.title,
		       flowtide_bottlenecks.description, flowtide_bottlenecks.impact)
		  IS DISTINCT FROM
		      (EXCLUDED.severity, EXCLUDED.title,
		       EXCLUDED.description, EXCLUDED.impact)
		RETURNING id, (xmax = 0) AS created`,
		b.ID.String(), b.OrgID, b.ProjectID, string(b.Key.EntityKind), b.Key.EntityID,
		string(b.Key.Type), string(b.Severity), b.Title, b.Description, b.Impact, now, now,
	).Scan(ctx, &result)
	if err != nil {
		if isNoRows(err) {
			// Identical data already active: the guard clause skipped the
			// update. Adopt the existing row's identity.
			return false, s.adoptActiveID(ctx, b)
		}
		return false, fmt.Errorf("flowtide/bun: upsert bottleneck: %w", err)
	}

	parsedID, err := id.ParseBottleneckID(result.ID)
	if err != nil {
		return false, fmt.Errorf("flowtide/bun: upsert bottleneck id: %w", err)
	}
	b.ID = parsedID
	b.Status = bottleneck.StatusActive
	return result.Created, nil
}

func (s *Store) adoptActiveID(ctx context.Context, b *bottleneck.Bottleneck) error {
	var existingID string
	err := s.db.NewSelect().
		Model((*bottleneckModel)(nil)).
		Column("id").
		Where("org_id = ?", b.OrgID).
		Where("type = ?", string(b.Key.Type)).
		Where("entity_kind = ?", string(b.Key.EntityKind)).
		Where("entity_id = ?", b.Key.EntityID).
		Where("status = ?", string(bottleneck.StatusActive)).
		Scan(ctx, &existingID)
	if err != nil {
		return fmt.Errorf("flowtide/bun: adopt bottleneck id: %w", err)
	}

	parsedID, err := id.ParseBottleneckID(existingID)
	if err != nil {
		return fmt.Errorf("flowtide/bun: adopt bottleneck id: %w", err)
	}
	b.ID = parsedID
	b.Status = bottleneck.StatusActive
	return nil
}

// ListActiveBottlenecks returns all active bottlenecks for the
// organization, optionally filtered by type.
func (s *Store) ListActiveBottlenecks(ctx context.Context, orgID string, typ bottleneck.Type) ([]*bottleneck.Bottleneck, error) {
	var models []bottleneckModel
	q := s.db.NewSelect().
		Model(&models).
		Where("org_id = ?", orgID).
		Where("status = ?", string(bottleneck.StatusActive)).
		Order("entity_id ASC")
	if typ != "" {
		q = q.Where("type = ?", string(typ))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("flowtide/bun: list active bottlenecks: %w", err)
	}

	out := make([]*bottleneck.Bottleneck, 0, len(models))
	for i := range models {
		b, convErr := fromBottleneckModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, b)
	}
	return out, nil
}

// ResolveBottlenecks transitions the active bottlenecks with the given
// keys to resolved. Already-resolved and unknown keys are skipped.
func (s *Store) ResolveBottlenecks(ctx context.Context, orgID string, keys []bottleneck.Key, at time.Time) ([]*bottleneck.Bottleneck, error) {
	var resolved []*bottleneck.Bottleneck
	for _, k := range keys {
		var models []bottleneckModel
		_, err := s.db.NewUpdate().
			Model(&models).
			Set("status = ?", string(bottleneck.StatusResolved)).
			Set("resolved_at = ?", at).
			Set("updated_at = ?", time.Now().UTC()).
			Where("org_id = ?", orgID).
			Where("type = ?", string(k.Type)).
			Where("entity_kind = ?", string(k.EntityKind)).
			Where("entity_id = ?", k.EntityID).
			Where("status = ?", string(bottleneck.StatusActive)).
			Returning("*").
			Exec(ctx)
		if err != nil {
			return resolved, fmt.Errorf("flowtide/bun: resolve bottleneck %s/%s: %w", k.EntityKind, k.EntityID, err)
		}
		for i := range models {
			b, convErr := fromBottleneckModel(&models[i])
			if convErr != nil {
				return resolved, convErr
			}
			resolved = append(resolved, b)
		}
	}
	return resolved, nil
}

// CountActiveBottlenecks returns the number of active bottlenecks for
// the organization across all types.
func (s *Store) CountActiveBottlenecks(ctx context.Context, orgID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*bottleneckModel)(nil)).
		Where("org_id = ?", orgID).
		Where("status = ?", string(bottleneck.StatusActive)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("flowtide/bun: count active bottlenecks: %w", err)
	}
	return count, nil
}
