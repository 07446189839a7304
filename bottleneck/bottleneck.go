package bottleneck

import (
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/id"
)

// Type classifies what kind of stuck work a bottleneck represents.
type Type string

const (
	// TypeStuckReview marks a pull request stuck in review.
	TypeStuckReview Type = "stuck_review"
	// TypeStaleTask marks an in-progress task with no recent updates.
	TypeStaleTask Type = "stale_task"
	// TypeDependencyBlock marks a task blocking too many other open tasks.
	TypeDependencyBlock Type = "dependency_block"
	// TypeIntegrationSetup is a synthetic advisory shown to organizations
	// with no connected integrations.
	TypeIntegrationSetup Type = "integration_setup"
	// TypeMonitoringActive is a synthetic informational record shown when
	// monitoring runs but finds nothing stuck.
	TypeMonitoringActive Type = "monitoring_active"
)

// Severity grades how urgent a bottleneck is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering position of the severity, lowest first.
// Unknown severities rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityLow:
		return 2
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	}
	return 0
}

// Status is the bottleneck lifecycle state. Bottlenecks are never
// hard-deleted; they move from active to resolved.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// EntityKind names the kind of entity a bottleneck is linked to.
type EntityKind string

const (
	EntityPullRequest  EntityKind = "pull_request"
	EntityTask         EntityKind = "task"
	EntityOrganization EntityKind = "organization"
)

// Key is the idempotence key for detection: the bottleneck type plus
// the entity it is linked to. At most one active bottleneck exists per
// key at any time, enforced by the store's upsert. The type belongs to
// the key because detectors are independent: one task can be stale and
// a dependency blocker at once, and each finding must live and resolve
// on its own.
type Key struct {
	Type       Type       `json:"type"`
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
}

// Bottleneck is a persisted record of one detected unit of stuck work.
type Bottleneck struct {
	flowtide.Entity

	ID          id.BottleneckID `json:"id"`
	Key         Key             `json:"key"`
	OrgID       string          `json:"org_id"`
	ProjectID   string          `json:"project_id,omitempty"`
	Severity    Severity        `json:"severity"`
	Status      Status          `json:"status"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Impact      string          `json:"impact,omitempty"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// Active reports whether the bottleneck is still unresolved.
func (b *Bottleneck) Active() bool { return b.Status == StatusActive }
