package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/id"
)

// ── Bottleneck model ──────────────────────────────────────────────

type bottleneckModel struct {
	bun.BaseModel `bun:"table:flowtide_bottlenecks"`

	ID          string     `bun:"id,pk"`
	OrgID       string     `bun:"org_id,notnull"`
	ProjectID   string     `bun:"project_id"`
	EntityKind  string     `bun:"entity_kind,notnull"`
	EntityID    string     `bun:"entity_id,notnull"`
	Type        string     `bun:"type,notnull"`
	Severity    string     `bun:"severity,notnull"`
	Status      string     `bun:"status,notnull,default:'active'"`
	Title       string     `bun:"title,notnull"`
	Description string     `bun:"description"`
	Impact      string     `bun:"impact"`
	ResolvedAt  *time.Time `bun:"resolved_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

func toBottleneckModel(b *bottleneck.Bottleneck) *bottleneckModel {
	return &bottleneckModel{
		ID:          b.ID.String(),
		OrgID:       b.OrgID,
		ProjectID:   b.ProjectID,
		EntityKind:  string(b.Key.EntityKind),
		EntityID:    b.Key.EntityID,
		Type:        string(b.Key.Type),
		Severity:    string(b.Severity),
		Status:      string(b.Status),
		Title:       b.Title,
		Description: b.Description,
		Impact:      b.Impact,
		ResolvedAt:  b.ResolvedAt,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func fromBottleneckModel(m *bottleneckModel) (*bottleneck.Bottleneck, error) {
	parsedID, err := id.ParseBottleneckID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("flowtide/bun: parse bottleneck id %q: %w", m.ID, err)
	}

	return &bottleneck.Bottleneck{
		Entity: flowtide.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID: parsedID,
		Key: bottleneck.Key{
			Type:       bottleneck.Type(m.Type),
			EntityKind: bottleneck.EntityKind(m.EntityKind),
			EntityID:   m.EntityID,
		},
		OrgID:       m.OrgID,
		ProjectID:   m.ProjectID,
		Severity:    bottleneck.Severity(m.Severity),
		Status:      bottleneck.Status(m.Status),
		Title:       m.Title,
		Description: m.Description,
		Impact:      m.Impact,
		ResolvedAt:  m.ResolvedAt,
	}, nil
}

// ── Task snapshot model ───────────────────────────────────────────

type taskModel struct {
	bun.BaseModel `bun:"table:flowtide_tasks"`

	OrgID        string    `bun:"org_id,pk"`
	ID           string    `bun:"id,pk"`
	ProjectID    string    `bun:"project_id"`
	Title        string    `bun:"title"`
	Status       string    `bun:"status,notnull"`
	TaskUpdated  time.Time `bun:"task_updated_at,notnull"`
	BlockedByIDs []string  `bun:"blocked_by_ids,array"`
	BlocksIDs    []string  `bun:"blocks_ids,array"`
	Stuck        bool      `bun:"stuck,notnull,default:false"`
}

func fromTaskModel(m *taskModel) *bottleneck.Task {
	return &bottleneck.Task{
		ID:           m.ID,
		OrgID:        m.OrgID,
		ProjectID:    m.ProjectID,
		Title:        m.Title,
		Status:       bottleneck.TaskStatus(m.Status),
		UpdatedAt:    m.TaskUpdated,
		BlockedByIDs: m.BlockedByIDs,
		BlocksIDs:    m.BlocksIDs,
		Stuck:        m.Stuck,
	}
}

// ── Pull request snapshot model ───────────────────────────────────

type pullRequestModel struct {
	bun.BaseModel `bun:"table:flowtide_pull_requests"`

	OrgID              string    `bun:"org_id,pk"`
	ID                 string    `bun:"id,pk"`
	ProjectID          string    `bun:"project_id"`
	Title              string    `bun:"title"`
	Status             string    `bun:"status,notnull"`
	LastActivityAt     time.Time `bun:"last_activity_at,notnull"`
	UnresolvedComments int       `bun:"unresolved_comments,notnull,default:0"`
	CIStatus           string    `bun:"ci_status"`
	Stuck              bool      `bun:"stuck,notnull,default:false"`
}

func fromPullRequestModel(m *pullRequestModel) *bottleneck.PullRequest {
	return &bottleneck.PullRequest{
		ID:                 m.ID,
		OrgID:              m.OrgID,
		ProjectID:          m.ProjectID,
		Title:              m.Title,
		Status:             bottleneck.PullRequestStatus(m.Status),
		LastActivityAt:     m.LastActivityAt,
		UnresolvedComments: m.UnresolvedComments,
		CIStatus:           bottleneck.CIStatus(m.CIStatus),
		Stuck:              m.Stuck,
	}
}

// ── Organization model ────────────────────────────────────────────

type organizationModel struct {
	bun.BaseModel `bun:"table:flowtide_organizations"`

	ID               string    `bun:"id,pk"`
	Name             string    `bun:"name,notnull"`
	BriefingHour     int       `bun:"briefing_hour,notnull,default:9"`
	BriefingWeekdays []int     `bun:"briefing_weekdays,array"`
	UTCOffsetHours   int       `bun:"utc_offset_hours,notnull,default:0"`
	QuietStartHour   int       `bun:"quiet_start_hour,notnull,default:0"`
	QuietEndHour     int       `bun:"quiet_end_hour,notnull,default:0"`
	CreatedAt        time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func fromOrganizationModel(m *organizationModel) *directory.Organization {
	var weekdays []time.Weekday
	for _, d := range m.BriefingWeekdays {
		weekdays = append(weekdays, time.Weekday(d))
	}

	return &directory.Organization{
		Entity: flowtide.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:               m.ID,
		Name:             m.Name,
		BriefingHour:     m.BriefingHour,
		BriefingWeekdays: weekdays,
		UTCOffsetHours:   m.UTCOffsetHours,
		QuietStartHour:   m.QuietStartHour,
		QuietEndHour:     m.QuietEndHour,
	}
}

// ── Integration model ─────────────────────────────────────────────

type integrationModel struct {
	bun.BaseModel `bun:"table:flowtide_integrations"`

	ID        string    `bun:"id,pk"`
	OrgID     string    `bun:"org_id,notnull"`
	Kind      string    `bun:"kind,notnull"`
	Provider  string    `bun:"provider,notnull"`
	Status    string    `bun:"status,notnull,default:'disconnected'"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func fromIntegrationModel(m *integrationModel) *directory.Integration {
	return &directory.Integration{
		Entity: flowtide.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       m.ID,
		OrgID:    m.OrgID,
		Kind:     directory.IntegrationKind(m.Kind),
		Provider: m.Provider,
		Status:   directory.IntegrationStatus(m.Status),
	}
}

// ── Progress snapshot model ───────────────────────────────────────

type progressSnapshotModel struct {
	bun.BaseModel `bun:"table:flowtide_progress_snapshots"`

	OrgID             string    `bun:"org_id,pk"`
	Date              time.Time `bun:"date,pk"`
	TasksTotal        int       `bun:"tasks_total,notnull,default:0"`
	TasksDone         int       `bun:"tasks_done,notnull,default:0"`
	TasksInProgress   int       `bun:"tasks_in_progress,notnull,default:0"`
	TasksBlocked      int       `bun:"tasks_blocked,notnull,default:0"`
	ActiveBottlenecks int       `bun:"active_bottlenecks,notnull,default:0"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

func toProgressSnapshotModel(p *directory.ProgressSnapshot) *progressSnapshotModel {
	return &progressSnapshotModel{
		OrgID:             p.OrgID,
		Date:              p.Date.UTC().Truncate(24 * time.Hour),
		TasksTotal:        p.TasksTotal,
		TasksDone:         p.TasksDone,
		TasksInProgress:   p.TasksInProgress,
		TasksBlocked:      p.TasksBlocked,
		ActiveBottlenecks: p.ActiveBottlenecks,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
