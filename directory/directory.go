package directory

import (
	"context"
	"time"

	"github.com/flowtidehq/flowtide"
)

// IntegrationKind is the category of an external integration.
type IntegrationKind string

const (
	// KindTracker is an issue tracker (tasks, milestones).
	KindTracker IntegrationKind = "tracker"
	// KindCodeHost is a code host (pull requests, CI status).
	KindCodeHost IntegrationKind = "code_host"
	// KindChat is a chat workspace (briefings, alerts).
	KindChat IntegrationKind = "chat"
)

// IntegrationStatus is the connection state of an integration.
type IntegrationStatus string

const (
	StatusConnected    IntegrationStatus = "connected"
	StatusDisconnected IntegrationStatus = "disconnected"
	StatusError        IntegrationStatus = "error"
)

// Organization is one tenant of the orchestrator.
type Organization struct {
	flowtide.Entity

	ID   string `json:"id"`
	Name string `json:"name"`

	// BriefingHour is the local hour (0-23) at which the daily briefing
	// is delivered.
	BriefingHour int `json:"briefing_hour"`
	// BriefingWeekdays are the days the briefing goes out. Empty means
	// Monday through Friday.
	BriefingWeekdays []time.Weekday `json:"briefing_weekdays,omitempty"`
	// UTCOffsetHours is the organization's coarse offset from UTC.
	// Deliberately not a full timezone: briefing and quiet-hour math is
	// hour-granular and ignores DST.
	UTCOffsetHours int `json:"utc_offset_hours"`

	// QuietStartHour and QuietEndHour bound the local window in which
	// non-forced notifications are suppressed. Equal values disable
	// quiet hours.
	QuietStartHour int `json:"quiet_start_hour"`
	QuietEndHour   int `json:"quiet_end_hour"`
}

// Integration is one connected external service for an organization.
type Integration struct {
	flowtide.Entity

	ID       string            `json:"id"`
	OrgID    string            `json:"org_id"`
	Kind     IntegrationKind   `json:"kind"`
	Provider string            `json:"provider"`
	Status   IntegrationStatus `json:"status"`
}

// Connected reports whether the integration is usable.
func (i *Integration) Connected() bool { return i.Status == StatusConnected }

// ProgressSnapshot is the once-daily record of an organization's task
// state, used for trend reporting.
type ProgressSnapshot struct {
	flowtide.Entity

	OrgID             string    `json:"org_id"`
	Date              time.Time `json:"date"`
	TasksTotal        int       `json:"tasks_total"`
	TasksDone         int       `json:"tasks_done"`
	TasksInProgress   int       `json:"tasks_in_progress"`
	TasksBlocked      int       `json:"tasks_blocked"`
	ActiveBottlenecks int       `json:"active_bottlenecks"`
}

// Store defines the persistence contract for directory data.
type Store interface {
	// ListOrganizations returns all organizations.
	ListOrganizations(ctx context.Context) ([]*Organization, error)

	// GetOrganization retrieves one organization by ID.
	GetOrganization(ctx context.Context, orgID string) (*Organization, error)

	// ListIntegrations returns all integrations for an organization,
	// regardless of status.
	ListIntegrations(ctx context.Context, orgID string) ([]*Integration, error)

	// SaveProgressSnapshot upserts the snapshot for (org, date).
	SaveProgressSnapshot(ctx context.Context, s *ProgressSnapshot) error
}
