package handler

import (
	"context"
	"time"

	"github.com/flowtidehq/flowtide/directory"
)

// SyncResult summarizes one integration sync run.
type SyncResult struct {
	// ItemsSynced is the number of tasks or pull requests written to
	// the snapshot tables.
	ItemsSynced int
	// Skipped counts items the client saw but could not map.
	Skipped int
}

// SyncClient pulls data from one external integration (issue tracker
// or code host) into the local snapshot tables.
type SyncClient interface {
	Sync(ctx context.Context, orgID, integrationID, provider string) (SyncResult, error)
}

// Predictor runs the delivery-prediction pass for an organization.
type Predictor interface {
	RunPredictions(ctx context.Context, orgID string) error
}

// AgentRunner evaluates and executes agent work.
type AgentRunner interface {
	// RunPending evaluates all pending agent runs for the organization.
	RunPending(ctx context.Context, orgID string) error
	// ExecuteApproved executes one human-approved agent action.
	ExecuteApproved(ctx context.Context, orgID, approvalID string) error
}

// BriefingGenerator produces the daily briefing text for an
// organization. Implementations typically call a model backend.
type BriefingGenerator interface {
	GenerateBriefing(ctx context.Context, orgID string) (string, error)
}

// Notifier delivers a message to the organization's configured chat
// destination.
type Notifier interface {
	Send(ctx context.Context, orgID, message string) error
}

// MilestoneChecker scans the organization's milestones for date drift
// and returns one warning message per drifting milestone.
type MilestoneChecker interface {
	CheckMilestones(ctx context.Context, orgID string) ([]string, error)
}

// QuietHours decides whether non-forced notifications are suppressed
// for an organization at a given instant.
type QuietHours interface {
	Quiet(org *directory.Organization, at time.Time) bool
}

// HourWindow is the standard QuietHours implementation: an hour-granular
// local window derived from the organization's coarse UTC offset. No
// DST handling; equal start and end hours disable the window.
type HourWindow struct{}

// Quiet reports whether at falls inside the organization's quiet window.
func (HourWindow) Quiet(org *directory.Organization, at time.Time) bool {
	start, end := org.QuietStartHour, org.QuietEndHour
	if start == end {
		return false
	}

	local := ((at.UTC().Hour()+org.UTCOffsetHours)%24 + 24) % 24
	if start < end {
		return local >= start && local < end
	}
	// Window wraps midnight, e.g. 22 to 7.
	return local >= start || local < end
}
