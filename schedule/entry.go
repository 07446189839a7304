package schedule

import (
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
)

// Entry represents a recurring job template. Key is the dedupe handle:
// at most one entry exists per key, and re-registering a key upserts.
type Entry struct {
	flowtide.Entity

	ID          id.ScheduleID `json:"id"`
	Key         string        `json:"key"`
	Schedule    string        `json:"schedule"`
	Kind        job.Kind      `json:"kind"`
	Queue       string        `json:"queue,omitempty"`
	Payload     []byte        `json:"payload,omitempty"`
	OrgID       string        `json:"org_id,omitempty"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	NextRunAt   *time.Time    `json:"next_run_at,omitempty"`
	LockedBy    string        `json:"locked_by,omitempty"`
	LockedUntil *time.Time    `json:"locked_until,omitempty"`
	Enabled     bool          `json:"enabled"`
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}
