package job

import (
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting to be picked up by a worker.
	StatePending State = "pending"
	// StateRunning means a worker is currently executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job failed and will not be retried.
	StateFailed State = "failed"
	// StateRetrying means the job failed but is scheduled for another attempt.
	StateRetrying State = "retrying"
)

// Kind identifies what a job does. The set is closed: every kind is
// enumerated here and must have a handler registered at startup.
type Kind string

const (
	// KindSync pulls items from a connected integration (issue tracker
	// or code host) into the local snapshot tables.
	KindSync Kind = "sync"
	// KindBottleneckDetection runs one detection pass for an organization.
	KindBottleneckDetection Kind = "bottleneck_detection"
	// KindPredictions runs the delivery-prediction pass.
	KindPredictions Kind = "predictions"
	// KindRunAgents evaluates pending agent runs for an organization.
	KindRunAgents Kind = "run_agents"
	// KindExecuteApproved executes agent actions a human has approved.
	KindExecuteApproved Kind = "execute_approved"
	// KindDailyBriefing generates and delivers the scheduled briefing.
	KindDailyBriefing Kind = "daily_briefing"
	// KindForceBriefing generates a briefing on demand, ignoring quiet hours.
	KindForceBriefing Kind = "force_briefing"
	// KindBlockerAlert notifies about a newly detected blocking bottleneck.
	KindBlockerAlert Kind = "blocker_alert"
	// KindRiskAlert notifies about a predicted delivery risk.
	KindRiskAlert Kind = "risk_alert"
	// KindMilestoneAlert notifies about an approaching milestone.
	KindMilestoneAlert Kind = "milestone_alert"
	// KindProgressSnapshot persists the daily per-organization progress snapshot.
	KindProgressSnapshot Kind = "progress_snapshot"
	// KindMilestoneCheck scans milestones for date drift once a day.
	KindMilestoneCheck Kind = "milestone_check"
)

// Kinds returns the exhaustive list of job kinds. Registry.Validate
// checks handler coverage against this list at startup.
func Kinds() []Kind {
	return []Kind{
		KindSync,
		KindBottleneckDetection,
		KindPredictions,
		KindRunAgents,
		KindExecuteApproved,
		KindDailyBriefing,
		KindForceBriefing,
		KindBlockerAlert,
		KindRiskAlert,
		KindMilestoneAlert,
		KindProgressSnapshot,
		KindMilestoneCheck,
	}
}

// Valid reports whether k is a known job kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Job represents a unit of work to be processed by a worker.
type Job struct {
	flowtide.Entity

	ID          id.JobID      `json:"id"`
	Kind        Kind          `json:"kind"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	OrgID       string        `json:"org_id,omitempty"`
	ScheduleKey string        `json:"schedule_key,omitempty"`
	MaxAttempts int           `json:"max_attempts"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}
