package bottleneck

import "time"

// Thresholds are the tuning knobs for the three detectors. Severity
// tiers are derived from these bases: stale tasks escalate at 2× and
// 3× TaskInProgress, dependency blocks at 2× and 3× BlockedTasks, and
// review staleness beyond 2× ReviewInactivity forces critical.
type Thresholds struct {
	// ReviewInactivity is how long a pull request may sit without
	// activity before it counts as stuck in review.
	ReviewInactivity time.Duration

	// ReviewComments is the unresolved-comment count at which an open
	// pull request counts as stuck regardless of activity.
	ReviewComments int

	// TaskInProgress is how long an in-progress task may go without an
	// update before it counts as stale.
	TaskInProgress time.Duration

	// BlockedTasks is the number of open tasks a single task must block
	// before it counts as a dependency bottleneck.
	BlockedTasks int
}

// DefaultThresholds returns the standard detector tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ReviewInactivity: 48 * time.Hour,
		ReviewComments:   5,
		TaskInProgress:   72 * time.Hour,
		BlockedTasks:     3,
	}
}
