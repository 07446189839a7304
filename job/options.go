package job

import "time"

// Options configures per-job behavior such as attempts, queue, and timeout.
type Options struct {
	// MaxAttempts is the total number of execution attempts before the
	// job is marked failed.
	MaxAttempts int

	// Queue is the queue this job should be enqueued to.
	Queue string

	// Timeout is the maximum duration a job may run before its context
	// is cancelled.
	Timeout time.Duration

	// RunAt schedules the job for future execution. Zero means immediate.
	RunAt time.Time

	// OrgID scopes the job to an organization.
	OrgID string

	// ScheduleKey records which repeating-job entry materialized this
	// job, if any.
	ScheduleKey string
}

// DefaultOptions returns Options matching the standard queue policy.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Queue:       "analysis",
		Timeout:     5 * time.Minute,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxAttempts sets the total attempt budget.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithRunAt schedules the job for execution at a specific time.
func WithRunAt(t time.Time) Option {
	return func(o *Options) {
		o.RunAt = t
	}
}

// WithOrgID scopes the job to an organization.
func WithOrgID(orgID string) Option {
	return func(o *Options) {
		o.OrgID = orgID
	}
}

// WithScheduleKey tags the job with the repeating entry that created it.
func WithScheduleKey(key string) Option {
	return func(o *Options) {
		o.ScheduleKey = key
	}
}
