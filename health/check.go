package health

import (
	"context"
	"time"
)

// Status classifies the process as a whole.
type Status string

const (
	// StatusHealthy means every backend check passed.
	StatusHealthy Status = "healthy"
	// StatusDegraded means at least one backend check failed but the
	// process can still do useful work.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy means every backend check failed.
	StatusUnhealthy Status = "unhealthy"
)

// Pinger is the connectivity probe both store backends expose.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckResult is the outcome of one backend probe.
type CheckResult struct {
	Name      string  `json:"name"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// Report is the full deep-health response body.
type Report struct {
	Status        Status        `json:"status"`
	Timestamp     time.Time     `json:"timestamp"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Checks        []CheckResult `json:"checks"`
}

// Checker runs the backend probes and aggregates them into a Report.
type Checker struct {
	queue    Pinger
	database Pinger
	started  time.Time
	timeout  time.Duration
	now      func() time.Time
}

// NewChecker creates a Checker over the two store backends.
func NewChecker(queue, database Pinger) *Checker {
	return &Checker{
		queue:    queue,
		database: database,
		started:  time.Now(),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
}

func (c *Checker) run(ctx context.Context, name string, p Pinger) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.now()
	err := p.Ping(ctx)
	r := CheckResult{
		Name:      name,
		Healthy:   err == nil,
		LatencyMS: float64(c.now().Sub(start)) / float64(time.Millisecond),
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Check probes both backends and classifies the result. One failing
// backend degrades the process; both failing mark it unhealthy.
func (c *Checker) Check(ctx context.Context) Report {
	checks := []CheckResult{
		c.run(ctx, "queue_store", c.queue),
		c.run(ctx, "database", c.database),
	}

	failed := 0
	for _, r := range checks {
		if !r.Healthy {
			failed++
		}
	}

	status := StatusHealthy
	switch failed {
	case len(checks):
		status = StatusUnhealthy
	case 0:
	default:
		status = StatusDegraded
	}

	return Report{
		Status:        status,
		Timestamp:     c.now().UTC(),
		UptimeSeconds: c.Uptime().Seconds(),
		Checks:        checks,
	}
}

// Uptime returns how long the checker's process has been up.
func (c *Checker) Uptime() time.Duration {
	return c.now().Sub(c.started)
}

// Ready reports whether both backends answer their pings.
func (c *Checker) Ready(ctx context.Context) bool {
	return c.Check(ctx).Status == StatusHealthy
}
