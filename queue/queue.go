package queue

import (
	"time"

	"github.com/flowtidehq/flowtide/backoff"
)

// Queue names. The set is closed; every job belongs to exactly one.
const (
	// Sync pulls integration data (issue trackers, code hosts).
	Sync = "sync"
	// Analysis runs bottleneck detection and prediction passes.
	Analysis = "analysis"
	// Agents evaluates and executes agent runs.
	Agents = "agents"
	// Progress persists daily progress snapshots.
	Progress = "progress"
	// Heartbeat delivers briefings and alerts.
	Heartbeat = "heartbeat"
)

// Names returns all queue names in a stable order.
func Names() []string {
	return []string{Sync, Analysis, Agents, Progress, Heartbeat}
}

// Retention bounds how long terminal jobs are kept in the queue store.
// Whichever limit is hit first wins.
type Retention struct {
	// Count is the maximum number of jobs to keep.
	Count int
	// Age is the maximum time a job is kept.
	Age time.Duration
}

// Policy is the per-queue job policy: retry budget, backoff, retention,
// and the local concurrency ceiling.
type Policy struct {
	// MaxAttempts is the total attempt budget for jobs on this queue.
	MaxAttempts int

	// Backoff computes the inter-attempt delay.
	Backoff backoff.Strategy

	// RemoveOnComplete bounds retention of completed jobs.
	RemoveOnComplete Retention

	// RemoveOnFail bounds retention of failed jobs. Failed jobs are
	// kept longer so operators can inspect them.
	RemoveOnFail Retention

	// Concurrency is the maximum number of jobs from this queue
	// executing simultaneously in one worker process.
	Concurrency int

	// RateLimit caps sustained dequeues per second. Zero disables it.
	RateLimit float64

	// RateBurst is the token-bucket burst size when RateLimit is set.
	RateBurst int
}

// DefaultPolicy returns the policy shared by all queues before
// per-queue adjustments.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      5,
		Backoff:          backoff.NewExponential(1*time.Second, 1*time.Minute),
		RemoveOnComplete: Retention{Count: 100, Age: 24 * time.Hour},
		RemoveOnFail:     Retention{Count: 50, Age: 7 * 24 * time.Hour},
		Concurrency:      5,
	}
}

// Registry maps queue names to policies.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry builds the standard queue registry. Concurrency ceilings
// reflect external-rate-limit sensitivity: sync fans out to many
// third-party APIs and gets the most slots; agent runs are expensive
// and get the fewest. overrides adjusts individual ceilings (from
// configuration); unknown names are ignored.
func NewRegistry(overrides map[string]int) *Registry {
	policies := make(map[string]Policy, 5)

	for name, concurrency := range map[string]int{
		Sync:      10,
		Analysis:  5,
		Agents:    2,
		Progress:  3,
		Heartbeat: 5,
	} {
		p := DefaultPolicy()
		p.Concurrency = concurrency
		policies[name] = p
	}

	// Sync competes with interactive traffic for third-party API
	// budgets; cap its sustained dequeue rate.
	syncPolicy := policies[Sync]
	syncPolicy.RateLimit = 20
	syncPolicy.RateBurst = 10
	policies[Sync] = syncPolicy

	for name, c := range overrides {
		if p, ok := policies[name]; ok && c > 0 {
			p.Concurrency = c
			policies[name] = p
		}
	}

	return &Registry{policies: policies}
}

// Policy returns the policy for a queue. Unknown queues get the default.
func (r *Registry) Policy(name string) Policy {
	if p, ok := r.policies[name]; ok {
		return p
	}
	return DefaultPolicy()
}

// Known reports whether the queue name is part of the closed set.
func (r *Registry) Known(name string) bool {
	_, ok := r.policies[name]
	return ok
}
