package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// queueState tracks runtime state for a single queue.
type queueState struct {
	policy  Policy
	limiter *rate.Limiter
	active  int
}

// Manager enforces per-queue concurrency ceilings and rate limits at
// runtime. It is safe for concurrent use. The ceilings are local to
// one worker process; cross-process capacity is simply the sum
// (per-queue caps are the only fairness mechanism, by contract).
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewManager creates a Manager from the registry's policies.
func NewManager(reg *Registry) *Manager {
	m := &Manager{queues: make(map[string]*queueState, len(reg.policies))}
	for name, policy := range reg.policies {
		m.queues[name] = newQueueState(policy)
	}
	return m
}

func newQueueState(p Policy) *queueState {
	qs := &queueState{policy: p}
	if p.RateLimit > 0 {
		burst := p.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(p.RateLimit), burst)
	}
	return qs
}

// Acquire checks the rate limit and concurrency ceiling for the queue.
// If the job may proceed it increments the active counter and returns
// true. The caller MUST call Release when the job completes.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs == nil {
		return true
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if qs.policy.Concurrency > 0 && qs.active >= qs.policy.Concurrency {
		return false
	}

	qs.active++
	return true
}

// Release decrements the active job count for the queue.
func (m *Manager) Release(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// ActiveCount returns the current number of active jobs for a queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
