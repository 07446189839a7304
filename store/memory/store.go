// Package memory provides a fully in-memory store backend.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/schedule"
)

// Ensure Store satisfies every subsystem contract at compile time.
var (
	_ job.Store            = (*Store)(nil)
	_ schedule.Store       = (*Store)(nil)
	_ bottleneck.Store     = (*Store)(nil)
	_ bottleneck.Snapshots = (*Store)(nil)
	_ directory.Store      = (*Store)(nil)
)

// Store is an in-memory implementation of both the queue store and the
// database composites.
type Store struct {
	mu sync.RWMutex

	jobs         map[string]*job.Job              // by job ID
	entries      map[string]*schedule.Entry       // by entry key
	bottlenecks  map[string]*bottleneck.Bottleneck // by bottleneck ID
	orgs         map[string]*directory.Organization
	integrations map[string]*directory.Integration // by integration ID
	tasks        map[string]*bottleneck.Task       // by org/task ID
	prs          map[string]*bottleneck.PullRequest
	snapshots    map[string]*directory.ProgressSnapshot // by org/date
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:         make(map[string]*job.Job),
		entries:      make(map[string]*schedule.Entry),
		bottlenecks:  make(map[string]*bottleneck.Bottleneck),
		orgs:         make(map[string]*directory.Organization),
		integrations: make(map[string]*directory.Integration),
		tasks:        make(map[string]*bottleneck.Task),
		prs:          make(map[string]*bottleneck.PullRequest),
		snapshots:    make(map[string]*directory.ProgressSnapshot),
	}
}

func scopedKey(orgID, entityID string) string { return orgID + "/" + entityID }

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in pending state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return flowtide.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// DequeueJobs atomically claims up to limit due jobs from the given
// queues, sets them to running, and returns them.
func (m *Store) DequeueJobs(_ context.Context, queues []string, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StatePending && j.State != job.StateRetrying {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}

	// FIFO-ish: oldest RunAt first.
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].RunAt.Before(candidates[k].RunAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		j.State = job.StateRunning
		n := now
		j.StartedAt = &n
		j.HeartbeatAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *j
		result[i] = &cp
	}

	return result, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, flowtide.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, ok := m.jobs[key]; !ok {
		return flowtide.ErrJobNotFound
	}
	cp := *j
	cp.UpdatedAt = time.Now().UTC()
	m.jobs[key] = &cp
	return nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return flowtide.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, _ id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return flowtide.ErrJobNotFound
	}
	now := time.Now().UTC()
	j.HeartbeatAt = &now
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older than
// the given threshold.
func (m *Store) ReapStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.jobs {
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			cp := *j
			stale = append(stale, &cp)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeJobs enforces the retention policy for terminal jobs in one
// queue and state: the newest keep jobs survive, everything older than
// maxAge goes regardless.
func (m *Store) PurgeJobs(_ context.Context, queue string, state job.State, keep int, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matching := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Queue == queue && j.State == state {
			matching = append(matching, j)
		}
	}

	// Newest first, by terminal timestamp.
	sort.Slice(matching, func(i, k int) bool {
		return terminalTime(matching[i]).After(terminalTime(matching[k]))
	})

	cutoff := time.Now().UTC().Add(-maxAge)
	var deleted int64
	for i, j := range matching {
		beyondKeep := keep > 0 && i >= keep
		expired := maxAge > 0 && terminalTime(j).Before(cutoff)
		if beyondKeep || expired {
			delete(m.jobs, j.ID.String())
			deleted++
		}
	}
	return deleted, nil
}

func terminalTime(j *job.Job) time.Time {
	if j.CompletedAt != nil {
		return *j.CompletedAt
	}
	return j.UpdatedAt
}

// ──────────────────────────────────────────────────
// Schedule Store
// ──────────────────────────────────────────────────

// UpsertEntry creates the entry or updates the existing entry with the
// same key, preserving runtime state (LastRunAt, lock fields) and
// keeping NextRunAt unless the schedule expression changed.
func (m *Store) UpsertEntry(_ context.Context, entry *schedule.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := m.entries[entry.Key]
	if !ok {
		cp := *entry
		cp.Touch(now)
		m.entries[entry.Key] = &cp
		return nil
	}

	if existing.Schedule != entry.Schedule {
		existing.NextRunAt = entry.NextRunAt
	}
	existing.Schedule = entry.Schedule
	existing.Kind = entry.Kind
	existing.Queue = entry.Queue
	existing.Payload = entry.Payload
	existing.OrgID = entry.OrgID
	existing.Enabled = entry.Enabled
	existing.Touch(now)
	return nil
}

// GetEntry retrieves an entry by key.
func (m *Store) GetEntry(_ context.Context, key string) (*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, flowtide.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// ListEntries returns all entries.
func (m *Store) ListEntries(_ context.Context) ([]*schedule.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*schedule.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		cp := *e
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].Key < result[k].Key })
	return result, nil
}

// AcquireEntryLock attempts to acquire the firing lock for an entry.
func (m *Store) AcquireEntryLock(_ context.Context, key string, workerID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return false, flowtide.ErrEntryNotFound
	}

	now := time.Now().UTC()
	if e.LockedUntil != nil && e.LockedUntil.After(now) && e.LockedBy != workerID {
		return false, nil
	}
	until := now.Add(ttl)
	e.LockedBy = workerID
	e.LockedUntil = &until
	return true, nil
}

// ReleaseEntryLock releases the firing lock if held by workerID.
func (m *Store) ReleaseEntryLock(_ context.Context, key string, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return flowtide.ErrEntryNotFound
	}
	if e.LockedBy == workerID {
		e.LockedBy = ""
		e.LockedUntil = nil
	}
	return nil
}

// UpdateEntryAfterFire records a fire and advances NextRunAt.
func (m *Store) UpdateEntryAfterFire(_ context.Context, key string, lastRun, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return flowtide.ErrEntryNotFound
	}
	lr, nr := lastRun, nextRun
	e.LastRunAt = &lr
	e.NextRunAt = &nr
	e.Touch(time.Now().UTC())
	return nil
}

// DeleteEntry removes an entry by key.
func (m *Store) DeleteEntry(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return flowtide.ErrEntryNotFound
	}
	delete(m.entries, key)
	return nil
}

// ──────────────────────────────────────────────────
// Bottleneck Store
// ──────────────────────────────────────────────────

// UpsertBottleneck creates or updates the active bottleneck for b.Key.
func (m *Store) UpsertBottleneck(_ context.Context, b *bottleneck.Bottleneck) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range m.bottlenecks {
		if existing.OrgID != b.OrgID || existing.Key != b.Key || existing.Status != bottleneck.StatusActive {
			continue
		}
		// Update in place; identical data is a no-op.
		if existing.Severity != b.Severity ||
			existing.Title != b.Title || existing.Description != b.Description ||
			existing.Impact != b.Impact {
			existing.Severity = b.Severity
			existing.Title = b.Title
			existing.Description = b.Description
			existing.Impact = b.Impact
			existing.Touch(now)
		}
		b.ID = existing.ID
		return false, nil
	}

	cp := *b
	cp.Status = bottleneck.StatusActive
	cp.Touch(now)
	m.bottlenecks[cp.ID.String()] = &cp
	return true, nil
}

// ListActiveBottlenecks returns active bottlenecks for the organization,
// optionally filtered by type.
func (m *Store) ListActiveBottlenecks(_ context.Context, orgID string, typ bottleneck.Type) ([]*bottleneck.Bottleneck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*bottleneck.Bottleneck
	for _, b := range m.bottlenecks {
		if b.OrgID != orgID || b.Status != bottleneck.StatusActive {
			continue
		}
		if typ != "" && b.Key.Type != typ {
			continue
		}
		cp := *b
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].Key.EntityID < result[k].Key.EntityID
	})
	return result, nil
}

// ResolveBottlenecks transitions the active bottlenecks with the given
// keys to resolved.
func (m *Store) ResolveBottlenecks(_ context.Context, orgID string, keys []bottleneck.Key, at time.Time) ([]*bottleneck.Bottleneck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keySet := make(map[bottleneck.Key]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}

	var resolved []*bottleneck.Bottleneck
	for _, b := range m.bottlenecks {
		if b.OrgID != orgID || b.Status != bottleneck.StatusActive {
			continue
		}
		if _, ok := keySet[b.Key]; !ok {
			continue
		}
		b.Status = bottleneck.StatusResolved
		resolvedAt := at
		b.ResolvedAt = &resolvedAt
		b.Touch(time.Now().UTC())
		cp := *b
		resolved = append(resolved, &cp)
	}
	return resolved, nil
}

// CountActiveBottlenecks returns the number of active bottlenecks for
// the organization.
func (m *Store) CountActiveBottlenecks(_ context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, b := range m.bottlenecks {
		if b.OrgID == orgID && b.Status == bottleneck.StatusActive {
			count++
		}
	}
	return count, nil
}

// ListBottlenecks returns every bottleneck for the organization
// regardless of status. Test helper; not part of any store contract.
func (m *Store) ListBottlenecks(orgID string) []*bottleneck.Bottleneck {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*bottleneck.Bottleneck
	for _, b := range m.bottlenecks {
		if b.OrgID == orgID {
			cp := *b
			result = append(result, &cp)
		}
	}
	return result
}

// ──────────────────────────────────────────────────
// Snapshots
// ──────────────────────────────────────────────────

// ListOpenPullRequests returns open review requests for the organization.
func (m *Store) ListOpenPullRequests(_ context.Context, orgID string) ([]*bottleneck.PullRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*bottleneck.PullRequest
	for _, pr := range m.prs {
		if pr.OrgID == orgID && pr.Status == bottleneck.PullRequestOpen {
			cp := *pr
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result, nil
}

// ListActiveTasks returns non-terminal tasks for the organization.
func (m *Store) ListActiveTasks(_ context.Context, orgID string) ([]*bottleneck.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*bottleneck.Task
	for _, t := range m.tasks {
		if t.OrgID == orgID && !t.Status.Terminal() {
			cp := *t
			cp.BlockedByIDs = append([]string(nil), t.BlockedByIDs...)
			cp.BlocksIDs = append([]string(nil), t.BlocksIDs...)
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result, nil
}

// MarkPullRequestsStuck flags or unflags the given pull requests.
func (m *Store) MarkPullRequestsStuck(_ context.Context, orgID string, ids []string, stuck bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, prID := range ids {
		if pr, ok := m.prs[scopedKey(orgID, prID)]; ok {
			pr.Stuck = stuck
		}
	}
	return nil
}

// MarkTasksStuck flags or unflags the given tasks.
func (m *Store) MarkTasksStuck(_ context.Context, orgID string, ids []string, stuck bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, taskID := range ids {
		if t, ok := m.tasks[scopedKey(orgID, taskID)]; ok {
			t.Stuck = stuck
		}
	}
	return nil
}

// CountConnectedIntegrations returns how many integrations the
// organization has in connected state.
func (m *Store) CountConnectedIntegrations(_ context.Context, orgID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, integ := range m.integrations {
		if integ.OrgID == orgID && integ.Connected() {
			count++
		}
	}
	return count, nil
}

// CountTasksByStatus returns per-status task counts for the
// organization, terminal statuses included.
func (m *Store) CountTasksByStatus(_ context.Context, orgID string) (map[bottleneck.TaskStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[bottleneck.TaskStatus]int)
	for _, t := range m.tasks {
		if t.OrgID == orgID {
			counts[t.Status]++
		}
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Directory Store
// ──────────────────────────────────────────────────

// ListOrganizations returns all organizations.
func (m *Store) ListOrganizations(_ context.Context) ([]*directory.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*directory.Organization, 0, len(m.orgs))
	for _, org := range m.orgs {
		cp := *org
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result, nil
}

// GetOrganization retrieves one organization by ID.
func (m *Store) GetOrganization(_ context.Context, orgID string) (*directory.Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	org, ok := m.orgs[orgID]
	if !ok {
		return nil, flowtide.ErrOrgNotFound
	}
	cp := *org
	return &cp, nil
}

// ListIntegrations returns all integrations for an organization.
func (m *Store) ListIntegrations(_ context.Context, orgID string) ([]*directory.Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*directory.Integration
	for _, integ := range m.integrations {
		if integ.OrgID == orgID {
			cp := *integ
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, k int) bool { return result[i].ID < result[k].ID })
	return result, nil
}

// SaveProgressSnapshot upserts the snapshot for (org, date).
func (m *Store) SaveProgressSnapshot(_ context.Context, s *directory.ProgressSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.Touch(time.Now().UTC())
	m.snapshots[scopedKey(s.OrgID, s.Date.UTC().Format("2006-01-02"))] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Test seeding helpers
// ──────────────────────────────────────────────────

// PutOrganization seeds an organization.
func (m *Store) PutOrganization(org *directory.Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *org
	m.orgs[org.ID] = &cp
}

// PutIntegration seeds an integration.
func (m *Store) PutIntegration(integ *directory.Integration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *integ
	m.integrations[integ.ID] = &cp
}

// PutTask seeds a task snapshot.
func (m *Store) PutTask(t *bottleneck.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[scopedKey(t.OrgID, t.ID)] = &cp
}

// PutPullRequest seeds a pull-request snapshot.
func (m *Store) PutPullRequest(pr *bottleneck.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pr
	m.prs[scopedKey(pr.OrgID, pr.ID)] = &cp
}

// GetTask returns a seeded task, for assertions on stuck flags.
func (m *Store) GetTask(orgID, taskID string) (*bottleneck.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[scopedKey(orgID, taskID)]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// GetPullRequest returns a seeded pull request, for assertions on
// stuck flags.
func (m *Store) GetPullRequest(orgID, prID string) (*bottleneck.PullRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr, ok := m.prs[scopedKey(orgID, prID)]
	if !ok {
		return nil, false
	}
	cp := *pr
	return &cp, true
}

// GetProgressSnapshot returns the snapshot stored for (org, date).
func (m *Store) GetProgressSnapshot(orgID string, date time.Time) (*directory.ProgressSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[scopedKey(orgID, date.UTC().Format("2006-01-02"))]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}
