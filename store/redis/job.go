package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
)

// EnqueueJob stores the job as a Hash and adds it to the queue's
// Sorted Set, scored by RunAt so due jobs sort first.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flowtide/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return flowtide.ErrJobAlreadyExists
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: jobScore(j.RunAt), Member: jID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowtide/redis: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs claims up to limit due jobs from the given queues. A job
// is due when its RunAt score is in the past. Claiming removes the ID
// from the queue set with ZRem, so two workers racing on the same job
// see exactly one winner.
func (s *Store) DequeueJobs(ctx context.Context, queues []string, limit int) ([]*job.Job, error) {
	now := time.Now().UTC()
	var jobs []*job.Job

	for _, q := range queues {
		if len(jobs) >= limit {
			break
		}
		qk := queueKey(q)

		ids, err := s.client.ZRangeByScore(ctx, qk, &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatFloat(jobScore(now), 'f', -1, 64),
			Count: int64(limit - len(jobs)),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("flowtide/redis: dequeue range: %w", err)
		}

		for _, jID := range ids {
			removed, remErr := s.client.ZRem(ctx, qk, jID).Result()
			if remErr != nil {
				return nil, fmt.Errorf("flowtide/redis: dequeue claim: %w", remErr)
			}
			if removed == 0 {
				continue // another worker won the race
			}

			ts := now.Format(time.RFC3339Nano)
			if err := s.client.HSet(ctx, jobKey(jID),
				"state", string(job.StateRunning),
				"started_at", ts,
				"heartbeat_at", ts,
				"updated_at", ts,
			).Err(); err != nil {
				return nil, fmt.Errorf("flowtide/redis: dequeue update: %w", err)
			}

			j, getErr := s.getJobByKey(ctx, jobKey(jID))
			if getErr != nil {
				return nil, getErr
			}
			jobs = append(jobs, j)
			if len(jobs) >= limit {
				break
			}
		}
	}
	return jobs, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and keeps the queue
// set in sync: pending and retrying jobs are (re)scored by RunAt,
// every other state leaves the queue.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flowtide/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return flowtide.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	switch j.State {
	case job.StatePending, job.StateRetrying:
		pipe.ZAdd(ctx, queueKey(j.Queue), goredis.Z{Score: jobScore(j.RunAt), Member: jID})
	default:
		pipe.ZRem(ctx, queueKey(j.Queue), jID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowtide/redis: update job: %w", err)
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	jID := jobID.String()
	key := jobKey(jID)

	q, err := s.client.HGet(ctx, key, "queue").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return flowtide.ErrJobNotFound
		}
		return fmt.Errorf("flowtide/redis: delete job get queue: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, jobIDsKey, jID)
	pipe.ZRem(ctx, queueKey(q), jID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowtide/redis: delete job: %w", err)
	}
	return nil
}

// ListJobsByState returns jobs matching the given state, oldest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flowtide/redis: list jobs smembers: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // deleted between SMembers and HGetAll
		}
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})

	if opts.Offset >= len(jobs) {
		return nil, nil
	}
	if opts.Offset > 0 {
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// HeartbeatJob updates the heartbeat timestamp for a running job.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	key := jobKey(jobID.String())
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("flowtide/redis: heartbeat exists: %w", err)
	}
	if exists == 0 {
		return flowtide.ErrJobNotFound
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.client.HSet(ctx, key,
		"heartbeat_at", now,
		"worker_id", workerID.String(),
		"updated_at", now,
	).Err(); err != nil {
		return fmt.Errorf("flowtide/redis: heartbeat job: %w", err)
	}
	return nil
}

// ReapStaleJobs returns running jobs whose last heartbeat is older
// than the threshold.
func (s *Store) ReapStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flowtide/redis: reap smembers: %w", err)
	}

	var stale []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != job.StateRunning {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	return stale, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("flowtide/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		count++
	}
	return count, nil
}

// PurgeJobs enforces the retention policy for one queue and terminal
// state: the newest keep jobs survive, anything beyond that or older
// than maxAge is deleted.
func (s *Store) PurgeJobs(ctx context.Context, queue string, state job.State, keep int, maxAge time.Duration) (int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("flowtide/redis: purge smembers: %w", err)
	}

	var matched []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State != state || j.Queue != queue {
			continue
		}
		matched = append(matched, j)
	}

	sort.Slice(matched, func(a, b int) bool {
		return terminalTime(matched[a]).After(terminalTime(matched[b]))
	})

	cutoff := time.Now().UTC().Add(-maxAge)
	var deleted int64
	for i, j := range matched {
		beyondKeep := keep > 0 && i >= keep
		expired := maxAge > 0 && terminalTime(j).Before(cutoff)
		if !beyondKeep && !expired {
			continue
		}
		if err := s.DeleteJob(ctx, j.ID); err != nil {
			if errors.Is(err, flowtide.ErrJobNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// ── helpers ──

// jobScore maps RunAt to a sorted-set score. Lower score = due earlier.
func jobScore(runAt time.Time) float64 {
	return float64(runAt.UTC().UnixMilli())
}

func terminalTime(j *job.Job) time.Time {
	if j.CompletedAt != nil {
		return *j.CompletedAt
	}
	return j.UpdatedAt
}

func jobToMap(j *job.Job) map[string]any {
	m := map[string]any{
		"id":           j.ID.String(),
		"kind":         string(j.Kind),
		"queue":        j.Queue,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"org_id":       j.OrgID,
		"schedule_key": j.ScheduleKey,
		"max_attempts": strconv.Itoa(j.MaxAttempts),
		"attempts":     strconv.Itoa(j.Attempts),
		"last_error":   j.LastError,
		"worker_id":    j.WorkerID.String(),
		"run_at":       j.RunAt.Format(time.RFC3339Nano),
		"timeout":      strconv.FormatInt(int64(j.Timeout), 10),
		"created_at":   j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":   j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.HeartbeatAt != nil {
		m["heartbeat_at"] = j.HeartbeatAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("flowtide/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, flowtide.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("flowtide/redis: parse job id: %w", err)
	}

	maxAttempts, _ := strconv.Atoi(m["max_attempts"])    //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: flowtide.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:          jID,
		Kind:        job.Kind(m["kind"]),
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		State:       job.State(m["state"]),
		OrgID:       m["org_id"],
		ScheduleKey: m["schedule_key"],
		MaxAttempts: maxAttempts,
		Attempts:    attempts,
		LastError:   m["last_error"],
		RunAt:       runAt,
		Timeout:     time.Duration(timeout),
	}

	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["heartbeat_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.HeartbeatAt = &t
	}

	return j, nil
}
