package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/schedule"
)

// UpsertEntry creates the entry or updates the existing entry with the
// same key in place. Runtime fields (LastRunAt, lock state) are
// preserved on update; NextRunAt is kept unless the schedule
// expression changed.
func (s *Store) UpsertEntry(ctx context.Context, entry *schedule.Entry) error {
	key := entryKey(entry.Key)
	now := time.Now().UTC()

	existing, err := s.getEntryByKey(ctx, key)
	if err != nil && !errors.Is(err, flowtide.ErrEntryNotFound) {
		return err
	}

	var toStore schedule.Entry
	if existing == nil {
		toStore = *entry
		toStore.Touch(now)
	} else {
		toStore = *existing
		if existing.Schedule != entry.Schedule {
			toStore.NextRunAt = entry.NextRunAt
		}
		toStore.Schedule = entry.Schedule
		toStore.Kind = entry.Kind
		toStore.Queue = entry.Queue
		toStore.Payload = entry.Payload
		toStore.OrgID = entry.OrgID
		toStore.Enabled = entry.Enabled
		toStore.UpdatedAt = now
	}

	raw, err := json.Marshal(&toStore)
	if err != nil {
		return fmt.Errorf("flowtide/redis: marshal entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.SAdd(ctx, entryKeysKey, entry.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowtide/redis: upsert entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by key.
func (s *Store) GetEntry(ctx context.Context, key string) (*schedule.Entry, error) {
	return s.getEntryByKey(ctx, entryKey(key))
}

// ListEntries returns all entries sorted by key.
func (s *Store) ListEntries(ctx context.Context) ([]*schedule.Entry, error) {
	keys, err := s.client.SMembers(ctx, entryKeysKey).Result()
	if err != nil {
		return nil, fmt.Errorf("flowtide/redis: list entries smembers: %w", err)
	}
	sort.Strings(keys)

	entries := make([]*schedule.Entry, 0, len(keys))
	for _, k := range keys {
		e, getErr := s.getEntryByKey(ctx, entryKey(k))
		if getErr != nil {
			continue // deleted between SMembers and Get
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// AcquireEntryLock attempts to acquire the firing lock for an entry
// with SET NX and a TTL. The current holder may re-acquire, which
// refreshes the TTL.
func (s *Store) AcquireEntryLock(ctx context.Context, key string, workerID string, ttl time.Duration) (bool, error) {
	lk := entryLockKey(key)

	ok, err := s.client.SetNX(ctx, lk, workerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("flowtide/redis: acquire entry lock: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := s.client.Get(ctx, lk).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Lock expired between SetNX and Get; next tick retries.
			return false, nil
		}
		return false, fmt.Errorf("flowtide/redis: acquire entry lock holder: %w", err)
	}
	if holder != workerID {
		return false, nil
	}

	if err := s.client.Set(ctx, lk, workerID, ttl).Err(); err != nil {
		return false, fmt.Errorf("flowtide/redis: refresh entry lock: %w", err)
	}
	return true, nil
}

// ReleaseEntryLock releases the firing lock. Only the holder may
// release; a foreign release is a no-op.
func (s *Store) ReleaseEntryLock(ctx context.Context, key string, workerID string) error {
	lk := entryLockKey(key)

	holder, err := s.client.Get(ctx, lk).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		return fmt.Errorf("flowtide/redis: release entry lock get: %w", err)
	}
	if holder != workerID {
		return nil
	}
	if err := s.client.Del(ctx, lk).Err(); err != nil {
		return fmt.Errorf("flowtide/redis: release entry lock del: %w", err)
	}
	return nil
}

// UpdateEntryAfterFire records a fire: sets LastRunAt and advances
// NextRunAt.
func (s *Store) UpdateEntryAfterFire(ctx context.Context, key string, lastRun, nextRun time.Time) error {
	e, err := s.getEntryByKey(ctx, entryKey(key))
	if err != nil {
		return err
	}

	e.LastRunAt = &lastRun
	e.NextRunAt = &nextRun
	e.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("flowtide/redis: marshal entry: %w", err)
	}
	if err := s.client.Set(ctx, entryKey(key), raw, 0).Err(); err != nil {
		return fmt.Errorf("flowtide/redis: update entry after fire: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry and its lock by key.
func (s *Store) DeleteEntry(ctx context.Context, key string) error {
	exists, err := s.client.Exists(ctx, entryKey(key)).Result()
	if err != nil {
		return fmt.Errorf("flowtide/redis: delete entry exists: %w", err)
	}
	if exists == 0 {
		return flowtide.ErrEntryNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(key))
	pipe.Del(ctx, entryLockKey(key))
	pipe.SRem(ctx, entryKeysKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("flowtide/redis: delete entry: %w", err)
	}
	return nil
}

func (s *Store) getEntryByKey(ctx context.Context, redisKey string) (*schedule.Entry, error) {
	raw, err := s.client.Get(ctx, redisKey).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, flowtide.ErrEntryNotFound
		}
		return nil, fmt.Errorf("flowtide/redis: get entry: %w", err)
	}

	var e schedule.Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("flowtide/redis: unmarshal entry: %w", err)
	}
	return &e, nil
}
