package schedule

import (
	"context"
	"time"
)

// Store defines the persistence contract for schedule entries. Entries
// live in the queue store alongside jobs.
type Store interface {
	// UpsertEntry creates the entry, or updates the existing entry with
	// the same Key in place (schedule, kind, queue, payload, enabled).
	// Runtime fields (LastRunAt, lock state) are preserved on update, and
	// NextRunAt is kept unless the schedule expression changed.
	UpsertEntry(ctx context.Context, entry *Entry) error

	// GetEntry retrieves an entry by key.
	GetEntry(ctx context.Context, key string) (*Entry, error)

	// ListEntries returns all entries.
	ListEntries(ctx context.Context) ([]*Entry, error)

	// AcquireEntryLock attempts to acquire the firing lock for an entry.
	// Returns true if the lock was acquired. The lock expires after ttl.
	AcquireEntryLock(ctx context.Context, key string, workerID string, ttl time.Duration) (bool, error)

	// ReleaseEntryLock releases the firing lock for an entry. Only the
	// holder may release it.
	ReleaseEntryLock(ctx context.Context, key string, workerID string) error

	// UpdateEntryAfterFire records a fire: sets LastRunAt and advances
	// NextRunAt.
	UpdateEntryAfterFire(ctx context.Context, key string, lastRun, nextRun time.Time) error

	// DeleteEntry removes an entry by key.
	DeleteEntry(ctx context.Context, key string) error
}
