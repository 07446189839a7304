package store

import (
	"context"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/schedule"
)

// QueueStore is the fast-path backend holding jobs and schedule
// entries. Backends: Redis, Memory.
type QueueStore interface {
	job.Store
	schedule.Store

	// Migrate prepares any schema the backend needs.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the connection.
	Close() error
}

// Database is the system of record: bottleneck records, detection
// input snapshots, and the tenant directory. Backends: bun (Postgres),
// Memory.
type Database interface {
	bottleneck.Store
	bottleneck.Snapshots
	directory.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
