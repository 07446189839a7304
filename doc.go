// Package flowtide is the background orchestration daemon for the
// Flowtide engineering-management platform. It owns the durable job
// queues, the recurring-job scheduler, the bounded worker pools, the
// per-dependency circuit breakers, and the bottleneck-detection engine
// that turns raw task and pull-request state into actionable stuck-work
// records.
//
// The daemon is built from explicitly constructed services — no package
// singletons. A Service owns its queue registry, worker pools, breaker
// registry, scheduler, and health server, and shuts them down in a
// fixed order: health server first (so orchestrators stop routing
// probes), workers second (in-flight jobs get their grace period),
// store connections last.
//
// # Architecture
//
// Each subsystem defines its own store interface (job.Store,
// schedule.Store, bottleneck.Store, ...). The queue store (Redis) backs
// jobs and repeating-job entries; the relational store (Postgres via
// bun) backs organizations, integrations, task/PR snapshots, and
// bottleneck records. The memory store implements everything for tests.
//
// Delivery is at-least-once. Every write the detectors make is an
// upsert keyed by the linked entity, so replays and concurrent passes
// collapse to the same row.
package flowtide
