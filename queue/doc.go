// Package queue defines the named durable queues, their retry and
// retention policies, and the runtime manager enforcing per-queue
// concurrency ceilings and rate limits.
//
// The queue set is closed: sync, analysis, agents, progress, and
// heartbeat. Each has a default policy (5 attempts, exponential backoff
// base 1s, retention 100/24h completed and 50/7d failed) and a distinct
// concurrency ceiling — sync highest, agents lowest, reflecting how
// sensitive each queue's work is to external rate limits.
package queue
