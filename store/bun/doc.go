// Package bunstore implements the relational store on PostgreSQL via
// the Bun ORM: bottleneck records, task and pull-request snapshots,
// the tenant directory, and daily progress snapshots.
//
// Schema lives in embedded SQL migrations applied by Migrate. The
// bottleneck upsert relies on a partial unique index over
// (org_id, entity_kind, entity_id) WHERE status = 'active', so the
// at-most-one-active-per-key invariant holds even under concurrent
// detection passes.
package bunstore
