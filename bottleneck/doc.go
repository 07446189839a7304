// Package bottleneck implements the detection engine that turns raw
// task and pull-request snapshots into actionable stuck-work records.
//
// A detection pass runs three independent detectors per organization:
//
//   - stuck review: open pull requests with no recent activity, too
//     many unresolved comments, or failing CI
//   - stale task: in-progress tasks whose last update exceeds the
//     configured threshold
//   - dependency block: tasks whose completion blocks too many other
//     open tasks, computed from an in-memory dependency graph rebuilt
//     on every pass
//
// Each detector upserts [Bottleneck] records keyed by the linked
// entity ([Key]), so re-running a pass against unchanged input is a
// no-op. A resolution sweep at the end of each detector transitions
// records whose entity no longer matches back to resolved, exactly
// once. Severity is recomputed from the measured factors on every
// pass, never accumulated.
//
// Detectors are isolated: a failure in one never prevents the others
// (or their resolution sweeps) from running. [Engine.RunDetection]
// collects per-detector errors with errors.Join.
package bottleneck
