// Package schedule implements recurring jobs.
//
// An [Entry] is a repeating-job template keyed by a stable string:
// registering the same key again updates the existing entry instead of
// creating a second one, so the [Planner] can safely re-run its full
// registration at every process start.
//
// The [Scheduler] ticks on an interval, fires due entries through an
// [EnqueueFunc], and advances NextRunAt from the entry's cron or
// "@every" expression. Per-entry locks in the store give at-most-one
// fire per due time even with several scheduler processes running.
//
// The [Planner] is the domain half: it enumerates organizations and
// connected integrations from the directory and registers the standard
// recurring set — sync every 15 minutes per integration, bottleneck
// detection every 30 minutes, predictions hourly, agent runs every 15
// minutes, a daily progress snapshot, the per-organization briefing
// cron, and a daily milestone check.
package schedule
