package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/job"
)

// ProgressHandler persists the daily progress snapshot and runs the
// milestone drift check.
type ProgressHandler struct {
	snapshots bottleneck.Snapshots
	records   bottleneck.Store
	dir       directory.Store
	checker   MilestoneChecker
	notifier  Notifier
	breakers  *breaker.Registry
	logger    *slog.Logger
	now       func() time.Time
}

// ProgressOption configures a ProgressHandler.
type ProgressOption func(*ProgressHandler)

// WithProgressClock overrides the time source, for tests.
func WithProgressClock(now func() time.Time) ProgressOption {
	return func(h *ProgressHandler) { h.now = now }
}

// NewProgressHandler creates a ProgressHandler.
func NewProgressHandler(
	snapshots bottleneck.Snapshots,
	records bottleneck.Store,
	dir directory.Store,
	checker MilestoneChecker,
	notifier Notifier,
	breakers *breaker.Registry,
	logger *slog.Logger,
	opts ...ProgressOption,
) *ProgressHandler {
	h := &ProgressHandler{
		snapshots: snapshots,
		records:   records,
		dir:       dir,
		checker:   checker,
		notifier:  notifier,
		breakers:  breakers,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleProgressSnapshot records the organization's task counts for
// the day. Re-running on the same day overwrites the same row, so a
// retried job cannot double-count.
func (h *ProgressHandler) HandleProgressSnapshot(ctx context.Context, p job.OrgPayload) error {
	counts, err := h.snapshots.CountTasksByStatus(ctx, p.OrgID)
	if err != nil {
		return fmt.Errorf("progress snapshot for %s: %w", p.OrgID, err)
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	active, err := h.snapshots.ListActiveTasks(ctx, p.OrgID)
	if err != nil {
		return fmt.Errorf("progress snapshot for %s: %w", p.OrgID, err)
	}
	blocked := 0
	for _, t := range active {
		if len(t.BlockedByIDs) > 0 {
			blocked++
		}
	}

	activeBottlenecks, err := h.records.CountActiveBottlenecks(ctx, p.OrgID)
	if err != nil {
		return fmt.Errorf("progress snapshot for %s: %w", p.OrgID, err)
	}

	snap := &directory.ProgressSnapshot{
		OrgID:             p.OrgID,
		Date:              h.now().UTC().Truncate(24 * time.Hour),
		TasksTotal:        total,
		TasksDone:         counts[bottleneck.TaskDone],
		TasksInProgress:   counts[bottleneck.TaskInProgress],
		TasksBlocked:      blocked,
		ActiveBottlenecks: activeBottlenecks,
	}
	if err := h.dir.SaveProgressSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("progress snapshot for %s: %w", p.OrgID, err)
	}

	h.logger.Info("progress snapshot recorded",
		slog.String("org_id", p.OrgID),
		slog.Int("tasks_total", snap.TasksTotal),
		slog.Int("tasks_done", snap.TasksDone),
		slog.Int("tasks_blocked", snap.TasksBlocked),
		slog.Int("active_bottlenecks", snap.ActiveBottlenecks),
	)
	return nil
}

// HandleMilestoneCheck scans milestones for date drift and delivers
// one warning per drifting milestone through the chat breaker.
func (h *ProgressHandler) HandleMilestoneCheck(ctx context.Context, p job.OrgPayload) error {
	warnings, err := h.checker.CheckMilestones(ctx, p.OrgID)
	if err != nil {
		return fmt.Errorf("milestone check for %s: %w", p.OrgID, err)
	}
	if len(warnings) == 0 {
		return nil
	}

	br := h.breakers.Get(breaker.DepChat)
	for _, warning := range warnings {
		if err := br.Execute(ctx, func(ctx context.Context) error {
			return h.notifier.Send(ctx, p.OrgID, warning)
		}); err != nil {
			return fmt.Errorf("milestone warning for %s: %w", p.OrgID, err)
		}
	}

	h.logger.Info("milestone warnings delivered",
		slog.String("org_id", p.OrgID),
		slog.Int("count", len(warnings)),
	)
	return nil
}
