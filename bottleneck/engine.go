package bottleneck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowtidehq/flowtide/id"
)

// Events receives detection lifecycle notifications. Detected fires
// only for newly created records, never for re-detections of an
// already active bottleneck.
type Events interface {
	BottleneckDetected(ctx context.Context, b *Bottleneck)
	BottleneckResolved(ctx context.Context, b *Bottleneck)
}

type noopEvents struct{}

func (noopEvents) BottleneckDetected(context.Context, *Bottleneck) {}
func (noopEvents) BottleneckResolved(context.Context, *Bottleneck) {}

// Engine runs detection passes. One Engine serves all organizations;
// passes for different organizations may run concurrently because all
// writes are idempotent upserts keyed by entity.
type Engine struct {
	store      Store
	snapshots  Snapshots
	thresholds Thresholds
	logger     *slog.Logger
	events     Events
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithThresholds overrides the default detector thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithEvents sets the detection event sink.
func WithEvents(ev Events) Option {
	return func(e *Engine) { e.events = ev }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a detection engine over the given stores.
func NewEngine(store Store, snapshots Snapshots, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		snapshots:  snapshots,
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
		events:     noopEvents{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunDetection executes one full detection pass for the organization:
// all three detectors, their resolution sweeps, and the guarantee
// pass. Detectors are fully isolated — each runs to completion
// regardless of sibling failures, and errors are collected rather
// than short-circuiting, so one failing detector can never leave
// another's resolution sweep unattempted.
func (e *Engine) RunDetection(ctx context.Context, orgID string) error {
	start := e.now()

	err := errors.Join(
		e.detectStuckReviews(ctx, orgID),
		e.detectStaleTasks(ctx, orgID),
		e.detectDependencyBlocks(ctx, orgID),
		e.guaranteePass(ctx, orgID),
	)

	e.logger.Info("detection pass finished",
		slog.String("org_id", orgID),
		slog.Duration("elapsed", e.now().Sub(start)),
		slog.Bool("errors", err != nil),
	)
	return err
}

// ──────────────────────────────────────────────────
// Stuck-review detector
// ──────────────────────────────────────────────────

func (e *Engine) detectStuckReviews(ctx context.Context, orgID string) error {
	prs, err := e.snapshots.ListOpenPullRequests(ctx, orgID)
	if err != nil {
		return fmt.Errorf("stuck review: list pull requests: %w", err)
	}

	now := e.now()
	matched := make(map[Key]bool)
	var matchedIDs []string
	var errs []error

	for _, pr := range prs {
		staleness := now.Sub(pr.LastActivityAt)
		stale := staleness >= e.thresholds.ReviewInactivity
		comments := pr.UnresolvedComments >= e.thresholds.ReviewComments
		ciFailing := pr.CIStatus == CIFailing
		if !stale && !comments && !ciFailing {
			continue
		}

		// Severity is recomputed from the current factors every pass.
		// Staleness beyond twice the base threshold forces critical on
		// its own, over any comment/CI escalation.
		severity := SeverityMedium
		if comments || ciFailing {
			severity = SeverityHigh
		}
		if staleness > 2*e.thresholds.ReviewInactivity {
			severity = SeverityCritical
		}

		var factors []string
		if stale {
			factors = append(factors, fmt.Sprintf("no activity for %d days", days(staleness)))
		}
		if comments {
			factors = append(factors, fmt.Sprintf("%d unresolved comments", pr.UnresolvedComments))
		}
		if ciFailing {
			factors = append(factors, "CI failing")
		}

		b := &Bottleneck{
			ID:          id.NewBottleneckID(),
			Key:         Key{Type: TypeStuckReview, EntityKind: EntityPullRequest, EntityID: pr.ID},
			OrgID:       orgID,
			ProjectID:   pr.ProjectID,
			Severity:    severity,
			Status:      StatusActive,
			Title:       fmt.Sprintf("Pull request %s is stuck in review", displayName(pr.Title, pr.ID)),
			Description: strings.Join(factors, "; "),
			Impact:      "Review throughput is blocked until this pull request moves.",
		}
		if err := e.upsert(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("stuck review: %w", err))
			continue
		}
		matched[b.Key] = true
		matchedIDs = append(matchedIDs, pr.ID)
	}

	if len(matchedIDs) > 0 {
		if err := e.snapshots.MarkPullRequestsStuck(ctx, orgID, matchedIDs, true); err != nil {
			errs = append(errs, fmt.Errorf("stuck review: flag pull requests: %w", err))
		}
	}

	resolvedIDs, err := e.sweep(ctx, orgID, TypeStuckReview, matched)
	if err != nil {
		errs = append(errs, fmt.Errorf("stuck review: %w", err))
	}
	if len(resolvedIDs) > 0 {
		if err := e.snapshots.MarkPullRequestsStuck(ctx, orgID, resolvedIDs, false); err != nil {
			errs = append(errs, fmt.Errorf("stuck review: unflag pull requests: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────
// Stale-task detector
// ──────────────────────────────────────────────────

func (e *Engine) detectStaleTasks(ctx context.Context, orgID string) error {
	tasks, err := e.snapshots.ListActiveTasks(ctx, orgID)
	if err != nil {
		return fmt.Errorf("stale task: list tasks: %w", err)
	}

	now := e.now()
	matched := make(map[Key]bool)
	var matchedIDs []string
	var errs []error

	for _, t := range tasks {
		if t.Status != TaskInProgress {
			continue
		}
		elapsed := now.Sub(t.UpdatedAt)
		if elapsed <= e.thresholds.TaskInProgress {
			continue
		}

		severity := SeverityMedium
		switch {
		case elapsed >= 3*e.thresholds.TaskInProgress:
			severity = SeverityCritical
		case elapsed >= 2*e.thresholds.TaskInProgress:
			severity = SeverityHigh
		}

		b := &Bottleneck{
			ID:          id.NewBottleneckID(),
			Key:         Key{Type: TypeStaleTask, EntityKind: EntityTask, EntityID: t.ID},
			OrgID:       orgID,
			ProjectID:   t.ProjectID,
			Severity:    severity,
			Status:      StatusActive,
			Title:       fmt.Sprintf("Task %s has stalled in progress", displayName(t.Title, t.ID)),
			Description: fmt.Sprintf("in progress without updates for %d days", days(elapsed)),
			Impact:      "Work in progress is not converging; delivery slips silently.",
		}
		if err := e.upsert(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("stale task: %w", err))
			continue
		}
		matched[b.Key] = true
		matchedIDs = append(matchedIDs, t.ID)
	}

	if len(matchedIDs) > 0 {
		if err := e.snapshots.MarkTasksStuck(ctx, orgID, matchedIDs, true); err != nil {
			errs = append(errs, fmt.Errorf("stale task: flag tasks: %w", err))
		}
	}

	resolvedIDs, err := e.sweep(ctx, orgID, TypeStaleTask, matched)
	if err != nil {
		errs = append(errs, fmt.Errorf("stale task: %w", err))
	}
	if len(resolvedIDs) > 0 {
		if err := e.snapshots.MarkTasksStuck(ctx, orgID, resolvedIDs, false); err != nil {
			errs = append(errs, fmt.Errorf("stale task: unflag tasks: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────
// Dependency-block detector
// ──────────────────────────────────────────────────

func (e *Engine) detectDependencyBlocks(ctx context.Context, orgID string) error {
	tasks, err := e.snapshots.ListActiveTasks(ctx, orgID)
	if err != nil {
		return fmt.Errorf("dependency block: list tasks: %w", err)
	}

	// Rebuild the dependency graph in memory from the current
	// non-terminal task set. Edges come from both directions of the
	// snapshot (blocks and blocked-by), deduplicated, and only count
	// when both endpoints are open.
	open := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if !t.Status.Terminal() {
			open[t.ID] = t
		}
	}

	type edge struct{ blocker, blocked string }
	edges := make(map[edge]struct{})
	for _, t := range open {
		for _, blocked := range t.BlocksIDs {
			if _, ok := open[blocked]; ok {
				edges[edge{t.ID, blocked}] = struct{}{}
			}
		}
		for _, blocker := range t.BlockedByIDs {
			if _, ok := open[blocker]; ok {
				edges[edge{blocker, t.ID}] = struct{}{}
			}
		}
	}

	blocks := make(map[string]int)
	for ed := range edges {
		blocks[ed.blocker]++
	}

	matched := make(map[Key]bool)
	var errs []error

	for taskID, count := range blocks {
		if count < e.thresholds.BlockedTasks {
			continue
		}
		t := open[taskID]

		severity := SeverityMedium
		switch {
		case count >= 3*e.thresholds.BlockedTasks:
			severity = SeverityCritical
		case count >= 2*e.thresholds.BlockedTasks:
			severity = SeverityHigh
		}

		b := &Bottleneck{
			ID:          id.NewBottleneckID(),
			Key:         Key{Type: TypeDependencyBlock, EntityKind: EntityTask, EntityID: taskID},
			OrgID:       orgID,
			ProjectID:   t.ProjectID,
			Severity:    severity,
			Status:      StatusActive,
			Title:       fmt.Sprintf("Task %s blocks %d open tasks", displayName(t.Title, t.ID), count),
			Description: fmt.Sprintf("blocking %d open tasks", count),
			Impact:      fmt.Sprintf("%d downstream tasks cannot progress until this one completes.", count),
		}
		if err := e.upsert(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("dependency block: %w", err))
			continue
		}
		matched[b.Key] = true
	}

	if _, err := e.sweep(ctx, orgID, TypeDependencyBlock, matched); err != nil {
		errs = append(errs, fmt.Errorf("dependency block: %w", err))
	}
	return errors.Join(errs...)
}

// ──────────────────────────────────────────────────
// Guarantee pass
// ──────────────────────────────────────────────────

// guaranteePass makes sure the detection surface is never blank: an
// organization with zero active bottlenecks gets either a setup
// advisory (no connected integrations yet) or a monitoring record.
func (e *Engine) guaranteePass(ctx context.Context, orgID string) error {
	active, err := e.store.ListActiveBottlenecks(ctx, orgID, "")
	if err != nil {
		return fmt.Errorf("guarantee pass: %w", err)
	}
	real := 0
	for _, b := range active {
		if b.Key.Type != TypeIntegrationSetup && b.Key.Type != TypeMonitoringActive {
			real++
		}
	}

	setupKey := Key{Type: TypeIntegrationSetup, EntityKind: EntityOrganization, EntityID: orgID}
	monitorKey := Key{Type: TypeMonitoringActive, EntityKind: EntityOrganization, EntityID: orgID}

	// Real bottlenecks supersede the synthetic records.
	if real > 0 {
		if _, err := e.store.ResolveBottlenecks(ctx, orgID,
			[]Key{setupKey, monitorKey}, e.now()); err != nil {
			return fmt.Errorf("guarantee pass: %w", err)
		}
		return nil
	}

	integrations, err := e.snapshots.CountConnectedIntegrations(ctx, orgID)
	if err != nil {
		return fmt.Errorf("guarantee pass: %w", err)
	}

	b := &Bottleneck{
		ID:     id.NewBottleneckID(),
		OrgID:  orgID,
		Status: StatusActive,
	}
	superseded := monitorKey
	if integrations == 0 {
		b.Key = setupKey
		b.Severity = SeverityLow
		b.Title = "Connect your integrations"
		b.Description = "No issue tracker or code host is connected yet."
		b.Impact = "Bottleneck detection cannot see your work until an integration is connected."
	} else {
		b.Key = monitorKey
		superseded = setupKey
		b.Severity = SeverityInfo
		b.Title = "Monitoring active"
		b.Description = "No critical bottlenecks detected."
	}

	// The two synthetic records are mutually exclusive: connecting the
	// first integration swaps the setup advisory for the monitoring one.
	if _, err := e.store.ResolveBottlenecks(ctx, orgID, []Key{superseded}, e.now()); err != nil {
		return fmt.Errorf("guarantee pass: %w", err)
	}

	if err := e.upsert(ctx, b); err != nil {
		return fmt.Errorf("guarantee pass: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Shared plumbing
// ──────────────────────────────────────────────────

func (e *Engine) upsert(ctx context.Context, b *Bottleneck) error {
	created, err := e.store.UpsertBottleneck(ctx, b)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", b.Key.EntityKind, b.Key.EntityID, err)
	}
	if created {
		e.logger.Info("bottleneck detected",
			slog.String("org_id", b.OrgID),
			slog.String("type", string(b.Key.Type)),
			slog.String("severity", string(b.Severity)),
			slog.String("entity_kind", string(b.Key.EntityKind)),
			slog.String("entity_id", b.Key.EntityID),
		)
		e.events.BottleneckDetected(ctx, b)
	}
	return nil
}

// sweep resolves all active bottlenecks of the given type whose key no
// longer matches any trigger condition. It returns the entity IDs of
// the resolved records so the caller can clear stuck flags.
func (e *Engine) sweep(ctx context.Context, orgID string, typ Type, matched map[Key]bool) ([]string, error) {
	active, err := e.store.ListActiveBottlenecks(ctx, orgID, typ)
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	var stale []Key
	for _, b := range active {
		if !matched[b.Key] {
			stale = append(stale, b.Key)
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}

	resolved, err := e.store.ResolveBottlenecks(ctx, orgID, stale, e.now())
	if err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	ids := make([]string, 0, len(resolved))
	for _, b := range resolved {
		e.logger.Info("bottleneck resolved",
			slog.String("org_id", b.OrgID),
			slog.String("type", string(b.Key.Type)),
			slog.String("entity_kind", string(b.Key.EntityKind)),
			slog.String("entity_id", b.Key.EntityID),
		)
		e.events.BottleneckResolved(ctx, b)
		ids = append(ids, b.Key.EntityID)
	}
	return ids, nil
}

func days(d time.Duration) int {
	return int(d.Hours() / 24)
}

func displayName(title, fallback string) string {
	if title != "" {
		return title
	}
	return fallback
}
