package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/queue"
)

// Standard recurring cadences.
const (
	syncEvery        = "@every 15m"
	detectionEvery   = "@every 30m"
	predictionsEvery = "@every 60m"
	agentsEvery      = "@every 15m"
	// snapshotCron takes the daily progress snapshot shortly after
	// midnight UTC, before any briefing goes out.
	snapshotCron = "30 0 * * *"
	// milestoneCron scans milestones for date drift once a day.
	milestoneCron = "0 6 * * *"
)

// Features toggles optional recurring work. All features default on.
type Features struct {
	Agents      bool
	Briefings   bool
	Predictions bool
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithFeatures sets the feature toggles.
func WithFeatures(f Features) PlannerOption {
	return func(p *Planner) { p.features = f }
}

// WithPlannerLogger sets the planner logger.
func WithPlannerLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = logger }
}

// Planner registers the standard recurring schedule for every
// organization. Plan is run once at process start and is safe to
// re-run at any time: every registration is an upsert keyed by a
// stable string, so identical re-registrations collapse to one entry.
type Planner struct {
	store    Store
	dir      directory.Store
	features Features
	logger   *slog.Logger
}

// NewPlanner creates a Planner over the schedule store and directory.
func NewPlanner(store Store, dir directory.Store, opts ...PlannerOption) *Planner {
	p := &Planner{
		store:    store,
		dir:      dir,
		features: Features{Agents: true, Briefings: true, Predictions: true},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan enumerates organizations and registers their recurring entries.
// A failure for one organization is logged and does not stop planning
// for the others.
func (p *Planner) Plan(ctx context.Context) error {
	orgs, err := p.dir.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("planner: list organizations: %w", err)
	}

	planned := 0
	for _, org := range orgs {
		if err := p.planOrganization(ctx, org); err != nil {
			p.logger.Error("planning failed for organization",
				slog.String("org_id", org.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		planned++
	}

	p.logger.Info("recurring schedule planned",
		slog.Int("organizations", planned),
		slog.Int("total", len(orgs)),
	)
	return nil
}

func (p *Planner) planOrganization(ctx context.Context, org *directory.Organization) error {
	orgPayload, err := json.Marshal(job.OrgPayload{OrgID: org.ID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// One sync entry per connected integration.
	integrations, err := p.dir.ListIntegrations(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("list integrations: %w", err)
	}
	for _, integ := range integrations {
		if !integ.Connected() {
			continue
		}
		payload, err := json.Marshal(job.SyncPayload{
			OrgID:         org.ID,
			IntegrationID: integ.ID,
			Provider:      integ.Provider,
		})
		if err != nil {
			return fmt.Errorf("marshal sync payload: %w", err)
		}
		key := fmt.Sprintf("sync:%s:%s", org.ID, integ.Provider)
		if err := p.register(ctx, key, syncEvery, job.KindSync, queue.Sync, payload, org.ID); err != nil {
			return err
		}
	}

	if err := p.register(ctx, "bottleneck_detection:"+org.ID, detectionEvery,
		job.KindBottleneckDetection, queue.Analysis, orgPayload, org.ID); err != nil {
		return err
	}
	if p.features.Predictions {
		if err := p.register(ctx, "predictions:"+org.ID, predictionsEvery,
			job.KindPredictions, queue.Analysis, orgPayload, org.ID); err != nil {
			return err
		}
	}
	if p.features.Agents {
		if err := p.register(ctx, "run_agents:"+org.ID, agentsEvery,
			job.KindRunAgents, queue.Agents, orgPayload, org.ID); err != nil {
			return err
		}
	}
	if err := p.register(ctx, "progress_snapshot:"+org.ID, snapshotCron,
		job.KindProgressSnapshot, queue.Progress, orgPayload, org.ID); err != nil {
		return err
	}
	if p.features.Briefings {
		if err := p.register(ctx, "daily_briefing:"+org.ID, BriefingCron(org),
			job.KindDailyBriefing, queue.Heartbeat, orgPayload, org.ID); err != nil {
			return err
		}
	}
	if err := p.register(ctx, "milestone_check:"+org.ID, milestoneCron,
		job.KindMilestoneCheck, queue.Heartbeat, orgPayload, org.ID); err != nil {
		return err
	}
	return nil
}

func (p *Planner) register(ctx context.Context, key, expr string, kind job.Kind, queueName string, payload []byte, orgID string) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return fmt.Errorf("register %s: parse %q: %w", key, expr, err)
	}
	next := sched.Next(time.Now().UTC())

	entry := &Entry{
		ID:        id.NewScheduleID(),
		Key:       key,
		Schedule:  expr,
		Kind:      kind,
		Queue:     queueName,
		Payload:   payload,
		OrgID:     orgID,
		NextRunAt: &next,
		Enabled:   true,
	}
	entry.Touch(time.Now().UTC())

	if err := p.store.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}
	return nil
}

// BriefingCron computes the cron expression for an organization's
// daily briefing from its configured local hour and weekday set. The
// hour is shifted to UTC with the organization's coarse offset; no
// DST handling, matching the hour-granular briefing contract. An empty
// weekday set means Monday through Friday.
func BriefingCron(org *directory.Organization) string {
	hour := ((org.BriefingHour-org.UTCOffsetHours)%24 + 24) % 24

	weekdays := org.BriefingWeekdays
	if len(weekdays) == 0 {
		weekdays = []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		}
	}
	days := make([]int, 0, len(weekdays))
	seen := make(map[int]bool, len(weekdays))
	for _, wd := range weekdays {
		d := int(wd)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	sort.Ints(days)

	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("0 %d * * %s", hour, strings.Join(parts, ","))
}
