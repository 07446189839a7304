package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/job"
)

// HeartbeatHandler delivers briefings and alerts. Generation goes
// through the llm breaker, delivery through the chat breaker, and all
// non-forced sends honor the organization's quiet hours.
type HeartbeatHandler struct {
	generator BriefingGenerator
	notifier  Notifier
	quiet     QuietHours
	dir       directory.Store
	breakers  *breaker.Registry
	logger    *slog.Logger
	now       func() time.Time
}

// HeartbeatOption configures a HeartbeatHandler.
type HeartbeatOption func(*HeartbeatHandler)

// WithHeartbeatClock overrides the time source, for tests.
func WithHeartbeatClock(now func() time.Time) HeartbeatOption {
	return func(h *HeartbeatHandler) { h.now = now }
}

// NewHeartbeatHandler creates a HeartbeatHandler.
func NewHeartbeatHandler(
	generator BriefingGenerator,
	notifier Notifier,
	quiet QuietHours,
	dir directory.Store,
	breakers *breaker.Registry,
	logger *slog.Logger,
	opts ...HeartbeatOption,
) *HeartbeatHandler {
	h := &HeartbeatHandler{
		generator: generator,
		notifier:  notifier,
		quiet:     quiet,
		dir:       dir,
		breakers:  breakers,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleDailyBriefing generates and delivers the scheduled briefing,
// unless the organization is inside its quiet window.
func (h *HeartbeatHandler) HandleDailyBriefing(ctx context.Context, p job.OrgPayload) error {
	return h.briefing(ctx, p.OrgID, false)
}

// HandleForceBriefing generates and delivers a briefing immediately,
// ignoring quiet hours.
func (h *HeartbeatHandler) HandleForceBriefing(ctx context.Context, p job.OrgPayload) error {
	return h.briefing(ctx, p.OrgID, true)
}

func (h *HeartbeatHandler) briefing(ctx context.Context, orgID string, forced bool) error {
	org, err := h.dir.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, flowtide.ErrOrgNotFound) {
			return fmt.Errorf("briefing for %s: %v: %w", orgID, err, flowtide.ErrPermanent)
		}
		return fmt.Errorf("briefing for %s: %w", orgID, err)
	}

	if !forced && h.quiet.Quiet(org, h.now()) {
		h.logger.Info("briefing suppressed by quiet hours",
			slog.String("org_id", orgID),
		)
		return nil
	}

	var text string
	genErr := h.breakers.Get(breaker.DepLLM).Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = h.generator.GenerateBriefing(ctx, orgID)
		return err
	})
	if genErr != nil {
		return fmt.Errorf("generate briefing for %s: %w", orgID, genErr)
	}

	if err := h.deliver(ctx, orgID, text); err != nil {
		return fmt.Errorf("deliver briefing for %s: %w", orgID, err)
	}

	h.logger.Info("briefing delivered",
		slog.String("org_id", orgID),
		slog.Bool("forced", forced),
	)
	return nil
}

// HandleBlockerAlert notifies about a newly detected blocking bottleneck.
func (h *HeartbeatHandler) HandleBlockerAlert(ctx context.Context, p job.AlertPayload) error {
	return h.alert(ctx, p, "blocker")
}

// HandleRiskAlert notifies about a predicted delivery risk.
func (h *HeartbeatHandler) HandleRiskAlert(ctx context.Context, p job.AlertPayload) error {
	return h.alert(ctx, p, "risk")
}

// HandleMilestoneAlert notifies about an approaching milestone.
func (h *HeartbeatHandler) HandleMilestoneAlert(ctx context.Context, p job.AlertPayload) error {
	return h.alert(ctx, p, "milestone")
}

func (h *HeartbeatHandler) alert(ctx context.Context, p job.AlertPayload, kind string) error {
	org, err := h.dir.GetOrganization(ctx, p.OrgID)
	if err != nil {
		if errors.Is(err, flowtide.ErrOrgNotFound) {
			return fmt.Errorf("%s alert for %s: %v: %w", kind, p.OrgID, err, flowtide.ErrPermanent)
		}
		return fmt.Errorf("%s alert for %s: %w", kind, p.OrgID, err)
	}

	if h.quiet.Quiet(org, h.now()) {
		h.logger.Info("alert suppressed by quiet hours",
			slog.String("org_id", p.OrgID),
			slog.String("alert_kind", kind),
		)
		return nil
	}

	if err := h.deliver(ctx, p.OrgID, p.Message); err != nil {
		return fmt.Errorf("%s alert for %s: %w", kind, p.OrgID, err)
	}

	h.logger.Info("alert delivered",
		slog.String("org_id", p.OrgID),
		slog.String("alert_kind", kind),
		slog.String("entity_id", p.EntityID),
	)
	return nil
}

func (h *HeartbeatHandler) deliver(ctx context.Context, orgID, message string) error {
	return h.breakers.Get(breaker.DepChat).Execute(ctx, func(ctx context.Context) error {
		return h.notifier.Send(ctx, orgID, message)
	})
}
