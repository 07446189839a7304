package main

import (
	"context"
	"log/slog"

	"github.com/flowtidehq/flowtide/engine"
	"github.com/flowtidehq/flowtide/handler"
)

// collaborators returns the daemon's collaborator set. The outbound
// integrations (tracker/code-host clients, LLM backend, chat delivery)
// live in separate services; this process reaches them over their
// queues and webhooks, so the local implementations only log. Swap in
// real clients here when a deployment runs them in-process.
func collaborators(logger *slog.Logger) engine.Collaborators {
	return engine.Collaborators{
		SyncClient:        logSyncClient{logger},
		Predictor:         logPredictor{logger},
		AgentRunner:       logAgentRunner{logger},
		BriefingGenerator: logGenerator{logger},
		Notifier:          logNotifier{logger},
		MilestoneChecker:  logChecker{logger},
	}
}

type logSyncClient struct{ logger *slog.Logger }

func (c logSyncClient) Sync(_ context.Context, orgID, integrationID, provider string) (handler.SyncResult, error) {
	c.logger.Info("sync requested",
		slog.String("org_id", orgID),
		slog.String("integration_id", integrationID),
		slog.String("provider", provider),
	)
	return handler.SyncResult{}, nil
}

type logPredictor struct{ logger *slog.Logger }

func (p logPredictor) RunPredictions(_ context.Context, orgID string) error {
	p.logger.Info("predictions requested", slog.String("org_id", orgID))
	return nil
}

type logAgentRunner struct{ logger *slog.Logger }

func (r logAgentRunner) RunPending(_ context.Context, orgID string) error {
	r.logger.Info("agent run requested", slog.String("org_id", orgID))
	return nil
}

func (r logAgentRunner) ExecuteApproved(_ context.Context, orgID, approvalID string) error {
	r.logger.Info("approved agent action requested",
		slog.String("org_id", orgID),
		slog.String("approval_id", approvalID),
	)
	return nil
}

type logGenerator struct{ logger *slog.Logger }

func (g logGenerator) GenerateBriefing(_ context.Context, orgID string) (string, error) {
	g.logger.Info("briefing generation requested", slog.String("org_id", orgID))
	return "Flowtide daily briefing is not configured for this deployment.", nil
}

type logNotifier struct{ logger *slog.Logger }

func (n logNotifier) Send(_ context.Context, orgID, message string) error {
	n.logger.Info("notification",
		slog.String("org_id", orgID),
		slog.String("message", message),
	)
	return nil
}

type logChecker struct{ logger *slog.Logger }

func (c logChecker) CheckMilestones(_ context.Context, orgID string) ([]string, error) {
	c.logger.Info("milestone check requested", slog.String("org_id", orgID))
	return nil, nil
}
