package handler

import (
	"context"
	"fmt"

	"github.com/flowtidehq/flowtide/job"
)

// AgentHandler dispatches agent work to the runner collaborator.
type AgentHandler struct {
	runner AgentRunner
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(runner AgentRunner) *AgentHandler {
	return &AgentHandler{runner: runner}
}

// HandleRunAgents evaluates all pending agent runs for the organization.
func (h *AgentHandler) HandleRunAgents(ctx context.Context, p job.OrgPayload) error {
	if err := h.runner.RunPending(ctx, p.OrgID); err != nil {
		return fmt.Errorf("run agents for %s: %w", p.OrgID, err)
	}
	return nil
}

// HandleExecuteApproved executes one approved agent action.
func (h *AgentHandler) HandleExecuteApproved(ctx context.Context, p job.ApprovalPayload) error {
	if err := h.runner.ExecuteApproved(ctx, p.OrgID, p.ApprovalID); err != nil {
		return fmt.Errorf("execute approval %s for %s: %w", p.ApprovalID, p.OrgID, err)
	}
	return nil
}
