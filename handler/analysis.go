package handler

import (
	"context"
	"fmt"

	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/job"
)

// AnalysisHandler runs the detection and prediction passes.
type AnalysisHandler struct {
	engine    *bottleneck.Engine
	predictor Predictor
}

// NewAnalysisHandler creates an AnalysisHandler.
func NewAnalysisHandler(engine *bottleneck.Engine, predictor Predictor) *AnalysisHandler {
	return &AnalysisHandler{engine: engine, predictor: predictor}
}

// HandleDetection runs one full bottleneck detection pass.
func (h *AnalysisHandler) HandleDetection(ctx context.Context, p job.OrgPayload) error {
	return h.engine.RunDetection(ctx, p.OrgID)
}

// HandlePredictions runs the delivery-prediction pass.
func (h *AnalysisHandler) HandlePredictions(ctx context.Context, p job.OrgPayload) error {
	if err := h.predictor.RunPredictions(ctx, p.OrgID); err != nil {
		return fmt.Errorf("predictions for %s: %w", p.OrgID, err)
	}
	return nil
}
