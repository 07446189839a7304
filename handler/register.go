package handler

import (
	"time"

	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/queue"
)

// Set groups the handlers for every queue. All fields are required;
// RegisterAll binds each job kind to its handler method.
type Set struct {
	Sync      *SyncHandler
	Analysis  *AnalysisHandler
	Agents    *AgentHandler
	Heartbeat *HeartbeatHandler
	Progress  *ProgressHandler
}

// RegisterAll registers a definition for every job kind. Registry
// validation after this call proves the kind set is fully covered.
func RegisterAll(reg *job.Registry, s *Set) {
	job.RegisterDefinition(reg, job.NewDefinition(job.KindSync,
		s.Sync.HandleSync,
		job.WithQueue(queue.Sync), job.WithTimeout(10*time.Minute)))

	job.RegisterDefinition(reg, job.NewDefinition(job.KindBottleneckDetection,
		s.Analysis.HandleDetection,
		job.WithQueue(queue.Analysis)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindPredictions,
		s.Analysis.HandlePredictions,
		job.WithQueue(queue.Analysis)))

	job.RegisterDefinition(reg, job.NewDefinition(job.KindRunAgents,
		s.Agents.HandleRunAgents,
		job.WithQueue(queue.Agents), job.WithTimeout(15*time.Minute)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindExecuteApproved,
		s.Agents.HandleExecuteApproved,
		job.WithQueue(queue.Agents), job.WithTimeout(15*time.Minute)))

	job.RegisterDefinition(reg, job.NewDefinition(job.KindDailyBriefing,
		s.Heartbeat.HandleDailyBriefing,
		job.WithQueue(queue.Heartbeat)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindForceBriefing,
		s.Heartbeat.HandleForceBriefing,
		job.WithQueue(queue.Heartbeat)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindBlockerAlert,
		s.Heartbeat.HandleBlockerAlert,
		job.WithQueue(queue.Heartbeat), job.WithTimeout(time.Minute)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindRiskAlert,
		s.Heartbeat.HandleRiskAlert,
		job.WithQueue(queue.Heartbeat), job.WithTimeout(time.Minute)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindMilestoneAlert,
		s.Heartbeat.HandleMilestoneAlert,
		job.WithQueue(queue.Heartbeat), job.WithTimeout(time.Minute)))

	job.RegisterDefinition(reg, job.NewDefinition(job.KindProgressSnapshot,
		s.Progress.HandleProgressSnapshot,
		job.WithQueue(queue.Progress)))
	job.RegisterDefinition(reg, job.NewDefinition(job.KindMilestoneCheck,
		s.Progress.HandleMilestoneCheck,
		job.WithQueue(queue.Heartbeat)))
}
