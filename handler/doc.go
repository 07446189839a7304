// Package handler implements the job handlers for every job kind.
//
// Handlers own no business logic for external systems: integration
// syncing, prediction, agent execution, briefing generation, and
// notification delivery live behind collaborator interfaces, and every
// outbound call goes through the circuit breaker for its dependency.
// What the handlers do own is the orchestration policy — quiet-hour
// suppression, breaker selection, permanent-versus-transient error
// classification, and the progress snapshot math.
//
// The Set groups one handler per queue; RegisterAll binds them to the
// job registry. Registry validation at startup guarantees the binding
// covers every kind.
package handler
