// Package job defines the job entity, the closed set of job kinds, the
// typed handler registry, and the queue-store interface.
//
// # Job Entity
//
// A [Job] represents one unit of background work. It embeds
// [flowtide.Entity] for timestamps, carries a JSON payload, and
// progresses through a state machine:
//
//	pending → running → completed
//	pending → running → retrying → running → ...
//	pending → running → failed
//
// Delivery is at-least-once: a stalled running job (no heartbeat) is
// reaped back to pending and claimed by another worker.
//
// # Kinds
//
// Job kinds are a closed enum, not open-ended strings. [Kinds] returns
// the exhaustive set; [Registry.Validate] fails startup if any kind is
// left without a handler, and dispatching an unknown kind is a
// permanent job error (the job fails without retries, the process
// survives).
//
// # Defining a handler
//
// Use [Definition] with a typed handler. The payload is JSON-serialized
// at enqueue time and decoded before the handler runs; a payload that
// does not decode is a permanent error:
//
//	def := job.NewDefinition(job.KindDailyBriefing,
//	    func(ctx context.Context, p BriefingPayload) error {
//	        return briefings.Deliver(ctx, p.OrganizationID)
//	    },
//	)
//	job.RegisterDefinition(registry, def)
package job
