// Package engine wires all Flowtide subsystems together and provides
// the application-level API for enqueuing work.
//
// The engine package exists to break a fundamental import cycle: the
// root flowtide package defines Entity (imported by job, schedule,
// bottleneck, etc.) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application
// layer.
//
// # Building an Engine
//
//	svc, _ := flowtide.New(
//	    flowtide.WithQueueStore(redisStore),
//	    flowtide.WithDatabase(pgStore),
//	)
//
//	eng, err := engine.Build(svc, redisStore, pgStore, engine.Collaborators{
//	    SyncClient: myClient,
//	    Notifier:   slackNotifier,
//	    ...
//	})
//
// Build constructs the breaker registry, detection engine, job
// handlers, worker pools, scheduler, planner, and health server, and
// hands their lifecycles to the Service. Handler coverage for every
// job kind is validated at build time, so a missing handler fails
// startup instead of failing jobs at 3am.
//
// # Enqueuing Jobs
//
//	engine.Enqueue(ctx, eng, job.KindForceBriefing, job.OrgPayload{OrgID: org},
//	    job.WithQueue(queue.Heartbeat))
package engine
