// Package directory holds the tenant records the orchestrator plans
// around: organizations, their connected integrations, and daily
// progress snapshots. The data is owned by the application's control
// plane; this daemon only reads it to plan recurring work, and writes
// only progress snapshots.
package directory
