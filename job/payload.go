package job

import "time"

// Payload types for the closed kind set. Each kind carries exactly one
// of these shapes; handlers decode them through typed definitions so a
// malformed payload fails the job permanently instead of retrying.

// SyncPayload is carried by KindSync.
type SyncPayload struct {
	OrgID         string `json:"organization_id"`
	IntegrationID string `json:"integration_id"`
	Provider      string `json:"provider"`
}

// OrgPayload is carried by the per-organization kinds: bottleneck
// detection, predictions, agent runs, briefings, progress snapshots,
// and milestone checks.
type OrgPayload struct {
	OrgID string `json:"organization_id"`
}

// ApprovalPayload is carried by KindExecuteApproved.
type ApprovalPayload struct {
	OrgID      string `json:"organization_id"`
	ApprovalID string `json:"approval_id"`
}

// AlertPayload is carried by the alert kinds (blocker, risk, milestone).
type AlertPayload struct {
	OrgID    string     `json:"organization_id"`
	EntityID string     `json:"entity_id,omitempty"`
	Message  string     `json:"message"`
	DueAt    *time.Time `json:"due_at,omitempty"`
}
