package bottleneck

import "time"

// TaskStatus is the workflow state of a task snapshot.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskInReview   TaskStatus = "in_review"
	TaskDone       TaskStatus = "done"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the task is finished and should be excluded
// from the dependency graph.
func (s TaskStatus) Terminal() bool {
	return s == TaskDone || s == TaskCancelled
}

// Task is a read-only snapshot of a tracked task, synced from the
// organization's issue tracker.
type Task struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	ProjectID    string     `json:"project_id,omitempty"`
	Title        string     `json:"title,omitempty"`
	Status       TaskStatus `json:"status"`
	UpdatedAt    time.Time  `json:"updated_at"`
	BlockedByIDs []string   `json:"blocked_by_ids,omitempty"`
	BlocksIDs    []string   `json:"blocks_ids,omitempty"`
	Stuck        bool       `json:"stuck"`
}

// PullRequestStatus is the lifecycle state of a pull-request snapshot.
type PullRequestStatus string

const (
	PullRequestOpen   PullRequestStatus = "open"
	PullRequestMerged PullRequestStatus = "merged"
	PullRequestClosed PullRequestStatus = "closed"
)

// CIStatus is the continuous-integration result on a pull request.
type CIStatus string

const (
	CIPassing CIStatus = "passing"
	CIFailing CIStatus = "failing"
	CIPending CIStatus = "pending"
)

// PullRequest is a read-only snapshot of a review request, synced from
// the organization's code host.
type PullRequest struct {
	ID                 string            `json:"id"`
	OrgID              string            `json:"org_id"`
	ProjectID          string            `json:"project_id,omitempty"`
	Title              string            `json:"title,omitempty"`
	Status             PullRequestStatus `json:"status"`
	LastActivityAt     time.Time         `json:"last_activity_at"`
	UnresolvedComments int               `json:"unresolved_comments"`
	CIStatus           CIStatus          `json:"ci_status,omitempty"`
	Stuck              bool              `json:"stuck"`
}
