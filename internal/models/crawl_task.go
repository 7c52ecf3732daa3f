package models

import "time"

// TaskStatus is the lifecycle state of a CrawlTask in the durable queue.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusRunning    TaskStatus = "running"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusDeadLetter TaskStatus = "dead_letter"
)

// QueueReadyStatuses are the statuses a task must be in for
// CrawlTaskQueue.Claim to consider it eligible for dispatch.
var QueueReadyStatuses = []TaskStatus{TaskStatusQueued, TaskStatusFailed}

// LeaseExpiredError is recorded as LastError when RecoverExpired requeues
// a running task whose lease has expired.
const LeaseExpiredError = "lease expired before worker heartbeat"

// CrawlTask is one unit of durable work on the task queue: "crawl this
// site". PayloadJSON optionally overrides MaxDepth/MaxPages for this run.
// IdempotencyKey, when set, prevents a second enqueue of logically the
// same task (e.g. the same cron minute) from creating a duplicate row.
type CrawlTask struct {
	ID             int64      `json:"id"`
	SiteID         int64      `json:"site_id"`
	CrawlJobID     int64      `json:"crawl_job_id"`
	Status         TaskStatus `json:"status"`
	Priority       int        `json:"priority"`
	AttemptCount   int        `json:"attempt_count"`
	MaxAttempts    int        `json:"max_attempts"`
	AvailableAt    time.Time  `json:"available_at"`
	LeasedUntil    *time.Time `json:"leased_until,omitempty"`
	LeaseOwner     string     `json:"lease_owner,omitempty"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	PayloadJSON    string     `json:"payload_json,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TaskPayload is the optional per-task override, JSON-encoded into
// CrawlTask.PayloadJSON at enqueue time.
type TaskPayload struct {
	MaxDepth int `json:"max_depth,omitempty"`
	MaxPages int `json:"max_pages,omitempty"`
}
