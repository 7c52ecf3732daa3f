package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// EnqueueOptions configures CrawlTaskQueue.Enqueue.
type EnqueueOptions struct {
	Priority       int    // lower claims first; default 100
	IdempotencyKey string // if set and a row with this key already exists, Enqueue returns it unchanged
	PayloadJSON    string
	MaxAttempts    int // default 5
}

// CrawlTaskQueue is the durable, lease-based task queue backing crawl
// dispatch. Claim/Heartbeat/Complete/Fail all enforce lease ownership:
// only the worker holding the lease may transition a running task.
//
// Implementations must make Claim atomic with respect to concurrent
// callers — two workers must never observe the same task as claimed.
type CrawlTaskQueue interface {
	Enqueue(ctx context.Context, siteID, crawlJobID int64, opts EnqueueOptions) (*models.CrawlTask, error)

	// FindByIdempotencyKey returns the task already enqueued under key, or
	// nil, nil if none exists. Callers that only need to create a parent
	// CrawlJob when genuinely enqueuing (e.g. the scheduler bridge) check
	// this before calling Enqueue, rather than creating a CrawlJob for a
	// task that will just be deduped.
	FindByIdempotencyKey(ctx context.Context, key string) (*models.CrawlTask, error)

	// Claim atomically selects the highest-priority, oldest eligible task
	// (status in queued/failed, available_at <= now, no live lease),
	// marks it running under workerID, and returns it. Returns nil, nil
	// if no task is eligible.
	Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (*models.CrawlTask, error)

	// Heartbeat extends the lease on a running task. It returns false
	// without error if the caller no longer owns the lease (e.g. it
	// expired and was recovered by RecoverExpired).
	Heartbeat(ctx context.Context, taskID int64, workerID string, leaseDuration time.Duration) (bool, error)

	// Complete marks a running, owned task completed. Returns false if
	// the caller does not hold the lease.
	Complete(ctx context.Context, taskID int64, workerID string) (bool, error)

	// Fail records an attempt failure. If attempt_count has reached
	// max_attempts the task moves to dead_letter; otherwise it is
	// requeued with a jittered exponential backoff delay. Returns the
	// resulting task.
	Fail(ctx context.Context, taskID int64, workerID, errorMessage string) (*models.CrawlTask, error)

	// RecoverExpired moves any running task whose lease has expired back
	// to failed with an immediate availability, so a crashed worker's
	// work is picked up by another. Returns the number of tasks recovered.
	RecoverExpired(ctx context.Context) (int, error)
}
