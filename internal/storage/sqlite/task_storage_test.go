package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/common"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// newTestManager opens a scratch SQLite database under t.TempDir, schema
// applied, and returns the aggregate Manager plus a (Site, CrawlJob) pair
// already persisted so foreign-key-constrained inserts (crawl_tasks) have
// somewhere to point.
func newTestManager(t *testing.T) (*Manager, int64, int64) {
	t.Helper()
	cfg := &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		Environment:   "development",
		WALMode:       false,
		BusyTimeoutMS: 2000,
		CacheSizeMB:   8,
	}
	mgr, err := NewManager(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	site := &models.Site{RootURL: "https://example.com"}
	siteID, err := mgr.Sites().CreateSite(context.Background(), site)
	require.NoError(t, err)

	job := &models.CrawlJob{SiteID: siteID, Status: models.CrawlJobStatusPending, MaxPages: 200}
	jobID, err := mgr.CrawlJobs().CreateCrawlJob(context.Background(), job)
	require.NoError(t, err)

	return mgr, siteID, jobID
}

func TestTaskStorage_ClaimIsAtomicAndOrdersByPriority(t *testing.T) {
	mgr, siteID, jobID := newTestManager(t)
	tasks := mgr.Tasks()
	ctx := context.Background()

	low, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{Priority: 100})
	require.NoError(t, err)
	high, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{Priority: 10})
	require.NoError(t, err)

	claimed, err := tasks.Claim(ctx, "worker-a", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, high.ID, claimed.ID, "lower priority value claims first")
	assert.Equal(t, models.TaskStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.AttemptCount)

	// The low-priority task is still claimable; the just-claimed one is not.
	second, err := tasks.Claim(ctx, "worker-b", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, low.ID, second.ID)

	third, err := tasks.Claim(ctx, "worker-c", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, third, "no eligible task remains")
}

func TestTaskStorage_HeartbeatCompleteRespectLeaseOwnership(t *testing.T) {
	mgr, siteID, jobID := newTestManager(t)
	tasks := mgr.Tasks()
	ctx := context.Background()

	_, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{})
	require.NoError(t, err)
	claimed, err := tasks.Claim(ctx, "owner", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	ok, err := tasks.Heartbeat(ctx, claimed.ID, "someone-else", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a non-owner heartbeat must not extend the lease")

	ok, err = tasks.Heartbeat(ctx, claimed.ID, "owner", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tasks.Complete(ctx, claimed.ID, "someone-else")
	require.NoError(t, err)
	assert.False(t, ok, "a non-owner must not be able to complete the task")

	ok, err = tasks.Complete(ctx, claimed.ID, "owner")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTaskStorage_FailBeforeMaxAttemptsRequeuesWithBackoff(t *testing.T) {
	mgr, siteID, jobID := newTestManager(t)
	tasks := mgr.Tasks()
	ctx := context.Background()

	_, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)

	claimed, err := tasks.Claim(ctx, "worker", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	failed, err := tasks.Fail(ctx, claimed.ID, "worker", "first attempt: boom")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, failed.Status, "first failure requeues, attempt_count (1) < max_attempts (2)")
	assert.True(t, failed.AvailableAt.After(time.Now()), "retry is scheduled for the future, not immediate")

	claimed2, err := tasks.Claim(ctx, "worker", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, claimed2, "retry delay has not elapsed yet, task is not claimable")
}

func TestTaskStorage_RecoverExpiredRequeuesAbandonedLeases(t *testing.T) {
	mgr, siteID, jobID := newTestManager(t)
	tasks := mgr.Tasks()
	ctx := context.Background()

	_, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{})
	require.NoError(t, err)

	// A negative lease duration means the claim is already expired the
	// instant it's granted.
	claimed, err := tasks.Claim(ctx, "worker", -time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.TaskStatusRunning, claimed.Status)

	recovered, err := tasks.RecoverExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	claimed2, err := tasks.Claim(ctx, "other-worker", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed2)
	assert.Equal(t, claimed.ID, claimed2.ID)
	assert.Equal(t, models.LeaseExpiredError, claimed2.LastError)
}

func TestTaskStorage_EnqueueIsIdempotentOnKey(t *testing.T) {
	mgr, siteID, jobID := newTestManager(t)
	tasks := mgr.Tasks()
	ctx := context.Background()

	first, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{IdempotencyKey: "site:1:cron:2026-07-30T09:00"})
	require.NoError(t, err)

	second, err := tasks.Enqueue(ctx, siteID, jobID, interfaces.EnqueueOptions{IdempotencyKey: "site:1:cron:2026-07-30T09:00"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "a repeat enqueue under the same idempotency key returns the existing row")

	found, err := tasks.FindByIdempotencyKey(ctx, "site:1:cron:2026-07-30T09:00")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := tasks.FindByIdempotencyKey(ctx, "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
