package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// fakeStorage is an in-memory stand-in for the three storage interfaces
// the bridge depends on, just enough to exercise dispatch and sync logic
// without a real SQLite connection.
type fakeStorage struct {
	mu sync.Mutex

	sites     map[int64]*models.Site
	schedules map[int64]*models.MonitoringSchedule
	jobs      []*models.CrawlJob
	nextJobID int64
	tasks     map[string]*models.CrawlTask
	nextTaskID int64
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		sites:     make(map[int64]*models.Site),
		schedules: make(map[int64]*models.MonitoringSchedule),
		tasks:     make(map[string]*models.CrawlTask),
	}
}

func (f *fakeStorage) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	site, ok := f.sites[id]
	if !ok {
		return nil, assert.AnError
	}
	return site, nil
}
func (f *fakeStorage) CreateSite(ctx context.Context, site *models.Site) (int64, error) { return 0, nil }
func (f *fakeStorage) UpdateSite(ctx context.Context, site *models.Site) error          { return nil }
func (f *fakeStorage) ListSites(ctx context.Context) ([]*models.Site, error)            { return nil, nil }
func (f *fakeStorage) DeleteSite(ctx context.Context, id int64) error                   { return nil }

func (f *fakeStorage) CreateCrawlJob(ctx context.Context, job *models.CrawlJob) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJobID++
	job.ID = f.nextJobID
	f.jobs = append(f.jobs, job)
	return job.ID, nil
}
func (f *fakeStorage) GetCrawlJob(ctx context.Context, id int64) (*models.CrawlJob, error) {
	return nil, nil
}
func (f *fakeStorage) UpdateCrawlJob(ctx context.Context, job *models.CrawlJob) error { return nil }
func (f *fakeStorage) ListCrawlJobsBySite(ctx context.Context, siteID int64) ([]*models.CrawlJob, error) {
	return nil, nil
}

func (f *fakeStorage) ListActiveSchedules(ctx context.Context) ([]*models.MonitoringSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MonitoringSchedule
	for _, s := range f.schedules {
		if s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStorage) GetScheduleBySite(ctx context.Context, siteID int64) (*models.MonitoringSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[siteID], nil
}
func (f *fakeStorage) UpdateScheduleLastRun(ctx context.Context, id int64, lastRun time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.schedules {
		if s.ID == id {
			s.LastRunAt = &lastRun
		}
	}
	return nil
}

func (f *fakeStorage) Enqueue(ctx context.Context, siteID, crawlJobID int64, opts interfaces.EnqueueOptions) (*models.CrawlTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if opts.IdempotencyKey != "" {
		if existing, ok := f.tasks[opts.IdempotencyKey]; ok {
			return existing, nil
		}
	}
	f.nextTaskID++
	task := &models.CrawlTask{
		ID:             f.nextTaskID,
		SiteID:         siteID,
		CrawlJobID:     crawlJobID,
		Status:         models.TaskStatusQueued,
		IdempotencyKey: opts.IdempotencyKey,
	}
	if opts.IdempotencyKey != "" {
		f.tasks[opts.IdempotencyKey] = task
	}
	return task, nil
}
func (f *fakeStorage) FindByIdempotencyKey(ctx context.Context, key string) (*models.CrawlTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[key], nil
}
func (f *fakeStorage) Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (*models.CrawlTask, error) {
	return nil, nil
}
func (f *fakeStorage) Heartbeat(ctx context.Context, taskID int64, workerID string, leaseDuration time.Duration) (bool, error) {
	return false, nil
}
func (f *fakeStorage) Complete(ctx context.Context, taskID int64, workerID string) (bool, error) {
	return false, nil
}
func (f *fakeStorage) Fail(ctx context.Context, taskID int64, workerID, errorMessage string) (*models.CrawlTask, error) {
	return nil, nil
}
func (f *fakeStorage) RecoverExpired(ctx context.Context) (int, error) { return 0, nil }

func TestBridge_DispatchEnqueuesOncePerMinute(t *testing.T) {
	store := newFakeStorage()
	store.sites[1] = &models.Site{ID: 1, RootURL: "https://example.com"}
	store.schedules[1] = &models.MonitoringSchedule{ID: 1, SiteID: 1, CronExpression: "* * * * *", IsActive: true}

	bridge := NewBridge(store, store, store, store, arbor.NewLogger())

	bridge.dispatch(context.Background(), 1, 1)
	bridge.dispatch(context.Background(), 1, 1)

	require.Len(t, store.jobs, 1, "second dispatch within the same minute must dedupe, not create a second job")
	assert.Len(t, store.tasks, 1)
	assert.NotNil(t, store.schedules[1].LastRunAt)
}

func TestBridge_DispatchSkipsMissingSite(t *testing.T) {
	store := newFakeStorage()
	store.schedules[99] = &models.MonitoringSchedule{ID: 99, SiteID: 99, CronExpression: "* * * * *", IsActive: true}

	bridge := NewBridge(store, store, store, store, arbor.NewLogger())
	bridge.dispatch(context.Background(), 99, 99)

	assert.Empty(t, store.jobs)
	assert.Empty(t, store.tasks)
}

func TestBridge_SyncSchedulesRegistersAndRemoves(t *testing.T) {
	store := newFakeStorage()
	store.sites[1] = &models.Site{ID: 1, RootURL: "https://example.com"}
	store.schedules[1] = &models.MonitoringSchedule{ID: 1, SiteID: 1, CronExpression: "0 * * * *", IsActive: true}

	bridge := NewBridge(store, store, store, store, arbor.NewLogger())
	require.NoError(t, bridge.SyncSchedules(context.Background()))
	assert.Len(t, bridge.entries, 1)

	store.schedules[1].IsActive = false
	require.NoError(t, bridge.SyncSchedules(context.Background()))
	assert.Empty(t, bridge.entries)
}
