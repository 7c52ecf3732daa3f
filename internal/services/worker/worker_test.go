package worker

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/common"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// memStorage is a minimal in-memory stand-in for every storage interface
// the worker touches, enough to drive one crawl end to end without SQLite.
type memStorage struct {
	mu sync.Mutex

	sites map[int64]*models.Site
	jobs  map[int64]*models.CrawlJob
	pages map[string]*models.Page
	files []*models.GeneratedFile

	nextPageID int64
}

func newMemStorage() *memStorage {
	return &memStorage{
		sites: make(map[int64]*models.Site),
		jobs:  make(map[int64]*models.CrawlJob),
		pages: make(map[string]*models.Page),
	}
}

func (m *memStorage) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sites[id], nil
}
func (m *memStorage) CreateSite(ctx context.Context, site *models.Site) (int64, error) { return 0, nil }
func (m *memStorage) UpdateSite(ctx context.Context, site *models.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.ID] = site
	return nil
}
func (m *memStorage) ListSites(ctx context.Context) ([]*models.Site, error) { return nil, nil }
func (m *memStorage) DeleteSite(ctx context.Context, id int64) error        { return nil }

func (m *memStorage) GetCrawlJob(ctx context.Context, id int64) (*models.CrawlJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id], nil
}
func (m *memStorage) CreateCrawlJob(ctx context.Context, job *models.CrawlJob) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return job.ID, nil
}
func (m *memStorage) UpdateCrawlJob(ctx context.Context, job *models.CrawlJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}
func (m *memStorage) ListCrawlJobsBySite(ctx context.Context, siteID int64) ([]*models.CrawlJob, error) {
	return nil, nil
}

func (m *memStorage) UpsertPage(ctx context.Context, page *models.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pages[page.URL]; ok {
		page.ID = existing.ID
		page.FirstSeenAt = existing.FirstSeenAt
	} else {
		m.nextPageID++
		page.ID = m.nextPageID
	}
	page.IsActive = true
	m.pages[page.URL] = page
	return nil
}
func (m *memStorage) GetPageByURL(ctx context.Context, siteID int64, url string) (*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[url], nil
}
func (m *memStorage) ListActivePages(ctx context.Context, siteID int64) ([]*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Page
	for _, p := range m.pages {
		if p.SiteID == siteID && p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *memStorage) ListActivePagesByRelevance(ctx context.Context, siteID int64) ([]*models.Page, error) {
	return m.ListActivePages(ctx, siteID)
}
func (m *memStorage) ListAllPages(ctx context.Context, siteID int64) ([]*models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Page
	for _, p := range m.pages {
		if p.SiteID == siteID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *memStorage) DeactivatePagesNotIn(ctx context.Context, siteID int64, seenURLs map[string]bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deactivated []string
	for url, p := range m.pages {
		if p.SiteID == siteID && p.IsActive && !seenURLs[url] {
			p.IsActive = false
			deactivated = append(deactivated, url)
		}
	}
	return deactivated, nil
}

func (m *memStorage) SaveGeneratedFile(ctx context.Context, file *models.GeneratedFile) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, file)
	return int64(len(m.files)), nil
}
func (m *memStorage) GetLatestGeneratedFile(ctx context.Context, siteID int64) (*models.GeneratedFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.GeneratedFile
	for _, f := range m.files {
		if f.SiteID == siteID {
			latest = f
		}
	}
	return latest, nil
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Crawler.MaxConcurrency = 2
	cfg.Crawler.DefaultMaxDepth = 2
	cfg.Crawler.DefaultMaxPages = 10
	cfg.Crawler.RequestTimeout = 5 * time.Second
	cfg.Worker.LeaseDuration = time.Minute
	cfg.Worker.HeartbeatEvery = 10 * time.Second
	return cfg
}

func TestWorker_RunCrawlGeneratesArtifactOnFirstRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Home</title></head><body><a href="/docs">Docs</a></body></html>`)
	})
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Docs</title></head><body>Documentation content.</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := newMemStorage()
	store.sites[1] = &models.Site{ID: 1, RootURL: server.URL}
	store.jobs[1] = &models.CrawlJob{ID: 1, SiteID: 1, Status: models.CrawlJobStatusPending, MaxDepth: 2, MaxPages: 10}

	w := New("test-worker", testConfig(), nil, store, store, store, store, nil, nil, nil, arbor.NewLogger())

	task := &models.CrawlTask{ID: 1, SiteID: 1, CrawlJobID: 1}
	err := w.runCrawl(context.Background(), task)
	require.NoError(t, err)

	job := store.jobs[1]
	assert.Equal(t, models.CrawlJobStatusCompleted, job.Status)
	assert.GreaterOrEqual(t, job.PagesAdded, 1)

	latest, err := store.GetLatestGeneratedFile(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, latest, "expected an artifact to be generated for a first crawl")
	assert.Contains(t, latest.Content, "Docs")
}

func TestWorker_ResetJobForRetryRecordsAttemptCounters(t *testing.T) {
	store := newMemStorage()
	store.jobs[1] = &models.CrawlJob{ID: 1, SiteID: 1, Status: models.CrawlJobStatusRunning}

	w := New("test-worker", testConfig(), nil, store, store, store, store, nil, nil, nil, arbor.NewLogger())

	failedTask := &models.CrawlTask{
		ID: 5, CrawlJobID: 1, Status: models.TaskStatusFailed,
		AttemptCount: 2, MaxAttempts: 5, LastError: "boom",
	}
	w.resetJobForRetry(failedTask)

	job := store.jobs[1]
	assert.Equal(t, models.CrawlJobStatusPending, job.Status)
	assert.Contains(t, job.ErrorMessage, "attempt 2/5")
	assert.Contains(t, job.ErrorMessage, "boom")
}

func TestWorker_ResetJobForRetryIgnoresNonFailedTask(t *testing.T) {
	store := newMemStorage()
	store.jobs[1] = &models.CrawlJob{ID: 1, SiteID: 1, Status: models.CrawlJobStatusRunning}

	w := New("test-worker", testConfig(), nil, store, store, store, store, nil, nil, nil, arbor.NewLogger())
	w.resetJobForRetry(&models.CrawlTask{ID: 5, CrawlJobID: 1, Status: models.TaskStatusDeadLetter})

	assert.Equal(t, models.CrawlJobStatusRunning, store.jobs[1].Status, "dead-letter tasks must not reset their job to pending")
}
