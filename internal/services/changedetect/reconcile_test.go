package changedetect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
	"github.com/ternarybob/llmstxt-crawler/internal/services/crawler"
)

// fakePageStorage is an in-memory interfaces.PageStorage, keyed by URL,
// that tracks is_active like the real SQLite table so resurrection tests
// can exercise Reconciler against a previously-deactivated row.
type fakePageStorage struct {
	byURL map[string]*models.Page
}

func newFakePageStorage() *fakePageStorage {
	return &fakePageStorage{byURL: make(map[string]*models.Page)}
}

func (f *fakePageStorage) UpsertPage(ctx context.Context, page *models.Page) error {
	page.IsActive = true
	f.byURL[page.URL] = page
	return nil
}

func (f *fakePageStorage) GetPageByURL(ctx context.Context, siteID int64, url string) (*models.Page, error) {
	return f.byURL[url], nil
}

func (f *fakePageStorage) ListActivePages(ctx context.Context, siteID int64) ([]*models.Page, error) {
	var out []*models.Page
	for _, p := range f.byURL {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePageStorage) ListActivePagesByRelevance(ctx context.Context, siteID int64) ([]*models.Page, error) {
	return f.ListActivePages(ctx, siteID)
}

func (f *fakePageStorage) ListAllPages(ctx context.Context, siteID int64) ([]*models.Page, error) {
	var out []*models.Page
	for _, p := range f.byURL {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePageStorage) DeactivatePagesNotIn(ctx context.Context, siteID int64, seenURLs map[string]bool) ([]string, error) {
	var removed []string
	for url, p := range f.byURL {
		if p.IsActive && !seenURLs[url] {
			p.IsActive = false
			removed = append(removed, url)
		}
	}
	return removed, nil
}

type fakeJobStorage struct{}

func (fakeJobStorage) CreateCrawlJob(ctx context.Context, job *models.CrawlJob) (int64, error) {
	return 1, nil
}
func (fakeJobStorage) GetCrawlJob(ctx context.Context, id int64) (*models.CrawlJob, error) {
	return nil, nil
}
func (fakeJobStorage) UpdateCrawlJob(ctx context.Context, job *models.CrawlJob) error { return nil }
func (fakeJobStorage) ListCrawlJobsBySite(ctx context.Context, siteID int64) ([]*models.CrawlJob, error) {
	return nil, nil
}

func resultFor(url string, metadataHash string) crawler.Result {
	return crawler.Result{
		URL:        url,
		Depth:      1,
		HTTPStatus: 200,
		Metadata: &crawler.PageMetadata{
			Title:        "Title",
			MetadataHash: metadataHash,
			HeadingsHash: metadataHash,
			TextHash:     metadataHash,
			ContentHash:  metadataHash,
			Links:        []string{},
		},
	}
}

func TestReconciler_InactivePageSeenAgainIsResurrectedAsAdded(t *testing.T) {
	pages := newFakePageStorage()

	// Seed a page that was previously deactivated (removed in an earlier
	// crawl), mirroring what ListAllPages would now surface.
	pages.byURL["https://example.com/docs"] = &models.Page{
		SiteID:       1,
		URL:          "https://example.com/docs",
		IsActive:     false,
		MetadataHash: "old-hash",
		HeadingsHash: "old-hash",
		TextHash:     "old-hash",
		ContentHash:  "old-hash",
		LinksJSON:    "[]",
		FirstSeenAt:  time.Now().Add(-48 * time.Hour),
	}

	existing, err := pages.ListAllPages(context.Background(), 1)
	require.NoError(t, err)

	job := &models.CrawlJob{ID: 1, SiteID: 1}
	r := New(pages, fakeJobStorage{}, nil, arbor.NewLogger(), 1, job, existing)

	r.OnPageCrawled(resultFor("https://example.com/docs", "old-hash"))

	assert.Equal(t, 1, r.added, "a previously-inactive page seen again must count as added (resurrection)")
	assert.Equal(t, 0, r.unchanged)

	stored := pages.byURL["https://example.com/docs"]
	require.NotNil(t, stored)
	assert.True(t, stored.IsActive)
}

func TestReconciler_ActivePageUnchangedStaysUnchanged(t *testing.T) {
	pages := newFakePageStorage()
	pages.byURL["https://example.com/docs"] = &models.Page{
		SiteID:       1,
		URL:          "https://example.com/docs",
		IsActive:     true,
		MetadataHash: "same-hash",
		HeadingsHash: "same-hash",
		TextHash:     "same-hash",
		ContentHash:  "same-hash",
		LinksJSON:    "[]",
	}

	existing, err := pages.ListAllPages(context.Background(), 1)
	require.NoError(t, err)

	job := &models.CrawlJob{ID: 1, SiteID: 1}
	r := New(pages, fakeJobStorage{}, nil, arbor.NewLogger(), 1, job, existing)

	r.OnPageCrawled(resultFor("https://example.com/docs", "same-hash"))

	assert.Equal(t, 0, r.added)
	assert.Equal(t, 1, r.unchanged)
}

func TestReconciler_NewPageIsAdded(t *testing.T) {
	pages := newFakePageStorage()
	job := &models.CrawlJob{ID: 1, SiteID: 1}
	r := New(pages, fakeJobStorage{}, nil, arbor.NewLogger(), 1, job, nil)

	r.OnPageCrawled(resultFor("https://example.com/new", "hash"))

	assert.Equal(t, 1, r.added)
}
