package interfaces

import (
	"context"

	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// PageStorage persists crawled pages and the fingerprint state used to
// detect change between crawls.
type PageStorage interface {
	UpsertPage(ctx context.Context, page *models.Page) error
	GetPageByURL(ctx context.Context, siteID int64, url string) (*models.Page, error)
	ListActivePages(ctx context.Context, siteID int64) ([]*models.Page, error)

	// ListAllPages returns every page row for siteID regardless of
	// is_active, so the reconciler can detect resurrection of a
	// previously-deactivated page rather than only ever seeing active ones.
	ListAllPages(ctx context.Context, siteID int64) ([]*models.Page, error)

	// ListActivePagesByRelevance returns active pages ordered by
	// relevance_score DESC, depth ASC, matching the ordering the artifact
	// composer expects its input sorted in.
	ListActivePagesByRelevance(ctx context.Context, siteID int64) ([]*models.Page, error)

	// DeactivatePagesNotIn marks every active page for siteID whose URL is
	// not present in seenURLs as inactive, returning the URLs it
	// deactivated. Used by the reconciliation pass at the end of a crawl.
	DeactivatePagesNotIn(ctx context.Context, siteID int64, seenURLs map[string]bool) ([]string, error)
}
