package interfaces

import (
	"context"

	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// SiteStorage persists registered crawl targets.
type SiteStorage interface {
	CreateSite(ctx context.Context, site *models.Site) (int64, error)
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	UpdateSite(ctx context.Context, site *models.Site) error
	ListSites(ctx context.Context) ([]*models.Site, error)
	DeleteSite(ctx context.Context, id int64) error
}
