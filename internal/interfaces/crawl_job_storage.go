package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// CrawlJobStorage persists CrawlJob rows and their progress counters.
type CrawlJobStorage interface {
	CreateCrawlJob(ctx context.Context, job *models.CrawlJob) (int64, error)
	GetCrawlJob(ctx context.Context, id int64) (*models.CrawlJob, error)
	UpdateCrawlJob(ctx context.Context, job *models.CrawlJob) error
	ListCrawlJobsBySite(ctx context.Context, siteID int64) ([]*models.CrawlJob, error)
}

// GeneratedFileStorage persists llms.txt artifacts.
type GeneratedFileStorage interface {
	SaveGeneratedFile(ctx context.Context, file *models.GeneratedFile) (int64, error)
	GetLatestGeneratedFile(ctx context.Context, siteID int64) (*models.GeneratedFile, error)
}

// MonitoringScheduleStorage persists cron-driven recrawl schedules.
type MonitoringScheduleStorage interface {
	ListActiveSchedules(ctx context.Context) ([]*models.MonitoringSchedule, error)
	GetScheduleBySite(ctx context.Context, siteID int64) (*models.MonitoringSchedule, error)
	UpdateScheduleLastRun(ctx context.Context, id int64, lastRun time.Time) error
}
