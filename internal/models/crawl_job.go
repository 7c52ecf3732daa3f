package models

import "time"

// CrawlJobStatus is the lifecycle state of a CrawlJob.
type CrawlJobStatus string

const (
	CrawlJobStatusPending   CrawlJobStatus = "pending"
	CrawlJobStatusRunning   CrawlJobStatus = "running"
	CrawlJobStatusCompleted CrawlJobStatus = "completed"
	CrawlJobStatusFailed    CrawlJobStatus = "failed"
)

// ChangeSummary is the JSON-serialized counters attached to a completed
// CrawlJob, recording what the crawl actually changed.
type ChangeSummary struct {
	Added       int      `json:"added"`
	Updated     int      `json:"updated"`
	Removed     int      `json:"removed"`
	Unchanged   int      `json:"unchanged"`
	RemovedURLs []string `json:"removed_urls,omitempty"`
	ActivePages int      `json:"active_pages"`
}

// CrawlJob is one execution of a crawl against a Site. MaxPages and
// MaxDepth may override the configured crawler defaults for this run only;
// the counters below are written incrementally as the crawl progresses so
// a caller polling GetCrawlJob sees live progress.
type CrawlJob struct {
	ID                int64          `json:"id"`
	SiteID            int64          `json:"site_id"`
	Status            CrawlJobStatus `json:"status"`
	MaxDepth          int            `json:"max_depth,omitempty"`
	MaxPages          int            `json:"max_pages"`
	PagesFound        int            `json:"pages_found"`
	PagesCrawled      int            `json:"pages_crawled"`
	PagesChanged      int            `json:"pages_changed"`
	PagesAdded        int            `json:"pages_added"`
	PagesUpdated      int            `json:"pages_updated"`
	PagesRemoved      int            `json:"pages_removed"`
	PagesUnchanged    int            `json:"pages_unchanged"`
	PagesSkipped      int            `json:"pages_skipped"`
	LLMsRegenerated   bool           `json:"llms_regenerated"`
	ChangeSummaryJSON string         `json:"change_summary_json,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	StartedAt         time.Time      `json:"started_at,omitempty"`
	CompletedAt       time.Time      `json:"completed_at,omitempty"`
}
