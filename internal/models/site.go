package models

import "time"

// Site is a registered crawl target. It is the root of the data model:
// every Page, CrawlJob, GeneratedFile, and MonitoringSchedule references
// a Site by ID.
type Site struct {
	ID          int64     `json:"id"`
	RootURL     string    `json:"root_url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
