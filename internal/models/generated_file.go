package models

import "time"

// GeneratedFile is one emitted llms.txt artifact for a Site. A Site may
// accumulate many rows over time; the most recent one by CreatedAt is
// the current artifact.
type GeneratedFile struct {
	ID          int64     `json:"id"`
	SiteID      int64     `json:"site_id"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	PageCount   int       `json:"page_count"`
	CreatedAt   time.Time `json:"created_at"`
}
