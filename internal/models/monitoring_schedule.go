package models

import "time"

// MonitoringSchedule binds a Site to a cron expression for automatic
// recrawl. IsActive false means the scheduler bridge skips it without
// deleting the row, preserving LastRunAt history.
type MonitoringSchedule struct {
	ID             int64      `json:"id"`
	SiteID         int64      `json:"site_id"`
	CronExpression string     `json:"cron_expression"`
	IsActive       bool       `json:"is_active"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
