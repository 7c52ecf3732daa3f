package interfaces

// StorageManager aggregates every storage concern this module needs behind
// a single handle, so callers construct one object at startup instead of
// wiring each table's storage individually.
type StorageManager interface {
	Sites() SiteStorage
	Pages() PageStorage
	CrawlJobs() CrawlJobStorage
	GeneratedFiles() GeneratedFileStorage
	MonitoringSchedules() MonitoringScheduleStorage
	Tasks() CrawlTaskQueue

	Close() error
}
