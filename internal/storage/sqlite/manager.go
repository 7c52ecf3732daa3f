package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/common"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
)

// Manager implements interfaces.StorageManager over a single SQLite
// connection, handing out one concrete storage per table.
type Manager struct {
	db                  *SQLiteDB
	sites               interfaces.SiteStorage
	pages               interfaces.PageStorage
	crawlJobs           interfaces.CrawlJobStorage
	generatedFiles      interfaces.GeneratedFileStorage
	monitoringSchedules interfaces.MonitoringScheduleStorage
	tasks               interfaces.CrawlTaskQueue
	logger              arbor.ILogger
}

// NewManager opens the SQLite database at config.Path, applies schema, and
// constructs every table's storage against the shared connection.
func NewManager(logger arbor.ILogger, config *common.SQLiteConfig) (*Manager, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:                  db,
		sites:               NewSiteStorage(db, logger),
		pages:               NewPageStorage(db, logger),
		crawlJobs:           NewCrawlJobStorage(db, logger),
		generatedFiles:      NewGeneratedFileStorage(db, logger),
		monitoringSchedules: NewMonitoringScheduleStorage(db, logger),
		tasks:               NewTaskStorage(db, logger),
		logger:              logger,
	}

	logger.Info().Msg("Storage manager initialized (sites, pages, crawl jobs, generated files, monitoring schedules, tasks)")

	return manager, nil
}

func (m *Manager) Sites() interfaces.SiteStorage { return m.sites }

func (m *Manager) Pages() interfaces.PageStorage { return m.pages }

func (m *Manager) CrawlJobs() interfaces.CrawlJobStorage { return m.crawlJobs }

func (m *Manager) GeneratedFiles() interfaces.GeneratedFileStorage { return m.generatedFiles }

func (m *Manager) MonitoringSchedules() interfaces.MonitoringScheduleStorage {
	return m.monitoringSchedules
}

func (m *Manager) Tasks() interfaces.CrawlTaskQueue { return m.tasks }

// DB returns the underlying database connection, for callers (migrations,
// diagnostics) that need raw SQL access.
func (m *Manager) DB() *SQLiteDB {
	return m.db
}

// Close closes the database connection.
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
