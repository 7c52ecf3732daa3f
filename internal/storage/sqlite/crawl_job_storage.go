package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// CrawlJobStorage implements interfaces.CrawlJobStorage against SQLite.
type CrawlJobStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewCrawlJobStorage creates a new SQLite-backed crawl job storage.
func NewCrawlJobStorage(db *SQLiteDB, logger arbor.ILogger) *CrawlJobStorage {
	return &CrawlJobStorage{db: db, logger: logger}
}

func (s *CrawlJobStorage) CreateCrawlJob(ctx context.Context, job *models.CrawlJob) (int64, error) {
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = models.CrawlJobStatusPending
	}

	result, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO crawl_jobs (site_id, status, max_depth, max_pages, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		job.SiteID, job.Status, job.MaxDepth, job.MaxPages, job.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create crawl job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new crawl job id: %w", err)
	}
	job.ID = id
	return id, nil
}

func (s *CrawlJobStorage) GetCrawlJob(ctx context.Context, id int64) (*models.CrawlJob, error) {
	row := s.db.DB().QueryRowContext(ctx, crawlJobSelectColumns+` FROM crawl_jobs WHERE id = ?`, id)
	job, err := scanCrawlJob(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("crawl job %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get crawl job: %w", err)
	}
	return job, nil
}

func (s *CrawlJobStorage) UpdateCrawlJob(ctx context.Context, job *models.CrawlJob) error {
	var startedAt, completedAt interface{}
	if !job.StartedAt.IsZero() {
		startedAt = job.StartedAt.Unix()
	}
	if !job.CompletedAt.IsZero() {
		completedAt = job.CompletedAt.Unix()
	}

	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE crawl_jobs SET
			status = ?, pages_found = ?, pages_crawled = ?, pages_changed = ?,
			pages_added = ?, pages_updated = ?, pages_removed = ?, pages_unchanged = ?,
			pages_skipped = ?, llms_regenerated = ?, change_summary_json = ?,
			error_message = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		job.Status, job.PagesFound, job.PagesCrawled, job.PagesChanged,
		job.PagesAdded, job.PagesUpdated, job.PagesRemoved, job.PagesUnchanged,
		job.PagesSkipped, job.LLMsRegenerated, job.ChangeSummaryJSON,
		job.ErrorMessage, startedAt, completedAt, job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update crawl job %d: %w", job.ID, err)
	}
	return nil
}

func (s *CrawlJobStorage) ListCrawlJobsBySite(ctx context.Context, siteID int64) ([]*models.CrawlJob, error) {
	rows, err := s.db.DB().QueryContext(ctx, crawlJobSelectColumns+`
		FROM crawl_jobs WHERE site_id = ? ORDER BY created_at DESC`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl jobs for site %d: %w", siteID, err)
	}
	defer rows.Close()

	var jobs []*models.CrawlJob
	for rows.Next() {
		job, err := scanCrawlJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const crawlJobSelectColumns = `SELECT id, site_id, status, max_depth, max_pages, pages_found,
	pages_crawled, pages_changed, pages_added, pages_updated, pages_removed, pages_unchanged,
	pages_skipped, llms_regenerated, change_summary_json, error_message, created_at, started_at, completed_at`

func scanCrawlJob(row rowScanner) (*models.CrawlJob, error) {
	var j models.CrawlJob
	var llmsRegenerated int
	var createdAt int64
	var startedAt, completedAt sql.NullInt64

	err := row.Scan(
		&j.ID, &j.SiteID, &j.Status, &j.MaxDepth, &j.MaxPages, &j.PagesFound,
		&j.PagesCrawled, &j.PagesChanged, &j.PagesAdded, &j.PagesUpdated, &j.PagesRemoved,
		&j.PagesUnchanged, &j.PagesSkipped, &llmsRegenerated, &j.ChangeSummaryJSON,
		&j.ErrorMessage, &createdAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	j.LLMsRegenerated = llmsRegenerated != 0
	j.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		j.StartedAt = time.Unix(startedAt.Int64, 0)
	}
	if completedAt.Valid {
		j.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	return &j, nil
}

// GeneratedFileStorage implements interfaces.GeneratedFileStorage against SQLite.
type GeneratedFileStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewGeneratedFileStorage creates a new SQLite-backed generated file storage.
func NewGeneratedFileStorage(db *SQLiteDB, logger arbor.ILogger) *GeneratedFileStorage {
	return &GeneratedFileStorage{db: db, logger: logger}
}

func (s *GeneratedFileStorage) SaveGeneratedFile(ctx context.Context, file *models.GeneratedFile) (int64, error) {
	file.CreatedAt = time.Now()

	result, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO generated_files (site_id, content, content_hash, page_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		file.SiteID, file.Content, file.ContentHash, file.PageCount, file.CreatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save generated file: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new generated file id: %w", err)
	}
	file.ID = id
	return id, nil
}

func (s *GeneratedFileStorage) GetLatestGeneratedFile(ctx context.Context, siteID int64) (*models.GeneratedFile, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, site_id, content, content_hash, page_count, created_at
		FROM generated_files WHERE site_id = ? ORDER BY created_at DESC LIMIT 1`, siteID)

	var f models.GeneratedFile
	var createdAt int64
	err := row.Scan(&f.ID, &f.SiteID, &f.Content, &f.ContentHash, &f.PageCount, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest generated file for site %d: %w", siteID, err)
	}
	f.CreatedAt = time.Unix(createdAt, 0)
	return &f, nil
}

// MonitoringScheduleStorage implements interfaces.MonitoringScheduleStorage against SQLite.
type MonitoringScheduleStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewMonitoringScheduleStorage creates a new SQLite-backed monitoring schedule storage.
func NewMonitoringScheduleStorage(db *SQLiteDB, logger arbor.ILogger) *MonitoringScheduleStorage {
	return &MonitoringScheduleStorage{db: db, logger: logger}
}

func (s *MonitoringScheduleStorage) ListActiveSchedules(ctx context.Context) ([]*models.MonitoringSchedule, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, site_id, cron_expression, is_active, last_run_at, created_at, updated_at
		FROM monitoring_schedules WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active monitoring schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.MonitoringSchedule
	for rows.Next() {
		schedule, err := scanMonitoringSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitoring schedule row: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

func (s *MonitoringScheduleStorage) GetScheduleBySite(ctx context.Context, siteID int64) (*models.MonitoringSchedule, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, site_id, cron_expression, is_active, last_run_at, created_at, updated_at
		FROM monitoring_schedules WHERE site_id = ?`, siteID)

	schedule, err := scanMonitoringSchedule(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get monitoring schedule for site %d: %w", siteID, err)
	}
	return schedule, nil
}

func (s *MonitoringScheduleStorage) UpdateScheduleLastRun(ctx context.Context, id int64, lastRun time.Time) error {
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE monitoring_schedules SET last_run_at = ?, updated_at = ? WHERE id = ?`,
		lastRun.Unix(), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update monitoring schedule %d last run: %w", id, err)
	}
	return nil
}

func scanMonitoringSchedule(row rowScanner) (*models.MonitoringSchedule, error) {
	var m models.MonitoringSchedule
	var isActive int
	var lastRunAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&m.ID, &m.SiteID, &m.CronExpression, &isActive, &lastRunAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.IsActive = isActive != 0
	if lastRunAt.Valid {
		t := time.Unix(lastRunAt.Int64, 0)
		m.LastRunAt = &t
	}
	m.CreatedAt = time.Unix(createdAt, 0)
	m.UpdatedAt = time.Unix(updatedAt, 0)
	return &m, nil
}
