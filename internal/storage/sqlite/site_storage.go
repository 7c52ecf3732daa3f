package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// SiteStorage implements interfaces.SiteStorage against SQLite.
type SiteStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewSiteStorage creates a new SQLite-backed site storage.
func NewSiteStorage(db *SQLiteDB, logger arbor.ILogger) *SiteStorage {
	return &SiteStorage{db: db, logger: logger}
}

func (s *SiteStorage) CreateSite(ctx context.Context, site *models.Site) (int64, error) {
	now := time.Now()
	site.CreatedAt = now
	site.UpdatedAt = now

	result, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO sites (root_url, title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		site.RootURL, site.Title, site.Description, now.Unix(), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new site id: %w", err)
	}
	site.ID = id
	return id, nil
}

func (s *SiteStorage) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	row := s.db.DB().QueryRowContext(ctx, `
		SELECT id, root_url, title, description, created_at, updated_at
		FROM sites WHERE id = ?`, id)

	site, err := scanSite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("site %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return site, nil
}

func (s *SiteStorage) UpdateSite(ctx context.Context, site *models.Site) error {
	site.UpdatedAt = time.Now()
	_, err := s.db.DB().ExecContext(ctx, `
		UPDATE sites SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
		site.Title, site.Description, site.UpdatedAt.Unix(), site.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update site %d: %w", site.ID, err)
	}
	return nil
}

func (s *SiteStorage) ListSites(ctx context.Context) ([]*models.Site, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, root_url, title, description, created_at, updated_at
		FROM sites ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site row: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *SiteStorage) DeleteSite(ctx context.Context, id int64) error {
	_, err := s.db.DB().ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete site %d: %w", id, err)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSite(row rowScanner) (*models.Site, error) {
	var site models.Site
	var createdAt, updatedAt int64
	if err := row.Scan(&site.ID, &site.RootURL, &site.Title, &site.Description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	site.CreatedAt = time.Unix(createdAt, 0)
	site.UpdatedAt = time.Unix(updatedAt, 0)
	return &site, nil
}
