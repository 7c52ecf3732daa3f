package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
)

// PageStorage implements interfaces.PageStorage against SQLite.
type PageStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewPageStorage creates a new SQLite-backed page storage.
func NewPageStorage(db *SQLiteDB, logger arbor.ILogger) *PageStorage {
	return &PageStorage{db: db, logger: logger}
}

// UpsertPage inserts a page or, if (site_id, url) already exists, updates it
// in place while preserving the original first_seen_at.
func (s *PageStorage) UpsertPage(ctx context.Context, page *models.Page) error {
	now := time.Now()
	if page.FirstSeenAt.IsZero() {
		page.FirstSeenAt = now
	}
	page.LastSeenAt = now
	page.LastCheckedAt = now
	page.IsActive = true

	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO pages (
			site_id, url, title, description, category, relevance_score, depth,
			metadata_hash, headings_hash, text_hash, content_hash, links_json,
			canonical_url, etag, last_modified, http_status, is_active,
			first_seen_at, last_seen_at, last_checked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(site_id, url) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			relevance_score = excluded.relevance_score,
			depth = excluded.depth,
			metadata_hash = excluded.metadata_hash,
			headings_hash = excluded.headings_hash,
			text_hash = excluded.text_hash,
			content_hash = excluded.content_hash,
			links_json = excluded.links_json,
			canonical_url = excluded.canonical_url,
			etag = excluded.etag,
			last_modified = excluded.last_modified,
			http_status = excluded.http_status,
			is_active = 1,
			last_seen_at = excluded.last_seen_at,
			last_checked_at = excluded.last_checked_at`,
		page.SiteID, page.URL, page.Title, page.Description, page.Category,
		page.RelevanceScore, page.Depth, page.MetadataHash, page.HeadingsHash,
		page.TextHash, page.ContentHash, page.LinksJSON, page.CanonicalURL,
		page.ETag, page.LastModified, page.HTTPStatus,
		page.FirstSeenAt.Unix(), page.LastSeenAt.Unix(), page.LastCheckedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert page %s: %w", page.URL, err)
	}

	var id, firstSeenAt int64
	if err := s.db.DB().QueryRowContext(ctx, `SELECT id, first_seen_at FROM pages WHERE site_id = ? AND url = ?`,
		page.SiteID, page.URL,
	).Scan(&id, &firstSeenAt); err != nil {
		return fmt.Errorf("failed to read back upserted page %s: %w", page.URL, err)
	}
	page.ID = id
	page.FirstSeenAt = time.Unix(firstSeenAt, 0)
	return nil
}

func (s *PageStorage) GetPageByURL(ctx context.Context, siteID int64, url string) (*models.Page, error) {
	row := s.db.DB().QueryRowContext(ctx, pageSelectColumns+` FROM pages WHERE site_id = ? AND url = ?`, siteID, url)
	page, err := scanPage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get page %s: %w", url, err)
	}
	return page, nil
}

func (s *PageStorage) ListActivePages(ctx context.Context, siteID int64) ([]*models.Page, error) {
	return s.queryPages(ctx, pageSelectColumns+` FROM pages WHERE site_id = ? AND is_active = 1 ORDER BY id ASC`, siteID)
}

func (s *PageStorage) ListActivePagesByRelevance(ctx context.Context, siteID int64) ([]*models.Page, error) {
	return s.queryPages(ctx, pageSelectColumns+` FROM pages WHERE site_id = ? AND is_active = 1
		ORDER BY relevance_score DESC, depth ASC`, siteID)
}

// ListAllPages returns every page row for siteID, active or not, so
// callers can tell a resurrected (previously deactivated) page apart from
// one seen for the first time.
func (s *PageStorage) ListAllPages(ctx context.Context, siteID int64) ([]*models.Page, error) {
	return s.queryPages(ctx, pageSelectColumns+` FROM pages WHERE site_id = ? ORDER BY id ASC`, siteID)
}

func (s *PageStorage) queryPages(ctx context.Context, query string, siteID int64) ([]*models.Page, error) {
	rows, err := s.db.DB().QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// DeactivatePagesNotIn marks every active page for siteID whose URL is not
// present in seenURLs as inactive, returning the URLs it deactivated.
func (s *PageStorage) DeactivatePagesNotIn(ctx context.Context, siteID int64, seenURLs map[string]bool) ([]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT url FROM pages WHERE site_id = ? AND is_active = 1`, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active pages for reconciliation: %w", err)
	}

	var toDeactivate []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan active page url: %w", err)
		}
		if !seenURLs[url] {
			toDeactivate = append(toDeactivate, url)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(toDeactivate) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin deactivation transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE pages SET is_active = 0 WHERE site_id = ? AND url = ?`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare deactivation statement: %w", err)
	}
	defer stmt.Close()

	for _, url := range toDeactivate {
		if _, err := stmt.ExecContext(ctx, siteID, url); err != nil {
			return nil, fmt.Errorf("failed to deactivate page %s: %w", url, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deactivation transaction: %w", err)
	}

	return toDeactivate, nil
}

const pageSelectColumns = `SELECT id, site_id, url, title, description, category, relevance_score, depth,
	metadata_hash, headings_hash, text_hash, content_hash, links_json, canonical_url,
	etag, last_modified, http_status, is_active, first_seen_at, last_seen_at, last_checked_at`

func scanPage(row rowScanner) (*models.Page, error) {
	var p models.Page
	var isActive int
	var firstSeenAt, lastSeenAt, lastCheckedAt int64

	err := row.Scan(
		&p.ID, &p.SiteID, &p.URL, &p.Title, &p.Description, &p.Category, &p.RelevanceScore, &p.Depth,
		&p.MetadataHash, &p.HeadingsHash, &p.TextHash, &p.ContentHash, &p.LinksJSON, &p.CanonicalURL,
		&p.ETag, &p.LastModified, &p.HTTPStatus, &isActive, &firstSeenAt, &lastSeenAt, &lastCheckedAt,
	)
	if err != nil {
		return nil, err
	}

	p.IsActive = isActive != 0
	p.FirstSeenAt = time.Unix(firstSeenAt, 0)
	p.LastSeenAt = time.Unix(lastSeenAt, 0)
	p.LastCheckedAt = time.Unix(lastCheckedAt, 0)
	return &p, nil
}
