package sqlite

// schemaSQL creates every table and index this module needs, applied
// idempotently with IF NOT EXISTS so repeated startups are safe.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	root_url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites(id),
	url TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	relevance_score REAL NOT NULL DEFAULT 0,
	depth INTEGER NOT NULL DEFAULT 0,
	metadata_hash TEXT NOT NULL DEFAULT '',
	headings_hash TEXT NOT NULL DEFAULT '',
	text_hash TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT '',
	links_json TEXT NOT NULL DEFAULT '',
	canonical_url TEXT NOT NULL DEFAULT '',
	etag TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	http_status INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	first_seen_at INTEGER NOT NULL,
	last_seen_at INTEGER NOT NULL,
	last_checked_at INTEGER NOT NULL,
	UNIQUE(site_id, url)
);
CREATE INDEX IF NOT EXISTS idx_pages_site_active ON pages(site_id, is_active);
CREATE INDEX IF NOT EXISTS idx_pages_site_relevance ON pages(site_id, relevance_score DESC, depth ASC);

CREATE TABLE IF NOT EXISTS crawl_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites(id),
	status TEXT NOT NULL DEFAULT 'pending',
	max_depth INTEGER NOT NULL DEFAULT 0,
	max_pages INTEGER NOT NULL DEFAULT 200,
	pages_found INTEGER NOT NULL DEFAULT 0,
	pages_crawled INTEGER NOT NULL DEFAULT 0,
	pages_changed INTEGER NOT NULL DEFAULT 0,
	pages_added INTEGER NOT NULL DEFAULT 0,
	pages_updated INTEGER NOT NULL DEFAULT 0,
	pages_removed INTEGER NOT NULL DEFAULT 0,
	pages_unchanged INTEGER NOT NULL DEFAULT 0,
	pages_skipped INTEGER NOT NULL DEFAULT 0,
	llms_regenerated INTEGER NOT NULL DEFAULT 1,
	change_summary_json TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_crawl_jobs_site ON crawl_jobs(site_id, created_at DESC);

CREATE TABLE IF NOT EXISTS crawl_tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites(id),
	crawl_job_id INTEGER NOT NULL REFERENCES crawl_jobs(id),
	status TEXT NOT NULL DEFAULT 'queued',
	priority INTEGER NOT NULL DEFAULT 100,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 5,
	available_at INTEGER NOT NULL,
	leased_until INTEGER,
	lease_owner TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT,
	payload_json TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_crawl_tasks_claim ON crawl_tasks(status, available_at, priority, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_crawl_tasks_idempotency ON crawl_tasks(idempotency_key) WHERE idempotency_key IS NOT NULL;

CREATE TABLE IF NOT EXISTS generated_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL REFERENCES sites(id),
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generated_files_site ON generated_files(site_id, created_at DESC);

CREATE TABLE IF NOT EXISTS monitoring_schedules (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id INTEGER NOT NULL UNIQUE REFERENCES sites(id),
	cron_expression TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	last_run_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitoring_schedules_active ON monitoring_schedules(is_active);
`

// InitSchema applies schemaSQL against the open connection.
func (s *SQLiteDB) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}
