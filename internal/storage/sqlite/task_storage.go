package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/llmstxt-crawler/internal/interfaces"
	"github.com/ternarybob/llmstxt-crawler/internal/models"
	"github.com/ternarybob/llmstxt-crawler/internal/services/queue"
)

// TaskStorage implements interfaces.CrawlTaskQueue against SQLite, using a
// single-connection, lease-based claim protocol so multiple worker
// goroutines (and, given modernc.org/sqlite, multiple processes) never
// observe the same task as claimed.
type TaskStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new SQLite-backed durable task queue.
func NewTaskStorage(db *SQLiteDB, logger arbor.ILogger) *TaskStorage {
	return &TaskStorage{db: db, logger: logger}
}

func (s *TaskStorage) Enqueue(ctx context.Context, siteID, crawlJobID int64, opts interfaces.EnqueueOptions) (*models.CrawlTask, error) {
	priority := opts.Priority
	if priority == 0 {
		priority = 100
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 5
	}

	now := time.Now()

	if opts.IdempotencyKey != "" {
		existing, err := s.getByIdempotencyKey(ctx, opts.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency key %s: %w", opts.IdempotencyKey, err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	var idempotencyKey interface{}
	if opts.IdempotencyKey != "" {
		idempotencyKey = opts.IdempotencyKey
	}

	result, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO crawl_tasks (
			site_id, crawl_job_id, status, priority, attempt_count, max_attempts,
			available_at, lease_owner, idempotency_key, payload_json, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, ?, ?, '', ?, ?, '', ?, ?)`,
		siteID, crawlJobID, models.TaskStatusQueued, priority, maxAttempts,
		now.Unix(), idempotencyKey, opts.PayloadJSON, now.Unix(), now.Unix(),
	)
	if err != nil {
		// A concurrent enqueue may have raced us on the unique idempotency
		// index; re-check rather than surfacing a constraint violation.
		if opts.IdempotencyKey != "" {
			if existing, lookupErr := s.getByIdempotencyKey(ctx, opts.IdempotencyKey); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to enqueue crawl task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new task id: %w", err)
	}

	return s.getByID(ctx, id)
}

func (s *TaskStorage) FindByIdempotencyKey(ctx context.Context, key string) (*models.CrawlTask, error) {
	return s.getByIdempotencyKey(ctx, key)
}

func (s *TaskStorage) getByIdempotencyKey(ctx context.Context, key string) (*models.CrawlTask, error) {
	row := s.db.DB().QueryRowContext(ctx, taskSelectColumns+` FROM crawl_tasks WHERE idempotency_key = ?`, key)
	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

func (s *TaskStorage) getByID(ctx context.Context, id int64) (*models.CrawlTask, error) {
	row := s.db.DB().QueryRowContext(ctx, taskSelectColumns+` FROM crawl_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("task %d not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return task, nil
}

// Claim atomically reserves the highest-priority, oldest eligible task for
// workerID. Another caller can select the same id between the SELECT and
// the UPDATE; the UPDATE re-checks status and availability, so only one
// caller's UPDATE affects the row and the other gets nil, nil.
func (s *TaskStorage) Claim(ctx context.Context, workerID string, leaseDuration time.Duration) (*models.CrawlTask, error) {
	now := time.Now()

	var id int64
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT id FROM crawl_tasks
		WHERE status IN (?, ?) AND available_at <= ?
		ORDER BY priority ASC, created_at ASC
		LIMIT 1`,
		models.TaskStatusQueued, models.TaskStatusFailed, now.Unix(),
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to select claimable task: %w", err)
	}

	leasedUntil := now.Add(leaseDuration)
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE crawl_tasks SET
			status = ?, lease_owner = ?, leased_until = ?,
			attempt_count = attempt_count + 1, updated_at = ?
		WHERE id = ? AND status IN (?, ?) AND available_at <= ?`,
		models.TaskStatusRunning, workerID, leasedUntil.Unix(), now.Unix(),
		id, models.TaskStatusQueued, models.TaskStatusFailed, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim task %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to confirm claim of task %d: %w", id, err)
	}
	if affected == 0 {
		// Lost the race to another caller between SELECT and UPDATE.
		return nil, nil
	}

	return s.getByID(ctx, id)
}

func (s *TaskStorage) Heartbeat(ctx context.Context, taskID int64, workerID string, leaseDuration time.Duration) (bool, error) {
	leasedUntil := time.Now().Add(leaseDuration)
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE crawl_tasks SET leased_until = ?, updated_at = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		leasedUntil.Unix(), time.Now().Unix(), taskID, models.TaskStatusRunning, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to heartbeat task %d: %w", taskID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm heartbeat of task %d: %w", taskID, err)
	}
	return affected > 0, nil
}

func (s *TaskStorage) Complete(ctx context.Context, taskID int64, workerID string) (bool, error) {
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE crawl_tasks SET status = ?, updated_at = ?
		WHERE id = ? AND status = ? AND lease_owner = ?`,
		models.TaskStatusCompleted, time.Now().Unix(), taskID, models.TaskStatusRunning, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete task %d: %w", taskID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to confirm completion of task %d: %w", taskID, err)
	}
	return affected > 0, nil
}

func (s *TaskStorage) Fail(ctx context.Context, taskID int64, workerID, errorMessage string) (*models.CrawlTask, error) {
	task, err := s.getByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskStatusRunning || task.LeaseOwner != workerID {
		return task, fmt.Errorf("worker %s does not hold the lease on task %d", workerID, taskID)
	}

	now := time.Now()
	if task.AttemptCount >= task.MaxAttempts {
		_, err := s.db.DB().ExecContext(ctx, `
			UPDATE crawl_tasks SET status = ?, last_error = ?, lease_owner = '', leased_until = NULL, updated_at = ?
			WHERE id = ?`,
			models.TaskStatusDeadLetter, errorMessage, now.Unix(), taskID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to move task %d to dead letter: %w", taskID, err)
		}
		return s.getByID(ctx, taskID)
	}

	retryDelay := queue.ComputeRetryDelay(task.AttemptCount)
	availableAt := now.Add(retryDelay)

	_, err = s.db.DB().ExecContext(ctx, `
		UPDATE crawl_tasks SET status = ?, last_error = ?, lease_owner = '', leased_until = NULL,
			available_at = ?, updated_at = ?
		WHERE id = ?`,
		models.TaskStatusFailed, errorMessage, availableAt.Unix(), now.Unix(), taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue task %d: %w", taskID, err)
	}
	return s.getByID(ctx, taskID)
}

func (s *TaskStorage) RecoverExpired(ctx context.Context) (int, error) {
	now := time.Now()
	result, err := s.db.DB().ExecContext(ctx, `
		UPDATE crawl_tasks SET
			status = ?, last_error = ?, lease_owner = '', leased_until = NULL,
			available_at = ?, updated_at = ?
		WHERE status = ? AND leased_until IS NOT NULL AND leased_until < ?`,
		models.TaskStatusFailed, models.LeaseExpiredError, now.Unix(), now.Unix(),
		models.TaskStatusRunning, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to recover expired task leases: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count recovered task leases: %w", err)
	}
	return int(affected), nil
}

const taskSelectColumns = `SELECT id, site_id, crawl_job_id, status, priority, attempt_count,
	max_attempts, available_at, leased_until, lease_owner, idempotency_key, payload_json,
	last_error, created_at, updated_at`

func scanTask(row rowScanner) (*models.CrawlTask, error) {
	var t models.CrawlTask
	var availableAt, createdAt, updatedAt int64
	var leasedUntil sql.NullInt64
	var idempotencyKey sql.NullString

	err := row.Scan(
		&t.ID, &t.SiteID, &t.CrawlJobID, &t.Status, &t.Priority, &t.AttemptCount,
		&t.MaxAttempts, &availableAt, &leasedUntil, &t.LeaseOwner, &idempotencyKey,
		&t.PayloadJSON, &t.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AvailableAt = time.Unix(availableAt, 0)
	if leasedUntil.Valid {
		lu := time.Unix(leasedUntil.Int64, 0)
		t.LeasedUntil = &lu
	}
	if idempotencyKey.Valid {
		t.IdempotencyKey = idempotencyKey.String
	}
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return &t, nil
}
