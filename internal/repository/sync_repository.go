package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

const syncColumns = `id, table_name, record_id, operation, status, attempts, last_error, next_retry_at, created_at, synced_at`

// SyncRepository manages the outbound sync queue.
type SyncRepository struct {
	db *sqlx.DB
}

// NewSyncRepository constructs a SyncRepository.
func NewSyncRepository(db *sqlx.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

// insertSyncTask enqueues a task inside the caller's transaction.
func insertSyncTask(ctx context.Context, tx *sqlx.Tx, task *models.SyncTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO sync_queue (id, table_name, record_id, operation, status, attempts, last_error, next_retry_at, created_at, synced_at)
        VALUES (:id, :table_name, :record_id, :operation, :status, :attempts, :last_error, :next_retry_at, :created_at, :synced_at)`
	if _, err := tx.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("enqueue sync task: %w", err)
	}
	return nil
}

// ListDue returns pending tasks and failed tasks whose backoff elapsed.
func (r *SyncRepository) ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]models.SyncTask, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.Rebind(fmt.Sprintf(`SELECT %s FROM sync_queue
        WHERE (status = ? OR (status = ? AND attempts < ?))
        AND (next_retry_at IS NULL OR next_retry_at <= ?)
        ORDER BY created_at ASC LIMIT %d`, syncColumns, limit))
	var tasks []models.SyncTask
	if err := r.db.SelectContext(ctx, &tasks, query, models.SyncStatusPending, models.SyncStatusFailed, maxAttempts, now); err != nil {
		return nil, fmt.Errorf("list due sync tasks: %w", err)
	}
	return tasks, nil
}

// MarkSynced completes a task.
func (r *SyncRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE sync_queue SET status = ?, synced_at = ?, last_error = NULL, next_retry_at = NULL WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.SyncStatusSynced, at, id); err != nil {
		return fmt.Errorf("mark sync task synced: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt and when the task may be retried.
func (r *SyncRepository) MarkFailed(ctx context.Context, id string, attempts int, reason string, nextRetryAt time.Time) error {
	query := r.db.Rebind(`UPDATE sync_queue SET status = ?, attempts = ?, last_error = ?, next_retry_at = ? WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, models.SyncStatusFailed, attempts, reason, nextRetryAt, id); err != nil {
		return fmt.Errorf("mark sync task failed: %w", err)
	}
	return nil
}

// Stats counts tasks per status.
func (r *SyncRepository) Stats(ctx context.Context) (models.SyncStats, error) {
	var rows []struct {
		Status models.SyncStatus `db:"status"`
		Count  int               `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS count FROM sync_queue GROUP BY status`); err != nil {
		return models.SyncStats{}, fmt.Errorf("sync queue stats: %w", err)
	}
	var stats models.SyncStats
	for _, row := range rows {
		switch row.Status {
		case models.SyncStatusPending:
			stats.Pending = row.Count
		case models.SyncStatusSynced:
			stats.Synced = row.Count
		case models.SyncStatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}
