package database

import (
	"context"
	"fmt"
	"time"

	"gigflow/internal/models"
)

const taskColumns = `id, task_type, gig_id, musician_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateCalendarTask(ctx context.Context, task *models.CalendarTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	query := `INSERT INTO calendar_queue (task_type, gig_id, musician_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.GigID,
		task.MusicianID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create calendar task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now

	return nil
}

func (db *DB) queryTasks(ctx context.Context, query string, args ...any) ([]models.CalendarTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.CalendarTask
	for rows.Next() {
		var t models.CalendarTask
		err := rows.Scan(
			&t.ID, &t.TaskType, &t.GigID, &t.MusicianID, &t.Payload, &t.Status, &t.RetryCount,
			&t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan calendar task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetPendingCalendarTasks returns tasks that are due, oldest first.
func (db *DB) GetPendingCalendarTasks(ctx context.Context, limit int) ([]models.CalendarTask, error) {
	return db.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM calendar_queue
         WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY created_at ASC, id ASC LIMIT ?`,
		time.Now().UTC(), limit)
}

// GetFailedCalendarTasks returns the tasks that ran out of retries, newest first.
func (db *DB) GetFailedCalendarTasks(ctx context.Context) ([]models.CalendarTask, error) {
	return db.queryTasks(ctx,
		`SELECT `+taskColumns+` FROM calendar_queue WHERE status = 'failed' ORDER BY created_at DESC`)
}

func (db *DB) UpdateCalendarTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now().UTC()
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	var next *time.Time
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		next = &utc
	}

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE calendar_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, next, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE calendar_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, next, now, id}
	default:
		query = `UPDATE calendar_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, next, id}
	}

	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update calendar task status: %w", err)
	}
	return nil
}

// ClaimCalendarTask moves a due task to processing. It reports false when
// another consumer already took it or it is no longer pending.
func (db *DB) ClaimCalendarTask(ctx context.Context, id int64) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE calendar_queue SET status = 'processing' WHERE id = ? AND status IN ('pending', 'retry')`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim calendar task: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

// RequeueProcessingCalendarTasks returns tasks left in processing by a
// stopped worker to the pending state.
func (db *DB) RequeueProcessingCalendarTasks(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx, `UPDATE calendar_queue SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue calendar tasks: %w", err)
	}
	return result.RowsAffected()
}
