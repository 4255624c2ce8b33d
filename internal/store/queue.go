package store

import (
	"database/sql"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/uuid"
)

// SQLiteQueue is the durable ActionQueue implementation.
// FIFO order is the sqlite insertion order (rowid).
type SQLiteQueue struct {
	db  *sql.DB
	clk clock.Clock
}

// NewSQLiteQueue creates a SQLiteQueue.
func NewSQLiteQueue(db *sql.DB, clk clock.Clock) *SQLiteQueue {
	return &SQLiteQueue{db: db, clk: clk}
}

// Enqueue records a delivery intent. This is a purely local write.
func (q *SQLiteQueue) Enqueue(action *models.OfflineAction) (models.UUID, error) {
	now := q.clk.Now().Unix()
	if action.ID == "" {
		action.ID = models.UUID(uuid.New())
	}
	action.Status = models.ActionStatusPending
	action.RetryCount = 0
	action.CreatedAt = now
	action.UpdatedAt = now

	_, err := q.db.Exec(`
	INSERT INTO offline_actions (id, endpoint, method, tenant, payload, status, retry_count, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.Endpoint, action.Method, action.Tenant, string(action.Payload),
		action.Status, action.RetryCount, action.CreatedAt, action.UpdatedAt)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to enqueue action", err)
	}
	return action.ID, nil
}

// ListPending returns pending actions in FIFO order.
func (q *SQLiteQueue) ListPending() ([]*models.OfflineAction, error) {
	rows, err := q.db.Query(`
	SELECT id, endpoint, method, tenant, payload, status, retry_count, created_at, updated_at
	FROM offline_actions WHERE status = ? ORDER BY rowid`, models.ActionStatusPending)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list pending actions", err)
	}
	defer rows.Close()

	return scanActions(rows)
}

// MarkSynced transitions an action pending -> synced.
func (q *SQLiteQueue) MarkSynced(id models.UUID) error {
	return q.setStatus(id, models.ActionStatusSynced, false)
}

// MarkFailed transitions an action pending -> failed and bumps retry_count.
func (q *SQLiteQueue) MarkFailed(id models.UUID) error {
	return q.setStatus(id, models.ActionStatusFailed, true)
}

func (q *SQLiteQueue) setStatus(id models.UUID, status models.ActionStatus, bumpRetry bool) error {
	query := "UPDATE offline_actions SET status = ?, updated_at = ? WHERE id = ?"
	if bumpRetry {
		query = "UPDATE offline_actions SET status = ?, updated_at = ?, retry_count = retry_count + 1 WHERE id = ?"
	}
	res, err := q.db.Exec(query, status, q.clk.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update action status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "queue entry not found: "+id.String())
	}
	return nil
}

// RequeueFailed resets all failed actions to pending.
func (q *SQLiteQueue) RequeueFailed() (int, error) {
	res, err := q.db.Exec(
		"UPDATE offline_actions SET status = ?, updated_at = ? WHERE status = ?",
		models.ActionStatusPending, q.clk.Now().Unix(), models.ActionStatusFailed)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to requeue failed actions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Stats returns per-status action counts.
func (q *SQLiteQueue) Stats() (map[models.ActionStatus]int, error) {
	rows, err := q.db.Query("SELECT status, COUNT(*) FROM offline_actions GROUP BY status")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read queue stats", err)
	}
	defer rows.Close()

	stats := map[models.ActionStatus]int{
		models.ActionStatusPending: 0,
		models.ActionStatusSynced:  0,
		models.ActionStatusFailed:  0,
	}
	for rows.Next() {
		var status models.ActionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanActions(rows *sql.Rows) ([]*models.OfflineAction, error) {
	var actions []*models.OfflineAction
	for rows.Next() {
		var a models.OfflineAction
		var payload string
		if err := rows.Scan(&a.ID, &a.Endpoint, &a.Method, &a.Tenant, &payload,
			&a.Status, &a.RetryCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Payload = []byte(payload)
		actions = append(actions, &a)
	}
	return actions, rows.Err()
}

var _ ActionQueue = (*SQLiteQueue)(nil)
