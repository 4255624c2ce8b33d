package store

import (
	"database/sql"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/uuid"
)

// SQLiteLedger is the durable RunLedger implementation.
//
// Appends never reject a colliding natural key: two tabs recording the same
// completion both land here, and the reconciliation engine deduplicates at
// read time.
type SQLiteLedger struct {
	db  *sql.DB
	clk clock.Clock
}

// NewSQLiteLedger creates a SQLiteLedger.
func NewSQLiteLedger(db *sql.DB, clk clock.Clock) *SQLiteLedger {
	return &SQLiteLedger{db: db, clk: clk}
}

// Append records a run.
func (l *SQLiteLedger) Append(run *models.ChecklistRun) error {
	now := l.clk.Now().Unix()
	if run.ID == "" {
		run.ID = models.UUID(uuid.New())
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}
	run.CreatedAt = now
	run.UpdatedAt = now

	_, err := l.db.Exec(`
	INSERT INTO checklist_runs (id, source_id, completed_at, technician, items_completed, items_total, notes, status, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SourceID, run.CompletedAt, run.Technician, run.ItemsCompleted,
		run.ItemsTotal, run.Notes, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to append checklist run", err)
	}
	return nil
}

// List returns all runs ordered by completion time descending.
func (l *SQLiteLedger) List() ([]*models.ChecklistRun, error) {
	return l.query(`
	SELECT id, source_id, completed_at, technician, items_completed, items_total, notes, status, created_at, updated_at
	FROM checklist_runs ORDER BY completed_at DESC, rowid DESC`)
}

// ListByStatus returns runs with the given status, completion desc.
func (l *SQLiteLedger) ListByStatus(status models.RunStatus) ([]*models.ChecklistRun, error) {
	return l.query(`
	SELECT id, source_id, completed_at, technician, items_completed, items_total, notes, status, created_at, updated_at
	FROM checklist_runs WHERE status = ? ORDER BY completed_at DESC, rowid DESC`, status)
}

// UpdateStatusByKey transitions every record matching the natural key.
func (l *SQLiteLedger) UpdateStatusByKey(sourceID, completedAt string, status models.RunStatus) error {
	_, err := l.db.Exec(
		"UPDATE checklist_runs SET status = ?, updated_at = ? WHERE source_id = ? AND completed_at = ?",
		status, l.clk.Now().Unix(), sourceID, completedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update run status", err)
	}
	return nil
}

func (l *SQLiteLedger) query(q string, args ...interface{}) ([]*models.ChecklistRun, error) {
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list checklist runs", err)
	}
	defer rows.Close()

	var runs []*models.ChecklistRun
	for rows.Next() {
		var r models.ChecklistRun
		if err := rows.Scan(&r.ID, &r.SourceID, &r.CompletedAt, &r.Technician,
			&r.ItemsCompleted, &r.ItemsTotal, &r.Notes, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

var _ RunLedger = (*SQLiteLedger)(nil)
