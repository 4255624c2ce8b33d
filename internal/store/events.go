package store

import (
	"database/sql"
	"errors"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/uuid"
)

// SQLiteEventStore is the durable EventStore implementation.
// Removal is a soft cancel: the row is flagged, never deleted, so the
// calendar history survives and capacity counting stays cheap.
type SQLiteEventStore struct {
	db  *sql.DB
	clk clock.Clock
}

// NewSQLiteEventStore creates a SQLiteEventStore.
func NewSQLiteEventStore(db *sql.DB, clk clock.Clock) *SQLiteEventStore {
	return &SQLiteEventStore{db: db, clk: clk}
}

// Create inserts a new maintenance event.
func (s *SQLiteEventStore) Create(event *models.MaintenanceEvent) error {
	now := s.clk.Now().Unix()
	if event.ID == "" {
		event.ID = models.UUID(uuid.New())
	}
	if event.Status == "" {
		event.Status = models.EventStatusScheduled
	}
	event.CreatedAt = now
	event.UpdatedAt = now

	_, err := s.db.Exec(`
	INSERT INTO events (id, scheduled_date, scheduled_time, status, completed_at, technician,
		scheduler_name, scheduler_registration, description, cancelled, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.ScheduledDate, event.ScheduledTime, event.Status, event.CompletedAt,
		event.Technician, event.SchedulerName, event.SchedulerRegistration, event.Description,
		event.Cancelled, event.CreatedAt, event.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to create event", err)
	}
	return nil
}

// Get retrieves an event by id, cancelled or not.
func (s *SQLiteEventStore) Get(id models.UUID) (*models.MaintenanceEvent, error) {
	row := s.db.QueryRow(`
	SELECT id, scheduled_date, scheduled_time, status, completed_at, technician,
		scheduler_name, scheduler_registration, description, cancelled, created_at, updated_at
	FROM events WHERE id = ?`, id)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read event", err)
	}
	return ev, nil
}

// Update persists an event's mutable fields.
func (s *SQLiteEventStore) Update(event *models.MaintenanceEvent) error {
	event.UpdatedAt = s.clk.Now().Unix()
	res, err := s.db.Exec(`
	UPDATE events SET scheduled_date = ?, scheduled_time = ?, status = ?, completed_at = ?,
		technician = ?, description = ?, updated_at = ?
	WHERE id = ?`,
		event.ScheduledDate, event.ScheduledTime, event.Status, event.CompletedAt,
		event.Technician, event.Description, event.UpdatedAt, event.ID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to update event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "event not found: "+event.ID.String())
	}
	return nil
}

// Cancel soft-removes an event.
func (s *SQLiteEventStore) Cancel(id models.UUID) error {
	res, err := s.db.Exec("UPDATE events SET cancelled = 1, updated_at = ? WHERE id = ?",
		s.clk.Now().Unix(), id)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to cancel event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}
	return nil
}

// List returns non-cancelled events ordered by slot.
func (s *SQLiteEventStore) List() ([]*models.MaintenanceEvent, error) {
	rows, err := s.db.Query(`
	SELECT id, scheduled_date, scheduled_time, status, completed_at, technician,
		scheduler_name, scheduler_registration, description, cancelled, created_at, updated_at
	FROM events WHERE cancelled = 0 ORDER BY scheduled_date, scheduled_time, id`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list events", err)
	}
	defer rows.Close()

	var events []*models.MaintenanceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// CountSlot counts non-cancelled events occupying a (date, time) slot.
func (s *SQLiteEventStore) CountSlot(date, timeOfDay string, excludeID models.UUID) (int, error) {
	query := "SELECT COUNT(*) FROM events WHERE cancelled = 0 AND scheduled_date = ? AND scheduled_time = ?"
	args := []interface{}{date, timeOfDay}
	if excludeID != "" {
		query += " AND id != ?"
		args = append(args, excludeID)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrDatabase, "failed to count slot occupancy", err)
	}
	return count, nil
}

// AppendAudit records a justified reschedule.
func (s *SQLiteEventStore) AppendAudit(audit *models.RescheduleAudit) error {
	if audit.ID == "" {
		audit.ID = models.UUID(uuid.New())
	}
	audit.CreatedAt = s.clk.Now().Unix()

	_, err := s.db.Exec(`
	INSERT INTO reschedule_audit (id, event_id, actor, from_date, from_time, to_date, to_time, reason, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.EventID, audit.Actor, audit.FromDate, audit.FromTime,
		audit.ToDate, audit.ToTime, audit.Reason, audit.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to append reschedule audit", err)
	}
	return nil
}

// ListAudits returns an event's reschedule audit trail, oldest first.
func (s *SQLiteEventStore) ListAudits(eventID models.UUID) ([]*models.RescheduleAudit, error) {
	rows, err := s.db.Query(`
	SELECT id, event_id, actor, from_date, from_time, to_date, to_time, reason, created_at
	FROM reschedule_audit WHERE event_id = ? ORDER BY rowid`, eventID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to list reschedule audits", err)
	}
	defer rows.Close()

	var audits []*models.RescheduleAudit
	for rows.Next() {
		var a models.RescheduleAudit
		if err := rows.Scan(&a.ID, &a.EventID, &a.Actor, &a.FromDate, &a.FromTime,
			&a.ToDate, &a.ToTime, &a.Reason, &a.CreatedAt); err != nil {
			return nil, err
		}
		audits = append(audits, &a)
	}
	return audits, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*models.MaintenanceEvent, error) {
	var ev models.MaintenanceEvent
	var completedAt sql.NullInt64
	err := row.Scan(&ev.ID, &ev.ScheduledDate, &ev.ScheduledTime, &ev.Status, &completedAt,
		&ev.Technician, &ev.SchedulerName, &ev.SchedulerRegistration, &ev.Description,
		&ev.Cancelled, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		ev.CompletedAt = &completedAt.Int64
	}
	return &ev, nil
}

var _ EventStore = (*SQLiteEventStore)(nil)
