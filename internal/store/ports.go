// Package store provides the persistence ports for the fieldsync agent and
// their SQLite implementations.
//
// The ports exist so the reconciliation engine and the scheduling service can
// be exercised against in-memory doubles; the SQLite implementations are what
// the agent wires in production. All local stores are exclusively owned by
// this device — the only shared resource is the remote API.
package store

import "github.com/fleetworks/fieldsync/internal/models"

// ActionQueue is the durable mutation queue: a write-ahead log of outbound
// delivery intents. Enqueue is a purely local write and never fails because
// of network state. Drain order is FIFO.
type ActionQueue interface {
	// Enqueue records a delivery intent and returns its id.
	Enqueue(action *models.OfflineAction) (models.UUID, error)

	// ListPending returns pending actions in FIFO order.
	ListPending() ([]*models.OfflineAction, error)

	// MarkSynced transitions an action pending -> synced.
	MarkSynced(id models.UUID) error

	// MarkFailed transitions an action pending -> failed and increments its
	// retry counter. Failed actions stay inspectable but are excluded from
	// future drains.
	MarkFailed(id models.UUID) error

	// RequeueFailed resets all failed actions to pending and returns how
	// many were reset. This is the explicit, user-triggered retry path.
	RequeueFailed() (int, error)

	// Stats returns per-status action counts.
	Stats() (map[models.ActionStatus]int, error)
}

// RunLedger is the local ledger of checklist-completion records.
// Key collisions are tolerated at write time; deduplication happens only at
// read time in the reconciliation engine.
type RunLedger interface {
	// Append records a run. The caller sets status (normally pending).
	Append(run *models.ChecklistRun) error

	// List returns all runs ordered by completion time descending.
	List() ([]*models.ChecklistRun, error)

	// ListByStatus returns runs with the given status, completion desc.
	ListByStatus(status models.RunStatus) ([]*models.ChecklistRun, error)

	// UpdateStatusByKey transitions every record matching the natural key.
	UpdateStatusByKey(sourceID, completedAt string, status models.RunStatus) error
}

// SnapshotCache is the bounded cross-tab cache of confirmed records.
// Write replaces the whole list; entries are never individually mutated.
type SnapshotCache interface {
	// Write replaces the cached list, most-recent-first, capped at
	// models.SnapshotCap entries.
	Write(entries []models.SyncSnapshotEntry) error

	// Read returns the cached list. A cache that fails to parse is
	// discarded and reseeded empty; Read never fails on corrupt state.
	Read() ([]models.SyncSnapshotEntry, error)
}

// EventStore is the local mirror of the maintenance calendar consulted by
// the capacity and immutability validators.
type EventStore interface {
	Create(event *models.MaintenanceEvent) error
	Get(id models.UUID) (*models.MaintenanceEvent, error)
	Update(event *models.MaintenanceEvent) error

	// Cancel soft-removes an event. Cancelled events are excluded from
	// listings and capacity counts but retained as history.
	Cancel(id models.UUID) error

	// List returns non-cancelled events ordered by slot.
	List() ([]*models.MaintenanceEvent, error)

	// CountSlot counts non-cancelled events in a (date, time) slot,
	// excluding excludeID when non-empty.
	CountSlot(date, timeOfDay string, excludeID models.UUID) (int, error)

	// AppendAudit records a justified reschedule. Append-only.
	AppendAudit(audit *models.RescheduleAudit) error

	// ListAudits returns an event's reschedule audit trail, oldest first.
	ListAudits(eventID models.UUID) ([]*models.RescheduleAudit, error)
}
