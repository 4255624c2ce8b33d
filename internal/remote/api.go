// Package remote provides the client for the fleet-maintenance system of
// record. The agent consumes exactly three operations: submit a checklist
// run (idempotent create), list runs, and update an event.
package remote

import (
	"context"

	"github.com/fleetworks/fieldsync/internal/models"
)

// EventPatch describes an update to a remote maintenance event.
// Nil fields are left unchanged.
type EventPatch struct {
	Status *models.EventStatus `json:"status,omitempty"`
	Date   *string             `json:"date,omitempty"`
	Time   *string             `json:"time,omitempty"`
}

// API is the remote system-of-record surface the agent depends on.
//
// SubmitRun must be idempotent: the run's natural key is passed as an
// idempotency key, and resubmitting a key the remote store already holds is
// a no-op success. The remote store serializes concurrent same-key writes
// (upsert, first write wins); the agent assumes that, it does not implement it.
type API interface {
	// SubmitRun creates a checklist run remotely, deduplicated by the
	// run's natural key.
	SubmitRun(ctx context.Context, run *models.ChecklistRun) error

	// ListRuns reads the remote list of checklist runs.
	ListRuns(ctx context.Context) ([]*models.ChecklistRun, error)

	// UpdateEvent applies a status/date/time patch to a remote event.
	UpdateEvent(ctx context.Context, eventID models.UUID, patch EventPatch) error
}
