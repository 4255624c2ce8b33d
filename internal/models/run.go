// Package models provides data model definitions for the fieldsync agent.
package models

import "time"

// RunStatus is the lifecycle status of a checklist run record.
type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusSynced  RunStatus = "synced"
	RunStatusFailed  RunStatus = "failed"
)

// ChecklistRun represents one completed maintenance checklist.
//
// The (SourceID, CompletedAt) pair is the natural key: it identifies one
// logical run regardless of which system first recorded it, and doubles as
// the idempotency key for remote submission.
type ChecklistRun struct {
	ID             UUID      `db:"id" json:"id"`
	SourceID       string    `db:"source_id" json:"source_id"`
	CompletedAt    string    `db:"completed_at" json:"completed_at"` // RFC 3339 UTC
	Technician     string    `db:"technician" json:"technician"`
	ItemsCompleted int       `db:"items_completed" json:"items_completed"`
	ItemsTotal     int       `db:"items_total" json:"items_total"`
	Notes          string    `db:"notes" json:"notes"`
	Status         RunStatus `db:"status" json:"status"`
	CreatedAt      int64     `db:"created_at" json:"created_at"`
	UpdatedAt      int64     `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for ChecklistRun.
func (ChecklistRun) TableName() string {
	return "checklist_runs"
}

// NaturalKey returns the dedup key for this run.
func (r *ChecklistRun) NaturalKey() string {
	return NaturalKey(r.SourceID, r.CompletedAt)
}

// NaturalKey builds the dedup/idempotency key from a run's identifying pair.
func NaturalKey(sourceID, completedAt string) string {
	return sourceID + "::" + completedAt
}

// Touch updates the UpdatedAt timestamp.
func (r *ChecklistRun) Touch(now time.Time) {
	r.UpdatedAt = now.Unix()
}
