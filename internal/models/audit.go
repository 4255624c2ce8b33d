// Package models provides data model definitions for the fieldsync agent.
package models

import "time"

// RescheduleAudit records one justified reschedule of a maintenance event.
// It is append-only: a justified reschedule writes exactly one entry and
// entries are never updated or deleted.
type RescheduleAudit struct {
	ID        UUID   `db:"id" json:"id"`
	EventID   UUID   `db:"event_id" json:"event_id"`
	Actor     string `db:"actor" json:"actor"`
	FromDate  string `db:"from_date" json:"from_date"`
	FromTime  string `db:"from_time" json:"from_time"`
	ToDate    string `db:"to_date" json:"to_date"`
	ToTime    string `db:"to_time" json:"to_time"`
	Reason    string `db:"reason" json:"reason"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// TableName returns the table name for RescheduleAudit.
func (RescheduleAudit) TableName() string {
	return "reschedule_audit"
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (a *RescheduleAudit) CreatedAtTime() time.Time {
	return time.Unix(a.CreatedAt, 0)
}
