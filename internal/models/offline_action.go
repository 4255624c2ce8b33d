// Package models provides data model definitions for the fieldsync agent.
package models

import (
	"encoding/json"
	"time"
)

// ActionStatus is the lifecycle status of a queued offline action.
type ActionStatus string

const (
	ActionStatusPending ActionStatus = "pending"
	ActionStatusSynced  ActionStatus = "synced"
	ActionStatusFailed  ActionStatus = "failed"
)

// Well-known queue endpoints. The drain dispatches on these.
const (
	EndpointRuns   = "/api/runs"
	EndpointEvents = "/api/events"
)

// OfflineAction represents a pending outbound write intent.
//
// Enqueueing is a purely local write: it records the intent to deliver and
// never fails because of network state. Entries are never physically deleted;
// they transition pending -> synced or pending -> failed and are retained as
// history.
type OfflineAction struct {
	ID         UUID            `db:"id" json:"id"`
	Endpoint   string          `db:"endpoint" json:"endpoint"`
	Method     string          `db:"method" json:"method"`
	Tenant     string          `db:"tenant" json:"tenant"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Status     ActionStatus    `db:"status" json:"status"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for OfflineAction.
func (OfflineAction) TableName() string {
	return "offline_actions"
}

// EventUpdatePayload is the payload carried by a queued update-event action.
type EventUpdatePayload struct {
	EventID UUID         `json:"event_id"`
	Status  *EventStatus `json:"status,omitempty"`
	Date    *string      `json:"date,omitempty"`
	Time    *string      `json:"time,omitempty"`
}

// Touch updates the UpdatedAt timestamp.
func (a *OfflineAction) Touch(now time.Time) {
	a.UpdatedAt = now.Unix()
}
