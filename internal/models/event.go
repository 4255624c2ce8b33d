// Package models provides data model definitions for the fieldsync agent.
package models

import (
	"fmt"
	"time"
)

// EventStatus is a status a writer may persist on a maintenance event.
// Derived states (tolerance, no_show) are never persisted; see the status package.
type EventStatus string

const (
	EventStatusScheduled  EventStatus = "scheduled"
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusCompleted  EventStatus = "completed"
)

// DateLayout is the calendar-date encoding used for scheduled dates and slot keys.
const DateLayout = "2006-01-02"

// TimeLayout is the time-of-day encoding used for scheduled times and slot keys.
const TimeLayout = "15:04"

// MaintenanceEvent represents a scheduled maintenance visit on the calendar.
type MaintenanceEvent struct {
	ID                    UUID        `db:"id" json:"id"`
	ScheduledDate         string      `db:"scheduled_date" json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime         string      `db:"scheduled_time" json:"scheduled_time"` // HH:MM
	Status                EventStatus `db:"status" json:"status"`
	CompletedAt           *int64      `db:"completed_at" json:"completed_at,omitempty"`
	Technician            string      `db:"technician" json:"technician"`
	SchedulerName         string      `db:"scheduler_name" json:"scheduler_name"`
	SchedulerRegistration string      `db:"scheduler_registration" json:"scheduler_registration"`
	Description           string      `db:"description" json:"description"`
	Cancelled             bool        `db:"cancelled" json:"cancelled"`
	CreatedAt             int64       `db:"created_at" json:"created_at"`
	UpdatedAt             int64       `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for MaintenanceEvent.
func (MaintenanceEvent) TableName() string {
	return "events"
}

// ScheduledAt combines the scheduled date and time-of-day into a wall-clock
// instant in the given location.
func (e *MaintenanceEvent) ScheduledAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, e.ScheduledDate+" "+e.ScheduledTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduled date/time %q %q: %w", e.ScheduledDate, e.ScheduledTime, err)
	}
	return t, nil
}

// Slot returns the calendar slot key (date + time-of-day) this event occupies.
func (e *MaintenanceEvent) Slot() string {
	return e.ScheduledDate + " " + e.ScheduledTime
}

// Touch updates the UpdatedAt timestamp.
func (e *MaintenanceEvent) Touch(now time.Time) {
	e.UpdatedAt = now.Unix()
}
