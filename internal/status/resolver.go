// Package status derives an event's effective operational status from
// wall-clock time.
//
// The derivation is a pure function of (event, now): nothing is ever
// persisted, and re-evaluating later with a later now can legitimately
// change the answer with no write having occurred. Callers must treat that
// as expected behavior, not as a bug.
package status

import (
	"time"

	"github.com/fleetworks/fieldsync/internal/models"
)

// Status is an event's effective operational status. It extends the
// persisted statuses with the two derived states.
type Status string

const (
	Scheduled  Status = "scheduled"
	InProgress Status = "in_progress"
	Completed  Status = "completed"

	// Tolerance is the grace window after the scheduled time during which
	// a not-yet-started visit is not yet classified as a no-show.
	Tolerance Status = "tolerance"

	// NoShow marks a visit whose tolerance window has elapsed without the
	// visit starting. Derived only, never written.
	NoShow Status = "no_show"
)

// ToleranceWindow is the grace period after the scheduled time.
const ToleranceWindow = 15 * time.Minute

// Effective resolves an event's effective status at the instant now.
//
// A persisted status other than scheduled is authoritative and returned
// unchanged. For scheduled events the derivation only applies on the
// scheduled calendar day, compared in now's location:
//
//	delta < 0                  -> scheduled (visit not due yet)
//	0 <= delta <= 15 minutes   -> tolerance
//	delta > 15 minutes         -> no_show
func Effective(event *models.MaintenanceEvent, now time.Time) Status {
	switch event.Status {
	case models.EventStatusInProgress:
		return InProgress
	case models.EventStatusCompleted:
		return Completed
	}

	if now.Format(models.DateLayout) != event.ScheduledDate {
		return Scheduled
	}

	scheduledAt, err := event.ScheduledAt(now.Location())
	if err != nil {
		// Unparseable slot data: the event can only be reported as it
		// is persisted.
		return Scheduled
	}

	delta := now.Sub(scheduledAt)
	switch {
	case delta < 0:
		return Scheduled
	case delta <= ToleranceWindow:
		return Tolerance
	default:
		return NoShow
	}
}
