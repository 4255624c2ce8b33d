// Package schedule enforces the calendar's capacity and immutability policy
// and owns the event mutation paths that feed the mutation queue.
package schedule

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/store"
)

// SlotCapacity is the maximum number of non-cancelled events per
// (date, time-of-day) slot.
const SlotCapacity = 2

// Validator enforces the scheduling invariants. Every create/update/move
// call site must run the relevant checks before any local mutation or queue
// enqueue; a rejection leaves no state behind.
type Validator struct {
	events store.EventStore
}

// NewValidator creates a Validator over the shared event store.
func NewValidator(events store.EventStore) *Validator {
	return &Validator{events: events}
}

// ValidateSlotCapacity rejects a write that would push a slot past
// SlotCapacity. excludeID (when non-empty) names an event being moved, so
// its current occupancy does not count against its own destination.
//
// Each participant validates independently against the shared store, so two
// tabs racing for the last place in a slot cannot both observe room for two
// more: the store serializes the counts.
func (v *Validator) ValidateSlotCapacity(date, timeOfDay string, excludeID models.UUID) error {
	count, err := v.events.CountSlot(date, timeOfDay, excludeID)
	if err != nil {
		return err
	}
	if count >= SlotCapacity {
		return apperrors.New(apperrors.ErrSlotCapacity,
			fmt.Sprintf("slot %s %s already has %d scheduled visits", date, timeOfDay, count))
	}
	return nil
}

// ValidatePastImmutability rejects mutating transitions on protected events:
//   - a completed event is fully immutable
//   - an event scheduled strictly before today (and not completed) is
//     read-only, except for the justified-reschedule path
//
// justifiedReschedule marks the one permitted escape hatch.
func (v *Validator) ValidatePastImmutability(event *models.MaintenanceEvent, now time.Time, justifiedReschedule bool) error {
	if event.Status == models.EventStatusCompleted {
		return apperrors.New(apperrors.ErrPastImmutable, "completed visits cannot be modified")
	}
	if event.ScheduledDate < now.Format(models.DateLayout) && !justifiedReschedule {
		return apperrors.New(apperrors.ErrPastImmutable,
			"past visits can only be read or rescheduled with a justification")
	}
	return nil
}

// ValidateRescheduleJustification requires a non-empty justification whenever
// a not-completed event scheduled today-or-earlier changes slot.
func (v *Validator) ValidateRescheduleJustification(event *models.MaintenanceEvent, now time.Time, newDate, newTime, justification string) error {
	if event.Status == models.EventStatusCompleted {
		return apperrors.New(apperrors.ErrPastImmutable, "completed visits cannot be rescheduled")
	}

	slotChanging := newDate != event.ScheduledDate || newTime != event.ScheduledTime
	if !slotChanging {
		return nil
	}
	if event.ScheduledDate > now.Format(models.DateLayout) {
		return nil
	}
	if strings.TrimSpace(justification) == "" {
		return apperrors.New(apperrors.ErrJustificationRequired,
			"rescheduling a visit due today or earlier requires a justification")
	}
	return nil
}
