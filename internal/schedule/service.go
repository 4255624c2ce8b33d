package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/logging"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/store"
)

// Service owns all maintenance-event mutation paths: it validates, applies
// the optimistic local commit to the event mirror, and queues the remote
// update intent. The queue enqueue is purely local, so every operation here
// succeeds or fails independent of network state.
type Service struct {
	events    store.EventStore
	queue     store.ActionQueue
	validator *Validator
	clk       clock.Clock
	tenant    string
}

// NewService creates a scheduling Service.
func NewService(events store.EventStore, queue store.ActionQueue, clk clock.Clock, tenant string) *Service {
	return &Service{
		events:    events,
		queue:     queue,
		validator: NewValidator(events),
		clk:       clk,
		tenant:    tenant,
	}
}

// Validator exposes the service's validator for read-only policy queries.
func (s *Service) Validator() *Validator {
	return s.validator
}

// Schedule creates a new maintenance event after validating slot capacity.
// Remote event creation is owned by the scheduling backend; this core only
// mirrors the event locally so validators and listings see it.
func (s *Service) Schedule(event *models.MaintenanceEvent) error {
	if event.ScheduledDate == "" || event.ScheduledTime == "" {
		return apperrors.New(apperrors.ErrInvalid, "scheduled date and time are required")
	}
	if _, err := time.Parse(models.DateLayout, event.ScheduledDate); err != nil {
		return apperrors.New(apperrors.ErrInvalid, "scheduled date must be YYYY-MM-DD")
	}
	if _, err := time.Parse(models.TimeLayout, event.ScheduledTime); err != nil {
		return apperrors.New(apperrors.ErrInvalid, "scheduled time must be HH:MM")
	}

	if err := s.validator.ValidateSlotCapacity(event.ScheduledDate, event.ScheduledTime, ""); err != nil {
		return err
	}

	event.Status = models.EventStatusScheduled
	event.Cancelled = false
	if err := s.events.Create(event); err != nil {
		return err
	}

	logging.Info("Visit scheduled", map[string]interface{}{
		"event_id": event.ID.String(),
		"slot":     event.Slot(),
	})
	return nil
}

// Start transitions an event to in_progress.
func (s *Service) Start(id models.UUID) (*models.MaintenanceEvent, error) {
	return s.setStatus(id, models.EventStatusInProgress)
}

// Complete transitions an event to completed and stamps the completion time.
func (s *Service) Complete(id models.UUID) (*models.MaintenanceEvent, error) {
	return s.setStatus(id, models.EventStatusCompleted)
}

func (s *Service) setStatus(id models.UUID, target models.EventStatus) (*models.MaintenanceEvent, error) {
	event, err := s.events.Get(id)
	if err != nil {
		return nil, err
	}
	if event.Cancelled {
		return nil, apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}

	now := s.clk.Now()
	if err := s.validator.ValidatePastImmutability(event, now, false); err != nil {
		return nil, err
	}

	event.Status = target
	if target == models.EventStatusCompleted {
		completedAt := now.Unix()
		event.CompletedAt = &completedAt
	}
	if err := s.events.Update(event); err != nil {
		return nil, err
	}

	if err := s.enqueueEventUpdate(event.ID, models.EventUpdatePayload{
		EventID: event.ID,
		Status:  &target,
	}); err != nil {
		return nil, err
	}
	return event, nil
}

// Reschedule moves an event to a new slot. For events due today or earlier
// this is the justified-reschedule path: the justification is recorded as a
// first-class audit entry and appended to the description with a timestamp
// marker.
func (s *Service) Reschedule(id models.UUID, newDate, newTime, justification, actor string) (*models.MaintenanceEvent, error) {
	event, err := s.events.Get(id)
	if err != nil {
		return nil, err
	}
	if event.Cancelled {
		return nil, apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}

	now := s.clk.Now()
	today := now.Format(models.DateLayout)
	justified := event.ScheduledDate <= today && strings.TrimSpace(justification) != ""

	// All checks run before any local write or enqueue; a rejection here
	// is an atomic no-op.
	if err := s.validator.ValidateRescheduleJustification(event, now, newDate, newTime, justification); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePastImmutability(event, now, justified); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateSlotCapacity(newDate, newTime, event.ID); err != nil {
		return nil, err
	}

	fromDate, fromTime := event.ScheduledDate, event.ScheduledTime
	event.ScheduledDate = newDate
	event.ScheduledTime = newTime

	if justified {
		if err := s.events.AppendAudit(&models.RescheduleAudit{
			EventID:  event.ID,
			Actor:    actor,
			FromDate: fromDate,
			FromTime: fromTime,
			ToDate:   newDate,
			ToTime:   newTime,
			Reason:   strings.TrimSpace(justification),
		}); err != nil {
			return nil, err
		}
		event.Description = appendRescheduleNote(event.Description, justification, now)
	}

	if err := s.events.Update(event); err != nil {
		return nil, err
	}

	if err := s.enqueueEventUpdate(event.ID, models.EventUpdatePayload{
		EventID: event.ID,
		Date:    &newDate,
		Time:    &newTime,
	}); err != nil {
		return nil, err
	}

	logging.Info("Visit rescheduled", map[string]interface{}{
		"event_id":  event.ID.String(),
		"from_slot": fromDate + " " + fromTime,
		"to_slot":   event.Slot(),
		"justified": justified,
	})
	return event, nil
}

// Remove soft-cancels an event. Past-immutable events reject removal.
func (s *Service) Remove(id models.UUID) error {
	event, err := s.events.Get(id)
	if err != nil {
		return err
	}
	if event.Cancelled {
		return apperrors.New(apperrors.ErrNotFound, "event not found: "+id.String())
	}

	if err := s.validator.ValidatePastImmutability(event, s.clk.Now(), false); err != nil {
		return err
	}
	return s.events.Cancel(id)
}

// Get returns an event by id.
func (s *Service) Get(id models.UUID) (*models.MaintenanceEvent, error) {
	return s.events.Get(id)
}

// List returns the non-cancelled calendar.
func (s *Service) List() ([]*models.MaintenanceEvent, error) {
	return s.events.List()
}

// Audits returns an event's reschedule audit trail.
func (s *Service) Audits(id models.UUID) ([]*models.RescheduleAudit, error) {
	return s.events.ListAudits(id)
}

func (s *Service) enqueueEventUpdate(id models.UUID, payload models.EventUpdatePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode event update", err)
	}
	_, err = s.queue.Enqueue(&models.OfflineAction{
		Endpoint: models.EndpointEvents + "/" + id.String(),
		Method:   "PATCH",
		Tenant:   s.tenant,
		Payload:  raw,
	})
	return err
}

// appendRescheduleNote appends the human-readable justification marker to an
// event description. The audit table is the authoritative record; this note
// keeps the justification visible wherever the description is displayed.
func appendRescheduleNote(description, justification string, now time.Time) string {
	note := fmt.Sprintf("[rescheduled %s] %s",
		now.UTC().Format(time.RFC3339), strings.TrimSpace(justification))
	if description == "" {
		return note
	}
	return description + "\n" + note
}
