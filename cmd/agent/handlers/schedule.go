package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/schedule"
	"github.com/fleetworks/fieldsync/internal/status"
)

// ScheduleBroadcaster notifies other tabs of calendar changes.
type ScheduleBroadcaster interface {
	ScheduleUpdated(eventID string)
}

// ScheduleHandler handles maintenance-event operations.
type ScheduleHandler struct {
	service *schedule.Service
	clk     clock.Clock
	hub     ScheduleBroadcaster
}

// NewScheduleHandler creates a ScheduleHandler.
func NewScheduleHandler(service *schedule.Service, clk clock.Clock) *ScheduleHandler {
	return &ScheduleHandler{service: service, clk: clk}
}

// SetBroadcaster sets the cross-tab broadcaster.
func (h *ScheduleHandler) SetBroadcaster(hub ScheduleBroadcaster) {
	h.hub = hub
}

// eventView decorates an event with its effective status at read time.
type eventView struct {
	*models.MaintenanceEvent
	EffectiveStatus status.Status `json:"effective_status"`
}

func (h *ScheduleHandler) view(ev *models.MaintenanceEvent) eventView {
	return eventView{
		MaintenanceEvent: ev,
		EffectiveStatus:  status.Effective(ev, h.clk.Now()),
	}
}

// Create handles POST /api/events.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ScheduledDate         string `json:"scheduled_date"`
		ScheduledTime         string `json:"scheduled_time"`
		Technician            string `json:"technician"`
		SchedulerName         string `json:"scheduler_name"`
		SchedulerRegistration string `json:"scheduler_registration"`
		Description           string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}

	event := &models.MaintenanceEvent{
		ScheduledDate:         request.ScheduledDate,
		ScheduledTime:         request.ScheduledTime,
		Technician:            request.Technician,
		SchedulerName:         request.SchedulerName,
		SchedulerRegistration: request.SchedulerRegistration,
		Description:           request.Description,
	}
	if err := h.service.Schedule(event); err != nil {
		writeError(w, err)
		return
	}

	h.broadcast(event.ID)
	writeJSON(w, http.StatusCreated, h.view(event))
}

// List handles GET /api/events.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.List()
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, h.view(ev))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": views,
		"total":  len(views),
	})
}

// Get handles GET /api/events/{id}.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.Get(models.UUID(r.PathValue("id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(event))
}

// Start handles POST /api/events/{id}/start.
func (h *ScheduleHandler) Start(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.Start(models.UUID(r.PathValue("id")))
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast(event.ID)
	writeJSON(w, http.StatusOK, h.view(event))
}

// Complete handles POST /api/events/{id}/complete.
func (h *ScheduleHandler) Complete(w http.ResponseWriter, r *http.Request) {
	event, err := h.service.Complete(models.UUID(r.PathValue("id")))
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast(event.ID)
	writeJSON(w, http.StatusOK, h.view(event))
}

// Reschedule handles POST /api/events/{id}/reschedule.
func (h *ScheduleHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ScheduledDate string `json:"scheduled_date"`
		ScheduledTime string `json:"scheduled_time"`
		Justification string `json:"justification"`
		Actor         string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}

	event, err := h.service.Reschedule(models.UUID(r.PathValue("id")),
		request.ScheduledDate, request.ScheduledTime, request.Justification, request.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast(event.ID)
	writeJSON(w, http.StatusOK, h.view(event))
}

// Remove handles DELETE /api/events/{id}.
func (h *ScheduleHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id := models.UUID(r.PathValue("id"))
	if err := h.service.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	h.broadcast(id)
	w.WriteHeader(http.StatusNoContent)
}

// Audits handles GET /api/events/{id}/audits.
func (h *ScheduleHandler) Audits(w http.ResponseWriter, r *http.Request) {
	audits, err := h.service.Audits(models.UUID(r.PathValue("id")))
	if err != nil {
		writeError(w, err)
		return
	}
	if audits == nil {
		audits = []*models.RescheduleAudit{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audits": audits,
		"total":  len(audits),
	})
}

func (h *ScheduleHandler) broadcast(id models.UUID) {
	if h.hub != nil {
		h.hub.ScheduleUpdated(id.String())
	}
}
