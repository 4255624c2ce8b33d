package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fleetworks/fieldsync/internal/clock"
	apperrors "github.com/fleetworks/fieldsync/internal/errors"
	"github.com/fleetworks/fieldsync/internal/models"
	"github.com/fleetworks/fieldsync/internal/reconcile"
	"github.com/fleetworks/fieldsync/internal/store"
)

// ChecklistHandler handles checklist-run recording and reads.
type ChecklistHandler struct {
	ledger store.RunLedger
	queue  store.ActionQueue
	engine *reconcile.Engine
	clk    clock.Clock
	tenant string
}

// NewChecklistHandler creates a ChecklistHandler.
func NewChecklistHandler(ledger store.RunLedger, queue store.ActionQueue, engine *reconcile.Engine, clk clock.Clock, tenant string) *ChecklistHandler {
	return &ChecklistHandler{
		ledger: ledger,
		queue:  queue,
		engine: engine,
		clk:    clk,
		tenant: tenant,
	}
}

// Record handles POST /api/checklist-runs.
//
// The run is committed optimistically: it lands in the local ledger as
// pending and a delivery intent is queued, both purely local writes. The
// response is 202 regardless of connectivity — the UI shows "saved locally,
// pending sync" until a drain confirms delivery.
func (h *ChecklistHandler) Record(w http.ResponseWriter, r *http.Request) {
	var request struct {
		SourceID       string `json:"source_id"`
		CompletedAt    string `json:"completed_at"`
		Technician     string `json:"technician"`
		ItemsCompleted int    `json:"items_completed"`
		ItemsTotal     int    `json:"items_total"`
		Notes          string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "invalid request body", err))
		return
	}

	if request.SourceID == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "source_id is required"))
		return
	}
	if request.CompletedAt == "" {
		request.CompletedAt = h.clk.Now().UTC().Format(time.RFC3339)
	} else if _, err := time.Parse(time.RFC3339, request.CompletedAt); err != nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "completed_at must be RFC 3339"))
		return
	}

	run := &models.ChecklistRun{
		SourceID:       request.SourceID,
		CompletedAt:    request.CompletedAt,
		Technician:     request.Technician,
		ItemsCompleted: request.ItemsCompleted,
		ItemsTotal:     request.ItemsTotal,
		Notes:          request.Notes,
		Status:         models.RunStatusPending,
	}

	if err := h.ledger.Append(run); err != nil {
		writeError(w, err)
		return
	}

	payload, err := json.Marshal(run)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInternal, "failed to encode run", err))
		return
	}
	if _, err := h.queue.Enqueue(&models.OfflineAction{
		Endpoint: models.EndpointRuns,
		Method:   "POST",
		Tenant:   h.tenant,
		Payload:  payload,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"run":     run,
		"status":  string(models.RunStatusPending),
		"message": "saved locally, pending sync",
	})
}

// List handles GET /api/checklist-runs: the consolidated, deduplicated view
// across the remote API, the ledger, and the snapshot cache.
func (h *ChecklistHandler) List(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.Consolidated(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.ChecklistRun{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"total": len(runs),
	})
}

// ListLocal handles GET /api/checklist-runs/local: the raw ledger, pending
// records included, completion desc.
func (h *ChecklistHandler) ListLocal(w http.ResponseWriter, r *http.Request) {
	runs, err := h.ledger.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*models.ChecklistRun{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"total": len(runs),
	})
}
