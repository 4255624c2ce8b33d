package handlers

import (
	"net/http"

	"github.com/fleetworks/fieldsync/internal/reconcile"
)

// SyncHandler handles drain triggers and sync status reads. POST /api/sync
// is the explicit "sync now" action; the UI also hits it on tab focus and
// visibility-change revalidation.
type SyncHandler struct {
	engine *reconcile.Engine
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine *reconcile.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// SyncNow handles POST /api/sync: drains the pending mutation queue.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Drain(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Status handles GET /api/sync/status: per-status queue counts.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.QueueStats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"queue": stats,
	})
}

// RetryFailed handles POST /api/sync/retry-failed: requeues failed entries.
// Failed deliveries are never retried automatically; this is the explicit
// operator path back to pending.
func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.RequeueFailed()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requeued": count,
	})
}
