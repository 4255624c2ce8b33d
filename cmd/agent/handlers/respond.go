// Package handlers provides the REST surface the UI layer calls. These are
// the agent's entry points: UI event handlers and revalidation triggers all
// land here.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/fleetworks/fieldsync/internal/errors"
)

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an application error to an HTTP response. Validation
// rejections are operator-facing and carry the code and message through.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	case apperrors.ErrSlotCapacity, apperrors.ErrPastImmutable, apperrors.ErrJustificationRequired:
		status = http.StatusConflict
	case apperrors.ErrNetworkTransient:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"code":    string(code),
		"message": err.Error(),
	})
}
