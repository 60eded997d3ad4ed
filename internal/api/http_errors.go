package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// respondError sends a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps a domain error category to an HTTP status.
func respondDomainError(w http.ResponseWriter, err error) {
	var derr *core.DomainError
	if !errors.As(err, &derr) {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch derr.Category {
	case core.ErrCatValidation:
		status = http.StatusBadRequest
	case core.ErrCatNotFound:
		status = http.StatusNotFound
	case core.ErrCatSafety:
		status = http.StatusForbidden
	case core.ErrCatState:
		status = http.StatusConflict
	case core.ErrCatTimeout:
		status = http.StatusGatewayTimeout
	case core.ErrCatLLM, core.ErrCatVision, core.ErrCatAction, core.ErrCatStore:
		status = http.StatusBadGateway
	}

	respondJSON(w, status, map[string]string{
		"error": derr.Message,
		"code":  derr.Code,
	})
}
