package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
)

// handleQueryEvents returns memory events, newest first.
func (s *Server) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "goal store not configured")
		return
	}

	var q core.EventQuery
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		q.SessionID = id
	}
	if raw := r.URL.Query().Get("goal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid goal_id")
			return
		}
		q.GoalID = id
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		q.Since = t
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	evts, err := s.store.QueryEvents(r.Context(), q)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": evts,
		"count":  len(evts),
	})
}

type memoryExportRequest struct {
	SessionID string `json:"session_id"`
}

// handleMemoryExport writes a snapshot of a session's goals and events to
// the snapshot directory and returns the file path.
func (s *Server) handleMemoryExport(w http.ResponseWriter, r *http.Request) {
	var req memoryExportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session_id")
		return
	}

	path, err := s.sessions.ExportMemory(r.Context(), sessionID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": sessionID.String(),
		"path":       path,
	})
}

type memoryImportRequest struct {
	Path string `json:"path"`
}

// handleMemoryImport replays a snapshot file into the store.
func (s *Server) handleMemoryImport(w http.ResponseWriter, r *http.Request) {
	var req memoryImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	result, err := s.sessions.ImportMemory(r.Context(), req.Path)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
