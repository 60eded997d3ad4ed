package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/pilot/internal/service"
)

// handleCreateSession starts a new agent session and returns it immediately;
// the run continues in the background.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req service.SessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.sessions.StartSession(req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, session)
}

// handleListSessions returns all known sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": s.sessions.ListSessions(),
	})
}

// handleGetSession returns one session by ID.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	session, err := s.sessions.GetSession(id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// handleClearSession deletes a session's persisted goals and events.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	if err := s.sessions.ClearSession(r.Context(), id); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"session_id": id.String(),
		"status":     "cleared",
	})
}

// handleAgentStatus reports the most recent session's progress.
func (s *Server) handleAgentStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.sessions.Status())
}
