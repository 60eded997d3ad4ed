package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// handleListGoals returns active goals, optionally filtered by session.
// Goals are ordered by priority (highest first), then creation time.
func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "goal store not configured")
		return
	}

	sessionID := uuid.Nil
	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		sessionID = id
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	goals, err := s.store.GetActiveGoals(r.Context(), sessionID, limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"goals": goals,
		"count": len(goals),
	})
}

// handleGetGoal returns one goal by ID.
func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "goal store not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "goalID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid goal ID")
		return
	}

	goal, err := s.store.GetGoal(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, goal)
}

type setPriorityRequest struct {
	Priority int    `json:"priority"`
	Reason   string `json:"reason,omitempty"`
}

// handleSetGoalPriority manually re-prioritizes a goal. The change is
// recorded in the goal's metadata audit trail.
func (s *Server) handleSetGoalPriority(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "goal store not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "goalID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid goal ID")
		return
	}

	var req setPriorityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Priority < 1 || req.Priority > 5 {
		respondError(w, http.StatusBadRequest, "priority must be between 1 and 5")
		return
	}

	audit := map[string]interface{}{
		"source":   "api",
		"priority": req.Priority,
	}
	if req.Reason != "" {
		audit["reason"] = req.Reason
	}

	if err := s.store.UpdateGoalPriority(r.Context(), id, req.Priority, audit); err != nil {
		respondDomainError(w, err)
		return
	}

	goal, err := s.store.GetGoal(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, goal)
}
