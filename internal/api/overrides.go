package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createOverrideRequest struct {
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Duration   string                 `json:"duration,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
}

// handleCreateOverride registers a new manual override.
func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	if s.overrides == nil {
		respondError(w, http.StatusServiceUnavailable, "override registry not configured")
		return
	}

	var req createOverrideRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Target == "" || req.Action == "" {
		respondError(w, http.StatusBadRequest, "target and action are required")
		return
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid duration")
			return
		}
		duration = d
	}

	id := s.overrides.Create(req.Target, req.Action, req.Parameters, duration, req.Reason)
	override, err := s.overrides.Get(id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, override)
}

// handleListOverrides returns all active overrides.
func (s *Server) handleListOverrides(w http.ResponseWriter, _ *http.Request) {
	if s.overrides == nil {
		respondError(w, http.StatusServiceUnavailable, "override registry not configured")
		return
	}

	active := s.overrides.ListActive()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": active,
		"count":     len(active),
	})
}

// handleGetOverride returns one override by ID.
func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	if s.overrides == nil {
		respondError(w, http.StatusServiceUnavailable, "override registry not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "overrideID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid override ID")
		return
	}

	override, err := s.overrides.Get(id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, override)
}

// handleApplyOverride applies an override's effect and reports the outcome.
func (s *Server) handleApplyOverride(w http.ResponseWriter, r *http.Request) {
	if s.overrides == nil {
		respondError(w, http.StatusServiceUnavailable, "override registry not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "overrideID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid override ID")
		return
	}

	result := s.overrides.Apply(id)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}

	respondJSON(w, status, map[string]interface{}{
		"success": result.Success,
		"message": result.Message,
	})
}

// handleRevokeOverride revokes an override before its expiry.
func (s *Server) handleRevokeOverride(w http.ResponseWriter, r *http.Request) {
	if s.overrides == nil {
		respondError(w, http.StatusServiceUnavailable, "override registry not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "overrideID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid override ID")
		return
	}

	if !s.overrides.Revoke(id) {
		respondError(w, http.StatusNotFound, "override not found or already revoked")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": "revoked",
	})
}
