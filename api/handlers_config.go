package api

import (
	"encoding/json"
	"net/http"

	"parking-analyst/auth"
	"parking-analyst/database"
)

// guardrailView exposes the rule JSON without double encoding
type guardrailView struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Rules     json.RawMessage `json:"rules"`
	IsActive  bool            `json:"is_active"`
	CreatedAt interface{}     `json:"created_at"`
}

// handleListGuardrails lists all guardrail rule sets
func (s *Server) handleListGuardrails(w http.ResponseWriter, r *http.Request) {
	records, err := s.guardrailRepo.List(r.Context())
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	views := make([]guardrailView, 0, len(records))
	for _, rec := range records {
		views = append(views, guardrailView{
			ID:        rec.ID,
			Name:      rec.Name,
			Rules:     json.RawMessage(rec.Rules),
			IsActive:  rec.IsActive,
			CreatedAt: rec.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"guardrails": views,
		"count":      len(views),
	})
}

// handleToggleGuardrail activates or deactivates a guardrail by name
func (s *Server) handleToggleGuardrail(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if !user.HasRole(approverRole) {
		respondWithError(w, http.StatusForbidden, "approver role required", nil)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	name := r.PathValue("name")
	if err := s.guardrailRepo.SetActive(r.Context(), name, req.Active); err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":   name,
		"active": req.Active,
	})
}

// handleRefresh triggers the daily refresh for the caller's zones.
// force=true bypasses the freshness check and surfaces sub-job failures.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		respondWithError(w, http.StatusServiceUnavailable, "refresh not available", nil)
		return
	}

	user := auth.UserFromContext(r.Context())
	force := r.URL.Query().Get("force") == "true"

	report, err := s.refresh(r.Context(), user.ZoneIDs, force)
	if err != nil {
		// A forced refresh reports partial completion alongside the error
		if report != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"error":  err.Error(),
				"report": report,
			})
			return
		}
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleGetWebhooks lists registered webhook destinations
func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.repo.ListWebhooks(r.Context())
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"webhooks": webhooks,
		"count":    len(webhooks),
	})
}

// handleCreateWebhook registers a webhook destination
func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var hook database.AlertWebhook
	if err := decodeJSONBody(r, &hook); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if hook.Name == "" || hook.URL == "" {
		respondWithError(w, http.StatusBadRequest, "name and url are required", nil)
		return
	}
	hook.IsActive = true

	if err := s.repo.CreateWebhook(r.Context(), &hook); err != nil {
		respondWithDomainError(w, err)
		return
	}

	s.webhookMgr.RefreshCache()
	writeJSON(w, http.StatusCreated, hook)
}
