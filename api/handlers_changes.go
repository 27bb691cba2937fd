package api

import (
	"net/http"

	"parking-analyst/auth"
	"parking-analyst/database"
	"parking-analyst/database/changes"
	"parking-analyst/guardrails"
	"parking-analyst/notifications"
)

// approverRole is required to apply or revert a price change
const approverRole = "approver"

// handleValidateChange dry-runs guardrail validation without persisting
func (s *Server) handleValidateChange(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req guardrails.ChangeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ZoneID == "" {
		respondWithError(w, http.StatusBadRequest, "zone_id is required", nil)
		return
	}
	if !user.HasZone(req.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	result := s.validator.Validate(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

// handleCreateChange validates and persists a pending price change. An
// invalid change is rejected with the full violation list, never stored.
func (s *Server) handleCreateChange(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req guardrails.ChangeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ZoneID == "" || req.NewPrice <= 0 {
		respondWithError(w, http.StatusBadRequest, "zone_id and a positive new_price are required", nil)
		return
	}
	if !user.HasZone(req.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	result := s.validator.Validate(r.Context(), req)
	if !result.IsValid {
		s.webhookMgr.Notify(notifications.EventGuardrailViolation, req.ZoneID,
			"Price change rejected: "+result.Reason, result)
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	change := &database.PriceChange{
		ZoneID:           req.ZoneID,
		PrevPrice:        req.PrevPrice,
		NewPrice:         req.NewPrice,
		ChangePct:        req.ChangePct,
		RecommendationID: req.RecommendationID,
	}
	if err := s.changeRepo.Create(r.Context(), change); err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"change":     change,
		"validation": result,
	})
}

// handleListChanges lists price changes within the caller's zones
func (s *Server) handleListChanges(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	one, maxLimit := 1, 200
	list, total, err := s.changeRepo.List(r.Context(), changes.ListFilter{
		ZoneIDs: user.ZoneIDs,
		Zone:    r.URL.Query().Get("zone_id"),
		Status:  r.URL.Query().Get("status"),
		Limit:   getIntParam(r, "limit", 50, &one, &maxLimit),
		Offset:  getIntParam(r, "offset", 0, nil, nil),
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changes": list,
		"total":   total,
	})
}

// handleGetChange returns one price change
func (s *Server) handleGetChange(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	change, err := s.changeRepo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(change.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	writeJSON(w, http.StatusOK, change)
}

// handleApplyChange transitions a pending change to applied
func (s *Server) handleApplyChange(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if !user.HasRole(approverRole) {
		respondWithError(w, http.StatusForbidden, "approver role required", nil)
		return
	}

	id := r.PathValue("id")
	change, err := s.changeRepo.GetByID(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(change.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	applied, err := s.changeRepo.Apply(r.Context(), id, user.Sub)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	s.broker.Broadcast("change.applied", applied)
	s.webhookMgr.Notify(notifications.EventChangeApplied, applied.ZoneID,
		"Price change applied for zone "+applied.ZoneID, applied)
	writeJSON(w, http.StatusOK, applied)
}

// handleRevertChange transitions an applied change back to reverted
func (s *Server) handleRevertChange(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if !user.HasRole(approverRole) {
		respondWithError(w, http.StatusForbidden, "approver role required", nil)
		return
	}

	id := r.PathValue("id")
	change, err := s.changeRepo.GetByID(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(change.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	reverted, err := s.changeRepo.Revert(r.Context(), id, user.Sub)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	s.broker.Broadcast("change.reverted", reverted)
	writeJSON(w, http.StatusOK, reverted)
}
