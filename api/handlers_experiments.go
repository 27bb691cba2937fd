package api

import (
	"encoding/json"
	"net/http"

	"parking-analyst/auth"
	"parking-analyst/database/experiments"
	"parking-analyst/probe"
)

// handleScheduleExperiment creates a new elasticity probe
func (s *Server) handleScheduleExperiment(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req probe.ScheduleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ZoneID == "" || req.Daypart == "" {
		respondWithError(w, http.StatusBadRequest, "zone_id and daypart are required", nil)
		return
	}
	if req.Dow < 0 || req.Dow > 6 {
		respondWithError(w, http.StatusBadRequest, "dow must be 0-6", nil)
		return
	}

	result, err := s.scheduler.Schedule(r.Context(), user, req)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	s.broker.Broadcast("experiment.scheduled", result)
	writeJSON(w, http.StatusCreated, result)
}

// handleListExperiments lists experiments within the caller's zones
func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	one, maxLimit := 1, 200
	list, err := s.experimentRepo.ListExperiments(r.Context(), experiments.ListFilter{
		ZoneIDs: user.ZoneIDs,
		Zone:    r.URL.Query().Get("zone_id"),
		Status:  r.URL.Query().Get("status"),
		Limit:   getIntParam(r, "limit", 50, &one, &maxLimit),
	})
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"experiments": list,
		"count":       len(list),
	})
}

// handleGetExperiment returns one experiment with its arms
func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	exp, err := s.experimentRepo.GetExperiment(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(exp.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	arms, err := s.experimentRepo.GetArms(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	// Surface arm proposals as structured JSON, not double-encoded strings
	type armView struct {
		ID       string          `json:"id"`
		Delta    float64         `json:"delta"`
		Control  bool            `json:"control"`
		Proposal json.RawMessage `json:"proposal"`
	}
	armViews := make([]armView, 0, len(arms))
	for _, arm := range arms {
		armViews = append(armViews, armView{
			ID:       arm.ID,
			Delta:    arm.Delta,
			Control:  arm.Control,
			Proposal: json.RawMessage(arm.Proposal),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"experiment": exp,
		"arms":       armViews,
	})
}

// handleEvaluateExperiment computes and persists per-arm metrics
func (s *Server) handleEvaluateExperiment(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	exp, err := s.experimentRepo.GetExperiment(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(exp.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	evaluation, err := s.probeEval.Evaluate(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	s.broker.Broadcast("experiment.evaluated", evaluation)
	s.webhookMgr.Notify("experiment.evaluated", exp.ZoneID,
		"Experiment "+id+" evaluated", evaluation)
	writeJSON(w, http.StatusOK, evaluation)
}

// handleGetExperimentResults returns stored evaluation rows
func (s *Server) handleGetExperimentResults(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	exp, err := s.experimentRepo.GetExperiment(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(exp.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	results, err := s.experimentRepo.ListResults(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"experiment_id": id,
		"status":        exp.Status,
		"results":       results,
	})
}
