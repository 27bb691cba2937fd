package api

import (
	"net/http"

	"parking-analyst/auth"
)

// handleListInsights lists insights within the caller's zones
func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	zoneIDs := user.ZoneIDs
	if zone := r.URL.Query().Get("zone_id"); zone != "" {
		if !user.HasZone(zone) {
			respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
			return
		}
		zoneIDs = []string{zone}
	}

	one, maxLimit := 1, 500
	insights, err := s.repo.ListInsights(r.Context(), zoneIDs, getIntParam(r, "limit", 100, &one, &maxLimit))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"insights": insights,
		"count":    len(insights),
	})
}

// handleListRecommendations lists recommendations within the caller's zones
func (s *Server) handleListRecommendations(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	zoneIDs := user.ZoneIDs
	if zone := r.URL.Query().Get("zone_id"); zone != "" {
		if !user.HasZone(zone) {
			respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
			return
		}
		zoneIDs = []string{zone}
	}

	one, maxLimit := 1, 500
	recs, err := s.repo.ListRecommendations(r.Context(), zoneIDs, getIntParam(r, "limit", 50, &one, &maxLimit))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// handleListZones lists the caller's zones
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	zones, err := s.repo.ListZones(r.Context(), user.ZoneIDs)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zones": zones,
		"count": len(zones),
	})
}

// handleZoneStats returns a zone's transaction aggregates and daypart mix
func (s *Server) handleZoneStats(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	zoneID := r.PathValue("id")

	if !user.HasZone(zoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	stats, err := s.metricsRepo.ZoneStats(r.Context(), zoneID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if stats == nil {
		respondWithError(w, http.StatusNotFound, "no transaction data for zone", nil)
		return
	}

	dayparts, err := s.metricsRepo.DaypartBreakdown(r.Context(), zoneID)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":    stats,
		"dayparts": dayparts,
	})
}
