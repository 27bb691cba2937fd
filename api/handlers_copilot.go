package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"parking-analyst/auth"
	"parking-analyst/database"
)

// copilotThreadRequest opens a conversation thread
type copilotThreadRequest struct {
	ZoneID string `json:"zone_id"`
	Title  string `json:"title"`
}

// copilotAskRequest carries one question for a thread
type copilotAskRequest struct {
	Question string `json:"question"`
}

// handleCreateCopilotThread opens a new Q&A thread for a zone
func (s *Server) handleCreateCopilotThread(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req copilotThreadRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ZoneID == "" {
		respondWithError(w, http.StatusBadRequest, "zone_id is required", nil)
		return
	}

	thread, err := s.advisor.StartThread(r.Context(), user, req.ZoneID, req.Title)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, thread)
}

// handleListCopilotThreads lists threads within the caller's zones
func (s *Server) handleListCopilotThreads(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	one, maxLimit := 1, 200
	threads, err := s.copilotRepo.ListThreads(r.Context(), user.ZoneIDs,
		r.URL.Query().Get("zone_id"),
		getIntParam(r, "limit", 50, &one, &maxLimit))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threads": threads,
		"count":   len(threads),
	})
}

// handleGetCopilotThread returns one thread with its full conversation
func (s *Server) handleGetCopilotThread(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	thread, err := s.copilotRepo.GetThread(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(thread.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	messages, err := s.copilotRepo.ListMessages(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thread":   thread,
		"messages": messages,
	})
}

// handleSetCopilotThreadStatus transitions a thread between open and closed
func (s *Server) handleSetCopilotThreadStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Status != database.ThreadStatusOpen && req.Status != database.ThreadStatusClosed {
		respondWithError(w, http.StatusBadRequest, "status must be open or closed", nil)
		return
	}

	thread, err := s.copilotRepo.GetThread(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(thread.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	if err := s.copilotRepo.SetThreadStatus(r.Context(), id, req.Status); err != nil {
		respondWithDomainError(w, err)
		return
	}
	thread.Status = req.Status
	writeJSON(w, http.StatusOK, thread)
}

// handleAskCopilot answers one question in a thread as a single JSON
// response
func (s *Server) handleAskCopilot(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	var req copilotAskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reply, err := s.advisor.Ask(r.Context(), user, r.PathValue("id"), req.Question)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reply)
}

// handleAskCopilotStream answers one question over Server-Sent Events: one
// "chunk" event per answer fragment, then a "done" event carrying the
// persisted assistant message
func (s *Server) handleAskCopilotStream(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	var req copilotAskRequest
	if err := decodeJSONBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log.Printf("[SSE] Copilot stream opened for thread %s", id)

	wrote := false
	reply, err := s.advisor.AskStream(r.Context(), user, id, req.Question, func(chunk string) error {
		wrote = true
		sendSSEEvent(w, flusher, "chunk", map[string]string{"content": chunk})
		return nil
	})
	if err != nil {
		// Before the first chunk the response is still plain JSON territory
		if !wrote {
			w.Header().Del("Cache-Control")
			w.Header().Del("Connection")
			respondWithDomainError(w, err)
			return
		}
		sendSSEEvent(w, flusher, "error", map[string]string{"error": "answer interrupted"})
		return
	}

	sendSSEEvent(w, flusher, "done", reply)
	log.Printf("[SSE] Copilot stream closed for thread %s", id)
}

// handleDistillCopilotThread extracts durable memories from a thread
func (s *Server) handleDistillCopilotThread(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	memories, err := s.advisor.Distill(r.Context(), user, r.PathValue("id"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"memories": memories,
		"count":    len(memories),
	})
}

// handleListCopilotMemories lists active memories within the caller's zones
func (s *Server) handleListCopilotMemories(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	zoneIDs := user.ZoneIDs
	if zone := r.URL.Query().Get("zone_id"); zone != "" {
		if !user.HasZone(zone) {
			respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
			return
		}
		zoneIDs = []string{zone}
	}

	one, maxLimit := 1, 200
	memories, err := s.copilotRepo.ListMemories(r.Context(), zoneIDs,
		r.URL.Query().Get("kind"),
		getIntParam(r, "limit", 50, &one, &maxLimit))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"memories": memories,
		"count":    len(memories),
	})
}

// handleDeleteCopilotMemory deactivates a memory so it stops feeding
// prompts
func (s *Server) handleDeleteCopilotMemory(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	memory, err := s.copilotRepo.GetMemory(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !user.HasZone(memory.ZoneID) {
		respondWithError(w, http.StatusForbidden, "zone not accessible", nil)
		return
	}

	if err := s.copilotRepo.DeactivateMemory(r.Context(), id); err != nil {
		respondWithDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// sendSSEEvent writes one Server-Sent Event and flushes it to the client
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[SSE] Error marshaling %s event: %v", event, err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
