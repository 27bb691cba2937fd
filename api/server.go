// Package api exposes the analyst's HTTP surface: experiments, price
// changes, insights, recommendations, guardrails and the manual refresh
// trigger. All /api routes require a bearer token; zone-scoped responses are
// filtered to the caller's entitlements.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"parking-analyst/auth"
	"parking-analyst/copilot"
	"parking-analyst/database"
	"parking-analyst/database/changes"
	dbcopilot "parking-analyst/database/copilot"
	"parking-analyst/database/experiments"
	dbguardrails "parking-analyst/database/guardrails"
	"parking-analyst/database/metrics"
	"parking-analyst/guardrails"
	"parking-analyst/notifications"
	"parking-analyst/probe"
	"parking-analyst/realtime"
)

// RefreshFunc triggers the daily refresh for a zone set. Defined here so the
// server never has to import the coordinator's package.
type RefreshFunc func(ctx context.Context, zoneIDs []string, force bool) (interface{}, error)

// Server handles HTTP API requests
type Server struct {
	repo           *database.AnalystRepository
	changeRepo     *changes.Repository
	experimentRepo *experiments.Repository
	guardrailRepo  *dbguardrails.Repository
	metricsRepo    *metrics.Repository
	copilotRepo    *dbcopilot.Repository

	validator  *guardrails.Evaluator
	scheduler  *probe.Scheduler
	probeEval  *probe.Evaluator
	advisor    *copilot.Advisor
	webhookMgr *notifications.WebhookManager
	broker     *realtime.Broker
	verifier   *auth.Verifier
	refresh    RefreshFunc
}

// NewServer creates a new API server instance
func NewServer(
	repo *database.AnalystRepository,
	changeRepo *changes.Repository,
	experimentRepo *experiments.Repository,
	guardrailRepo *dbguardrails.Repository,
	metricsRepo *metrics.Repository,
	copilotRepo *dbcopilot.Repository,
	validator *guardrails.Evaluator,
	scheduler *probe.Scheduler,
	probeEval *probe.Evaluator,
	advisor *copilot.Advisor,
	webhookMgr *notifications.WebhookManager,
	broker *realtime.Broker,
	verifier *auth.Verifier,
) *Server {
	return &Server{
		repo:           repo,
		changeRepo:     changeRepo,
		experimentRepo: experimentRepo,
		guardrailRepo:  guardrailRepo,
		metricsRepo:    metricsRepo,
		copilotRepo:    copilotRepo,
		validator:      validator,
		scheduler:      scheduler,
		probeEval:      probeEval,
		advisor:        advisor,
		webhookMgr:     webhookMgr,
		broker:         broker,
		verifier:       verifier,
	}
}

// SetRefreshFunc injects the daily refresh trigger
func (s *Server) SetRefreshFunc(fn RefreshFunc) {
	s.refresh = fn
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	api := http.NewServeMux()

	// Experiment routes
	api.HandleFunc("POST /api/experiments", s.handleScheduleExperiment)
	api.HandleFunc("GET /api/experiments", s.handleListExperiments)
	api.HandleFunc("GET /api/experiments/{id}", s.handleGetExperiment)
	api.HandleFunc("POST /api/experiments/{id}/evaluate", s.handleEvaluateExperiment)
	api.HandleFunc("GET /api/experiments/{id}/results", s.handleGetExperimentResults)

	// Price change routes
	api.HandleFunc("POST /api/changes/validate", s.handleValidateChange)
	api.HandleFunc("POST /api/changes", s.handleCreateChange)
	api.HandleFunc("GET /api/changes", s.handleListChanges)
	api.HandleFunc("GET /api/changes/{id}", s.handleGetChange)
	api.HandleFunc("POST /api/changes/{id}/apply", s.handleApplyChange)
	api.HandleFunc("POST /api/changes/{id}/revert", s.handleRevertChange)

	// Insight and recommendation routes
	api.HandleFunc("GET /api/insights", s.handleListInsights)
	api.HandleFunc("GET /api/recommendations", s.handleListRecommendations)

	// Zone routes
	api.HandleFunc("GET /api/zones", s.handleListZones)
	api.HandleFunc("GET /api/zones/{id}/stats", s.handleZoneStats)

	// Guardrail routes
	api.HandleFunc("GET /api/guardrails", s.handleListGuardrails)
	api.HandleFunc("PUT /api/guardrails/{name}/active", s.handleToggleGuardrail)

	// Copilot routes
	api.HandleFunc("POST /api/copilot/threads", s.handleCreateCopilotThread)
	api.HandleFunc("GET /api/copilot/threads", s.handleListCopilotThreads)
	api.HandleFunc("GET /api/copilot/threads/{id}", s.handleGetCopilotThread)
	api.HandleFunc("PUT /api/copilot/threads/{id}/status", s.handleSetCopilotThreadStatus)
	api.HandleFunc("POST /api/copilot/threads/{id}/ask", s.handleAskCopilot)
	api.HandleFunc("POST /api/copilot/threads/{id}/ask/stream", s.handleAskCopilotStream)
	api.HandleFunc("POST /api/copilot/threads/{id}/distill", s.handleDistillCopilotThread)
	api.HandleFunc("GET /api/copilot/memories", s.handleListCopilotMemories)
	api.HandleFunc("DELETE /api/copilot/memories/{id}", s.handleDeleteCopilotMemory)

	// Refresh trigger
	api.HandleFunc("POST /api/refresh", s.handleRefresh)

	// Webhook management routes
	api.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	api.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.verifier.Middleware(api))
	mux.Handle("GET /ws", s.broker) // WebSocket event feed
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Handlers are distributed across multiple files:
// - handlers_experiments.go: elasticity probe scheduling and evaluation
// - handlers_changes.go: price change lifecycle and guardrail validation
// - handlers_insights.go: insights, recommendations, zones
// - handlers_copilot.go: copilot threads, Q&A (JSON + SSE), memories
// - handlers_config.go: guardrails, webhooks, manual refresh
