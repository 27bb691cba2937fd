// Package notifications delivers analyst events to registered webhook
// destinations.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"parking-analyst/cache"
	"parking-analyst/database"
)

// Analyst event names carried in webhook payloads and event filters
const (
	EventGuardrailViolation  = "guardrail.violation"
	EventExperimentEvaluated = "experiment.evaluated"
	EventRefreshCompleted    = "refresh.completed"
	EventChangeApplied       = "change.applied"
)

// WebhookStore supplies webhook destinations and records deliveries
type WebhookStore interface {
	GetActiveWebhooks(ctx context.Context) ([]database.AlertWebhook, error)
	SaveWebhookLog(ctx context.Context, entry *database.AlertWebhookLog) error
}

// WebhookManager handles webhook notifications
type WebhookManager struct {
	store  WebhookStore
	redis  *cache.RedisClient
	client *http.Client
}

// WebhookPayload is the JSON body sent to webhook destinations
type WebhookPayload struct {
	Event   string      `json:"event"`
	SentAt  time.Time   `json:"sent_at"`
	ZoneID  string      `json:"zone_id,omitempty"`
	Message string      `json:"message"`
	Detail  interface{} `json:"detail,omitempty"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(store WebhookStore, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		store: store,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify delivers an event to every matching active webhook. Delivery is
// asynchronous; callers never block on remote endpoints.
func (wm *WebhookManager) Notify(event, zoneID, message string, detail interface{}) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payload := WebhookPayload{
		Event:   event,
		SentAt:  time.Now().UTC(),
		ZoneID:  zoneID,
		Message: message,
		Detail:  detail,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range webhooks {
		if wm.shouldSend(hook, event) {
			go wm.deliverWebhook(hook, event, payloadBytes)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]database.AlertWebhook, error) {
	// Try cache first
	cacheKey := "active_webhooks"
	if wm.redis != nil {
		var cached []database.AlertWebhook
		if err := wm.redis.Get(context.Background(), cacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	webhooks, err := wm.store.GetActiveWebhooks(context.Background())
	if err != nil {
		return nil, err
	}

	// Update cache (expire 1 hour)
	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), cacheKey, webhooks, 1*time.Hour)
	}

	return webhooks, nil
}

// shouldSend applies the webhook's event filter; an empty filter matches
// every event
func (wm *WebhookManager) shouldSend(hook database.AlertWebhook, event string) bool {
	if hook.Events == "" {
		return true
	}
	for _, filtered := range strings.Split(hook.Events, ",") {
		if strings.TrimSpace(filtered) == event {
			return true
		}
	}
	return false
}

func (wm *WebhookManager) deliverWebhook(hook database.AlertWebhook, event string, payload []byte) {
	req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewBuffer(payload))
	if err != nil {
		wm.logDelivery(hook.ID, event, 0, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Parking-Analyst/1.0")

	resp, err := wm.client.Do(req)
	if err != nil {
		log.Printf("⚠️  Webhook %s delivery failed: %v", hook.Name, err)
		wm.logDelivery(hook.ID, event, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("⚠️  Webhook %s returned %d", hook.Name, resp.StatusCode)
		wm.logDelivery(hook.ID, event, resp.StatusCode, "non-2xx response")
		return
	}
	wm.logDelivery(hook.ID, event, resp.StatusCode, "")
}

func (wm *WebhookManager) logDelivery(webhookID int64, event string, code int, errMsg string) {
	entry := &database.AlertWebhookLog{
		WebhookID:  webhookID,
		Event:      event,
		StatusCode: code,
		Error:      errMsg,
		SentAt:     time.Now().UTC(),
	}
	if err := wm.store.SaveWebhookLog(context.Background(), entry); err != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", err)
	}
}

// RefreshCache reloads webhook configurations
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), "active_webhooks")
		log.Println("🔄 Webhook cache invalidated")
	}
}
