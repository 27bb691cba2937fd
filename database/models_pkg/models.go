package models

import (
	"time"

	"github.com/lib/pq"
)

// Zone represents a managed parking zone.
// Zone IDs are short text identifiers ("z-110") shared with the upstream
// rates platform, not surrogate keys.
type Zone struct {
	ID       string `gorm:"primaryKey;size:32" json:"id"`
	Name     string `gorm:"size:120" json:"name"`
	Spaces   int    `gorm:"not null;default:0" json:"spaces"` // stall capacity, used for RevPASH
	Timezone string `gorm:"size:64" json:"timezone"`
}

// TableName specifies the table name for Zone
func (Zone) TableName() string {
	return "zones"
}

// HistoricalTransaction represents one completed parking session imported
// from the payments platform. This is the raw material for insight
// generation, rate inference, and probe evaluation.
//
// Key Fields:
//   - StartedAt: session start (indexed for windowed aggregates)
//   - PaidMinutes: paid duration of the session
//   - ParkingAmount: gross revenue for the session
//   - Daypart: morning or evening bucket assigned at import time
//   - Dow: day of week 0-6 (0=Sunday)
type HistoricalTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ZoneID        string    `gorm:"size:32;index;not null" json:"zone_id"`
	StartedAt     time.Time `gorm:"index;not null" json:"started_at"`
	PaidMinutes   int       `gorm:"not null" json:"paid_minutes"`
	ParkingAmount float64   `gorm:"type:decimal(10,2);not null" json:"parking_amount"`
	Daypart       string    `gorm:"size:10;index" json:"daypart"` // morning, evening
	Dow           int       `json:"dow"`                          // 0=Sunday .. 6=Saturday
}

// TableName specifies the table name for HistoricalTransaction
func (HistoricalTransaction) TableName() string {
	return "historical_transactions"
}

// Insight represents one generated narrative insight for a zone.
// Insights are regenerated wholesale by the daily refresh; CreatedAt drives
// the freshness check that gates regeneration.
type Insight struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ZoneID    string    `gorm:"size:32;index;not null" json:"zone_id"`
	Kind      string    `gorm:"size:32;not null" json:"kind"` // volume, duration, revenue, pattern, occupancy, summary
	Title     string    `gorm:"size:200;not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Severity  string    `gorm:"size:16" json:"severity"` // info, notable, action
	Metrics   string    `gorm:"type:jsonb" json:"metrics"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for Insight
func (Insight) TableName() string {
	return "insights"
}

// Recommendation represents a pricing recommendation for a zone.
// ExpertFramework marks rows produced by the expert recommendation engine;
// the daily-refresh freshness check only considers expert-flagged rows.
type Recommendation struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	ZoneID          string    `gorm:"size:32;index;not null" json:"zone_id"`
	Proposal        string    `gorm:"type:jsonb;not null" json:"proposal"`
	Confidence      float64   `gorm:"type:decimal(4,3)" json:"confidence"`
	Rationale       string    `gorm:"type:text" json:"rationale"`
	ExpertFramework bool      `gorm:"index;not null;default:false" json:"expert_framework"`
	Status          string    `gorm:"size:16;not null;default:'proposed'" json:"status"` // proposed, approved, dismissed
	CreatedAt       time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for Recommendation
func (Recommendation) TableName() string {
	return "recommendations"
}

// PriceChange represents a requested or applied rate change for a zone.
//
// Lifecycle: pending -> applied -> reverted. A populated RecommendationID
// means the change originated from an approved recommendation rather than a
// manual edit; guardrails treat the two differently.
type PriceChange struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	ZoneID           string     `gorm:"size:32;index;not null" json:"zone_id"`
	LocationID       *string    `gorm:"size:36" json:"location_id,omitempty"`
	PrevPrice        *float64   `gorm:"type:decimal(10,2)" json:"prev_price,omitempty"`
	NewPrice         float64    `gorm:"type:decimal(10,2);not null" json:"new_price"`
	ChangePct        *float64   `gorm:"type:decimal(6,4)" json:"change_pct,omitempty"`
	RecommendationID *string    `gorm:"size:36" json:"recommendation_id,omitempty"`
	AppliedBy        *string    `gorm:"size:36" json:"applied_by,omitempty"`
	AppliedAt        *time.Time `json:"applied_at,omitempty"`
	Status           string     `gorm:"size:16;index;not null;default:'pending'" json:"status"`
	CreatedAt        time.Time  `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for PriceChange
func (PriceChange) TableName() string {
	return "price_changes"
}

// AgentGuardrail represents one named bundle of declarative pricing limits.
// Rules holds the JSON limit schema (max_change_pct, min_price,
// blackout_weekday_hours, require_approval_if_confidence_lt). A change is
// valid only if it violates none of the active guardrails.
type AgentGuardrail struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:80;uniqueIndex;not null" json:"name"`
	Rules     string    `gorm:"type:jsonb;not null" json:"rules"`
	IsActive  bool      `gorm:"index;not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AgentGuardrail
func (AgentGuardrail) TableName() string {
	return "agent_guardrails"
}

// PricingExperiment represents one elasticity probe experiment.
//
// GuardrailsSnapshot freezes the guardrail limits in effect at creation so
// later edits to global guardrails never retroactively change an in-flight
// experiment. EndsAt is computed once at creation (created_at + horizon)
// and never recomputed.
type PricingExperiment struct {
	ID                 string          `gorm:"primaryKey;size:36" json:"id"`
	ZoneID             string          `gorm:"size:32;index;not null" json:"zone_id"`
	Daypart            string          `gorm:"size:10;not null" json:"daypart"` // morning, evening
	Dow                int             `gorm:"not null" json:"dow"`
	Deltas             pq.Float64Array `gorm:"type:double precision[]" json:"deltas"`
	GuardrailsSnapshot string          `gorm:"type:jsonb;not null" json:"guardrails_snapshot"`
	HorizonDays        int             `gorm:"not null" json:"horizon_days"`
	Status             string          `gorm:"size:16;index;not null;default:'scheduled'" json:"status"` // scheduled, running, complete, aborted
	CreatedBy          string          `gorm:"size:36" json:"created_by"`
	CreatedAt          time.Time       `gorm:"index;not null" json:"created_at"`
	EndsAt             time.Time       `gorm:"not null" json:"ends_at"`
}

// TableName specifies the table name for PricingExperiment
func (PricingExperiment) TableName() string {
	return "pricing_experiments"
}

// PricingExperimentArm represents one priced variant within an experiment.
// Proposal is the full tier payload including per-tier original_rate and
// delta_applied for auditability. Arms are written once and never mutated.
type PricingExperimentArm struct {
	ID           string  `gorm:"primaryKey;size:36" json:"id"`
	ExperimentID string  `gorm:"size:36;index;not null" json:"experiment_id"`
	Delta        float64 `gorm:"type:decimal(6,4);not null" json:"delta"`
	Proposal     string  `gorm:"type:jsonb;not null" json:"proposal"`
	Control      bool    `gorm:"not null;default:false" json:"control"`
}

// TableName specifies the table name for PricingExperimentArm
func (PricingExperimentArm) TableName() string {
	return "pricing_experiment_arms"
}

// PricingExperimentResult represents evaluated metrics for one arm over one
// metric window. Rows are upserted keyed by (experiment, arm, window):
// re-evaluating the same window overwrites the numbers and bumps ComputedAt
// instead of creating duplicates.
type PricingExperimentResult struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ExperimentID  string    `gorm:"size:36;uniqueIndex:idx_result_window;not null" json:"experiment_id"`
	ArmID         string    `gorm:"size:36;uniqueIndex:idx_result_window;not null" json:"arm_id"`
	MetricWindow  string    `gorm:"size:40;uniqueIndex:idx_result_window;not null" json:"metric_window"` // half-open [start,end)
	RevPSH        float64   `gorm:"type:decimal(10,2)" json:"rev_psh"`
	Occupancy     float64   `gorm:"type:decimal(5,3)" json:"occupancy"`
	LiftRevPSH    float64   `gorm:"type:decimal(7,3)" json:"lift_rev_psh"`
	LiftOccupancy float64   `gorm:"type:decimal(7,3)" json:"lift_occupancy"`
	ComputedAt    time.Time `gorm:"not null" json:"computed_at"`
}

// TableName specifies the table name for PricingExperimentResult
func (PricingExperimentResult) TableName() string {
	return "pricing_experiment_results"
}

// CopilotThread is one analyst conversation about a zone. Threads anchor
// the copilot's Q&A history and are the unit memories are distilled from.
type CopilotThread struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ZoneID    string    `gorm:"size:32;index;not null" json:"zone_id"`
	Title     string    `gorm:"size:200" json:"title"`
	Status    string    `gorm:"size:16;not null;default:'open'" json:"status"` // open, closed
	CreatedBy string    `gorm:"size:36" json:"created_by"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for CopilotThread
func (CopilotThread) TableName() string {
	return "copilot_threads"
}

// CopilotMessage is one turn in a copilot thread. Messages are append-only.
type CopilotMessage struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	ThreadID  string    `gorm:"size:36;index;not null" json:"thread_id"`
	Role      string    `gorm:"size:16;not null" json:"role"` // user, assistant
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for CopilotMessage
func (CopilotMessage) TableName() string {
	return "copilot_messages"
}

// CopilotMemory is one distilled fact carried into future copilot prompts
// for a zone. Memories are deactivated, never deleted, so an audit trail of
// what the copilot was told survives.
type CopilotMemory struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	ZoneID         string    `gorm:"size:32;index;not null" json:"zone_id"`
	Kind           string    `gorm:"size:16;not null;default:'context'" json:"kind"` // canonical, context, exception
	Topic          string    `gorm:"size:120" json:"topic"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	SourceThreadID *string   `gorm:"size:36" json:"source_thread_id,omitempty"`
	IsActive       bool      `gorm:"index;not null;default:true" json:"is_active"`
	CreatedBy      string    `gorm:"size:36" json:"created_by"`
	CreatedAt      time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for CopilotMemory
func (CopilotMemory) TableName() string {
	return "copilot_memories"
}

// AlertWebhook represents a registered webhook destination for analyst
// events (guardrail violations, completed evaluations, refresh completion).
type AlertWebhook struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:80;not null" json:"name"`
	URL       string    `gorm:"size:500;not null" json:"url"`
	Events    string    `gorm:"size:200" json:"events"` // comma-separated event filter, empty = all
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for AlertWebhook
func (AlertWebhook) TableName() string {
	return "alert_webhooks"
}

// AlertWebhookLog records a single delivery attempt for auditing
type AlertWebhookLog struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID  int64     `gorm:"index;not null" json:"webhook_id"`
	Event      string    `gorm:"size:40;not null" json:"event"`
	StatusCode int       `json:"status_code"`
	Error      string    `gorm:"size:500" json:"error,omitempty"`
	SentAt     time.Time `gorm:"not null" json:"sent_at"`
}

// TableName specifies the table name for AlertWebhookLog
func (AlertWebhookLog) TableName() string {
	return "alert_webhook_logs"
}
