package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"errors"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// AnalystRepository handles database operations for zones, insights and
// recommendations. Price changes, experiments, guardrail storage and metric
// queries live in their own sub-package repositories.
type AnalystRepository struct {
	db *Database
}

// NewAnalystRepository creates a new analyst repository
func NewAnalystRepository(db *Database) *AnalystRepository {
	return &AnalystRepository{db: db}
}

// InitSchema performs auto-migration and index setup
func (r *AnalystRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&Zone{},
		&HistoricalTransaction{},
		&Insight{},
		&Recommendation{},
		&PriceChange{},
		&AgentGuardrail{},
		&PricingExperiment{},
		&PricingExperimentArm{},
		&PricingExperimentResult{},
		&CopilotThread{},
		&CopilotMessage{},
		&CopilotMemory{},
		&AlertWebhook{},
		&AlertWebhookLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Composite index for the zone-scoped consistency lookback; GORM tags
	// cannot express the partial predicate
	r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_price_changes_zone_applied
		ON price_changes (zone_id, created_at DESC)
		WHERE status = 'applied'
	`)

	if err := r.seedDefaultGuardrail(); err != nil {
		return err
	}

	fmt.Println("✅ Database schema initialized")
	return nil
}

// seedDefaultGuardrail installs a conservative default rule set on first
// boot so a fresh install never runs without limits
func (r *AnalystRepository) seedDefaultGuardrail() error {
	var count int64
	if err := r.db.db.Model(&AgentGuardrail{}).Count(&count).Error; err != nil {
		return WrapDBError("count guardrails", err)
	}
	if count > 0 {
		return nil
	}

	seed := &AgentGuardrail{
		Name:      "default_policy",
		Rules:     `{"max_change_pct": 0.15, "min_price": 1.00, "require_approval_if_confidence_lt": 0.8}`,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.db.db.Create(seed).Error; err != nil {
		return WrapDBError("seed default guardrail", err)
	}
	fmt.Println("🛡️ Seeded default guardrail policy")
	return nil
}

// ============================================================================
// Zones
// ============================================================================

// GetZone retrieves a zone by ID
func (r *AnalystRepository) GetZone(ctx context.Context, zoneID string) (*Zone, error) {
	var zone Zone
	err := r.db.db.WithContext(ctx).Where("id = ?", zoneID).First(&zone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundErrorWithID("zone", zoneID)
		}
		return nil, WrapDBError("GetZone", err)
	}
	return &zone, nil
}

// ListZones retrieves the given zones, ordered by ID
func (r *AnalystRepository) ListZones(ctx context.Context, zoneIDs []string) ([]Zone, error) {
	var zones []Zone
	err := r.db.db.WithContext(ctx).
		Where("id = ANY(?)", pq.Array(zoneIDs)).
		Order("id").
		Find(&zones).Error
	if err != nil {
		return nil, WrapDBError("ListZones", err)
	}
	return zones, nil
}

// DistinctTransactionZones returns every zone ID present in the historical
// transaction data. Used by the refresh scheduler when no zone set is
// configured.
func (r *AnalystRepository) DistinctTransactionZones(ctx context.Context) ([]string, error) {
	var zoneIDs []string
	err := r.db.db.WithContext(ctx).
		Raw("SELECT DISTINCT zone_id FROM historical_transactions WHERE zone_id <> '' ORDER BY zone_id").
		Scan(&zoneIDs).Error
	if err != nil {
		return nil, WrapDBError("DistinctTransactionZones", err)
	}
	return zoneIDs, nil
}

// ============================================================================
// Insights
// ============================================================================

// ReplaceInsights clears existing insights for the given zones and inserts
// the fresh batch in a single transaction, so readers never observe a
// half-regenerated zone.
func (r *AnalystRepository) ReplaceInsights(ctx context.Context, zoneIDs []string, insights []Insight) error {
	if len(zoneIDs) == 0 {
		return nil
	}
	err := r.db.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("zone_id = ANY(?)", pq.Array(zoneIDs)).Delete(&Insight{}).Error; err != nil {
			return err
		}
		if len(insights) == 0 {
			return nil
		}
		return tx.Create(&insights).Error
	})
	return WrapDBError("ReplaceInsights", err)
}

// ListInsights retrieves insights for the given zones, newest first
func (r *AnalystRepository) ListInsights(ctx context.Context, zoneIDs []string, limit int) ([]Insight, error) {
	var insights []Insight
	err := r.db.db.WithContext(ctx).
		Where("zone_id = ANY(?)", pq.Array(zoneIDs)).
		Order("created_at DESC").
		Limit(limit).
		Find(&insights).Error
	if err != nil {
		return nil, WrapDBError("ListInsights", err)
	}
	return insights, nil
}

// LatestInsightAt returns the newest insight timestamp for the given zones,
// or nil when no insights exist
func (r *AnalystRepository) LatestInsightAt(ctx context.Context, zoneIDs []string) (*time.Time, error) {
	var ts sql.NullTime
	err := r.db.db.WithContext(ctx).
		Raw("SELECT MAX(created_at) FROM insights WHERE zone_id = ANY(?)", pq.Array(zoneIDs)).
		Scan(&ts).Error
	if err != nil {
		return nil, WrapDBError("LatestInsightAt", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

// ============================================================================
// Recommendations
// ============================================================================

// SaveRecommendations persists a batch of recommendations
func (r *AnalystRepository) SaveRecommendations(ctx context.Context, recs []Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	if err := r.db.db.WithContext(ctx).Create(&recs).Error; err != nil {
		return WrapDBError("SaveRecommendations", err)
	}
	return nil
}

// ListRecommendations retrieves recommendations for the given zones, newest first
func (r *AnalystRepository) ListRecommendations(ctx context.Context, zoneIDs []string, limit int) ([]Recommendation, error) {
	var recs []Recommendation
	err := r.db.db.WithContext(ctx).
		Where("zone_id = ANY(?)", pq.Array(zoneIDs)).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, WrapDBError("ListRecommendations", err)
	}
	return recs, nil
}

// ============================================================================
// Alert webhooks
// ============================================================================

// GetActiveWebhooks retrieves every active webhook destination
func (r *AnalystRepository) GetActiveWebhooks(ctx context.Context) ([]AlertWebhook, error) {
	var webhooks []AlertWebhook
	err := r.db.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name").
		Find(&webhooks).Error
	if err != nil {
		return nil, WrapDBError("GetActiveWebhooks", err)
	}
	return webhooks, nil
}

// SaveWebhookLog records one delivery attempt
func (r *AnalystRepository) SaveWebhookLog(ctx context.Context, entry *AlertWebhookLog) error {
	if err := r.db.db.WithContext(ctx).Create(entry).Error; err != nil {
		return WrapDBError("SaveWebhookLog", err)
	}
	return nil
}

// CreateWebhook registers a webhook destination
func (r *AnalystRepository) CreateWebhook(ctx context.Context, hook *AlertWebhook) error {
	if hook.CreatedAt.IsZero() {
		hook.CreatedAt = time.Now().UTC()
	}
	if err := r.db.db.WithContext(ctx).Create(hook).Error; err != nil {
		return WrapDBError("CreateWebhook", err)
	}
	return nil
}

// ListWebhooks retrieves all webhook destinations
func (r *AnalystRepository) ListWebhooks(ctx context.Context) ([]AlertWebhook, error) {
	var webhooks []AlertWebhook
	err := r.db.db.WithContext(ctx).Order("name").Find(&webhooks).Error
	if err != nil {
		return nil, WrapDBError("ListWebhooks", err)
	}
	return webhooks, nil
}

// LatestExpertRecommendationAt returns the newest expert-flagged
// recommendation timestamp for the given zones, or nil when none exist.
// Only expert rows count toward daily-refresh freshness.
func (r *AnalystRepository) LatestExpertRecommendationAt(ctx context.Context, zoneIDs []string) (*time.Time, error) {
	var ts sql.NullTime
	err := r.db.db.WithContext(ctx).
		Raw("SELECT MAX(created_at) FROM recommendations WHERE zone_id = ANY(?) AND expert_framework", pq.Array(zoneIDs)).
		Scan(&ts).Error
	if err != nil {
		return nil, WrapDBError("LatestExpertRecommendationAt", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}
