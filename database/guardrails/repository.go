// Package guardrails is the persistence layer for guardrail rule sets. It
// loads and decodes the stored JSON rule schemas and supplies the inputs the
// evaluator and the probe scheduler read.
package guardrails

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"gorm.io/gorm"

	"parking-analyst/database"
	rules "parking-analyst/guardrails"
	"parking-analyst/probe"
)

// DefaultMaxChangePct bounds probe deltas when no active guardrail defines
// a max_change_pct
const DefaultMaxChangePct = 0.15

// Repository provides guardrail persistence operations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a guardrail repository
func NewRepository(db *database.Database) *Repository {
	return &Repository{db: db.DB()}
}

// ActiveRules returns every active guardrail decoded into its rule schema,
// ordered by name. Rows whose JSON no longer parses are logged and skipped
// rather than failing the whole validation.
func (r *Repository) ActiveRules(ctx context.Context) ([]rules.Rule, error) {
	var records []database.AgentGuardrail
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&records).Error
	if err != nil {
		return nil, database.WrapDBError("fetch active guardrails", err)
	}

	decoded := make([]rules.Rule, 0, len(records))
	for _, record := range records {
		var rule rules.Rule
		if err := json.Unmarshal([]byte(record.Rules), &rule); err != nil {
			log.Printf("⚠️ Skipping guardrail %q with malformed rules: %v", record.Name, err)
			continue
		}
		rule.Name = record.Name
		decoded = append(decoded, rule)
	}
	return decoded, nil
}

// RecentAppliedPrices returns the new_price of up to limit applied changes
// for the zone since the given time, newest first. Always zone-scoped.
func (r *Repository) RecentAppliedPrices(ctx context.Context, zoneID string, since time.Time, limit int) ([]float64, error) {
	var prices []float64
	err := r.db.WithContext(ctx).
		Model(&database.PriceChange{}).
		Where("zone_id = ? AND status = ? AND created_at > ?", zoneID, database.ChangeStatusApplied, since).
		Order("created_at DESC").
		Limit(limit).
		Pluck("new_price", &prices).Error
	if err != nil {
		return nil, database.WrapDBError("fetch recent applied prices", err)
	}
	return prices, nil
}

// Snapshot freezes the current guardrail limits for a new experiment. The
// tightest max_change_pct among active rules wins; with no active limit the
// default applies so probes are never unbounded.
func (r *Repository) Snapshot(ctx context.Context) (probe.GuardrailSnapshot, error) {
	active, err := r.ActiveRules(ctx)
	if err != nil {
		return probe.GuardrailSnapshot{}, err
	}

	snapshot := probe.GuardrailSnapshot{
		MaxChangePct: DefaultMaxChangePct,
		CreatedAt:    time.Now().UTC(),
	}
	for _, rule := range active {
		if rule.MaxChangePct != nil && *rule.MaxChangePct < snapshot.MaxChangePct {
			snapshot.MaxChangePct = *rule.MaxChangePct
		}
		if rule.RequireApprovalIfConfidenceLT != nil {
			snapshot.MinApprovalRequired = true
		}
	}
	return snapshot, nil
}

// List returns every guardrail record, active or not
func (r *Repository) List(ctx context.Context) ([]database.AgentGuardrail, error) {
	var records []database.AgentGuardrail
	err := r.db.WithContext(ctx).Order("name ASC").Find(&records).Error
	if err != nil {
		return nil, database.WrapDBError("list guardrails", err)
	}
	return records, nil
}

// SetActive toggles a guardrail by name
func (r *Repository) SetActive(ctx context.Context, name string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&database.AgentGuardrail{}).
		Where("name = ?", name).
		Update("is_active", active)
	if result.Error != nil {
		return database.WrapDBError("toggle guardrail", result.Error)
	}
	if result.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("guardrail", name)
	}
	return nil
}
