// Package guardrails validates proposed price changes against the active
// declarative rule sets. A change is valid only when it violates none of
// the active guardrails; every sub-check of every rule is reported, never
// short-circuited, so callers can show the full list.
package guardrails

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"parking-analyst/config"
	"parking-analyst/helpers"
)

// Rule is one named bundle of pricing limits, decoded from the stored JSON
// schema. Nil pointers mean the rule does not define that limit.
type Rule struct {
	Name                          string           `json:"-"`
	MaxChangePct                  *float64         `json:"max_change_pct,omitempty"`
	MinPrice                      *float64         `json:"min_price,omitempty"`
	BlackoutWeekdayHours          map[string][]int `json:"blackout_weekday_hours,omitempty"`
	RequireApprovalIfConfidenceLT *float64         `json:"require_approval_if_confidence_lt,omitempty"`
}

// ChangeRequest is the price change under validation. RecommendationID set
// means the change originated from an approved recommendation; absent means
// a direct manual edit.
type ChangeRequest struct {
	ZoneID           string   `json:"zone_id"`
	PrevPrice        *float64 `json:"prev_price,omitempty"`
	NewPrice         float64  `json:"new_price"`
	ChangePct        *float64 `json:"change_pct,omitempty"`
	RecommendationID *string  `json:"recommendation_id,omitempty"`
}

// Result is the structured validation outcome. Warnings never affect
// IsValid.
type Result struct {
	IsValid       bool     `json:"is_valid"`
	Reason        string   `json:"reason,omitempty"`
	ViolatedRules []string `json:"violated_rules"`
	Warnings      []string `json:"warnings"`
}

// Store supplies the persisted inputs the evaluator needs
type Store interface {
	// ActiveRules returns every active guardrail, ordered by name
	ActiveRules(ctx context.Context) ([]Rule, error)
	// RecentAppliedPrices returns the new_price of up to limit applied
	// changes for the zone since the given time, newest first
	RecentAppliedPrices(ctx context.Context, zoneID string, since time.Time, limit int) ([]float64, error)
}

// Evaluator validates price changes against active guardrails
type Evaluator struct {
	store Store
	loc   *time.Location

	lookbackDays int
	maxChanges   int
	threshold    float64

	now func() time.Time
}

// NewEvaluator creates an evaluator bound to the configured operating
// timezone. An unknown timezone falls back to UTC.
func NewEvaluator(store Store, cfg *config.AnalystConfig) *Evaluator {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Printf("⚠️ Unknown timezone %q, blackout checks fall back to UTC: %v", cfg.Timezone, err)
		loc = time.UTC
	}
	return &Evaluator{
		store:        store,
		loc:          loc,
		lookbackDays: cfg.ConsistencyLookbackDays,
		maxChanges:   cfg.ConsistencyMaxChanges,
		threshold:    cfg.ConsistencyThreshold,
		now:          time.Now,
	}
}

// Validate checks a price change against every active guardrail. Datastore
// failures are reported as an invalid outcome with a validation-error
// reason, never silently treated as a pass.
func (e *Evaluator) Validate(ctx context.Context, change ChangeRequest) Result {
	rules, err := e.store.ActiveRules(ctx)
	if err != nil {
		log.Printf("❌ Error fetching guardrails for zone %s: %v", change.ZoneID, err)
		return Result{
			IsValid:       false,
			Reason:        "validation error: could not load active guardrails",
			ViolatedRules: []string{},
			Warnings:      []string{},
		}
	}

	if len(rules) == 0 {
		log.Printf("⚠️ No active guardrails found, allowing all changes")
		return Result{IsValid: true, ViolatedRules: []string{}, Warnings: []string{}}
	}

	changePct := change.ChangePct
	if changePct == nil && change.PrevPrice != nil && *change.PrevPrice > 0 {
		pct := (change.NewPrice - *change.PrevPrice) / *change.PrevPrice
		changePct = &pct
	}

	violations := []string{}
	warnings := []string{}

	for _, rule := range rules {
		if rule.MaxChangePct != nil && changePct != nil {
			if abs(*changePct) > *rule.MaxChangePct {
				violations = append(violations, fmt.Sprintf("Change percentage %s exceeds maximum %s",
					helpers.FormatSignedPercent(*changePct), helpers.FormatPercent(*rule.MaxChangePct)))
			}
		}

		if rule.MinPrice != nil && change.NewPrice < *rule.MinPrice {
			violations = append(violations, fmt.Sprintf("New price %s below minimum %s",
				helpers.FormatUSD(change.NewPrice), helpers.FormatUSD(*rule.MinPrice)))
		}

		if len(rule.BlackoutWeekdayHours) > 0 {
			if msg := e.checkBlackoutHours(rule.BlackoutWeekdayHours); msg != "" {
				violations = append(violations, msg)
			}
		}

		if rule.RequireApprovalIfConfidenceLT != nil && change.RecommendationID == nil {
			warnings = append(warnings, "Manual price change requires approval")
		}
	}

	if msg := e.checkRateConsistency(ctx, change); msg != "" {
		warnings = append(warnings, msg)
	}

	result := Result{
		IsValid:       len(violations) == 0,
		ViolatedRules: violations,
		Warnings:      warnings,
	}
	if len(violations) > 0 {
		result.Reason = strings.Join(violations, "; ")
	}
	return result
}

// checkBlackoutHours reports a violation when the current wall-clock time
// in the operating timezone falls into a blacked-out weekday hour. Keys use
// lowercase three-letter weekday abbreviations (mon..sun).
func (e *Evaluator) checkBlackoutHours(blackout map[string][]int) string {
	now := e.now().In(e.loc)
	dowKey := strings.ToLower(now.Format("Mon"))
	hour := now.Hour()

	hours, ok := blackout[dowKey]
	if !ok {
		return ""
	}
	for _, h := range hours {
		if h == hour {
			return fmt.Sprintf("Price changes not allowed on %s at hour %d", now.Weekday(), hour)
		}
	}
	return ""
}

// checkRateConsistency warns when the new price swings far from the recent
// applied average for the zone. The lookback query is always zone-scoped;
// other zones' changes must never leak into the average. Never a hard
// violation, and lookup failures only lose the warning.
func (e *Evaluator) checkRateConsistency(ctx context.Context, change ChangeRequest) string {
	since := e.now().Add(-time.Duration(e.lookbackDays) * 24 * time.Hour)
	prices, err := e.store.RecentAppliedPrices(ctx, change.ZoneID, since, e.maxChanges)
	if err != nil {
		log.Printf("⚠️ Error checking rate consistency for zone %s: %v", change.ZoneID, err)
		return ""
	}
	if len(prices) == 0 {
		return ""
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	avg := sum / float64(len(prices))
	if avg == 0 {
		return ""
	}

	diff := abs(change.NewPrice-avg) / avg
	if diff > e.threshold {
		return fmt.Sprintf("New price %s differs %s from recent average %s",
			helpers.FormatUSD(change.NewPrice), helpers.FormatPercent(diff), helpers.FormatUSD(avg))
	}
	return ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
