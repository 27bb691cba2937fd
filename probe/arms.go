// Package probe implements elasticity probe experiments: building
// delta-adjusted pricing arms, scheduling them against a zone, and
// evaluating revenue/occupancy lift per arm against the control.
package probe

import (
	"math"
	"time"
)

// GuardrailSnapshot freezes the guardrail limits in effect when an
// experiment is scheduled. Later edits to the global guardrails must not
// retroactively affect an in-flight experiment.
type GuardrailSnapshot struct {
	MaxChangePct        float64   `json:"max_change_pct"`
	MinApprovalRequired bool      `json:"min_approval_required"`
	CreatedAt           time.Time `json:"created_at"`
}

// RateTier is one pricing bracket. A nil DurationMaxMinutes means the tier
// is unbounded. On arm tiers, OriginalRate and DeltaApplied record the
// pre-adjustment rate and the delta used, for auditability.
type RateTier struct {
	DurationMaxMinutes *int    `json:"duration_max_min,omitempty"`
	RatePerHour        float64 `json:"rate_per_hour"`
	TierName           string  `json:"tier_name"`
	OriginalRate       float64 `json:"original_rate,omitempty"`
	DeltaApplied       float64 `json:"delta_applied,omitempty"`
}

// Proposal is the full priced payload carried by one arm
type Proposal struct {
	ZoneID        string     `json:"zone_id"`
	Daypart       string     `json:"daypart"`
	Dow           int        `json:"dow"`
	Tiers         []RateTier `json:"tiers"`
	EffectiveDate time.Time  `json:"effective_date"`
}

// Arm is one experimental pricing variant. Built once, never mutated.
type Arm struct {
	ID       string   `json:"arm_id,omitempty"` // assigned when persisted
	Delta    float64  `json:"delta"`
	Proposal Proposal `json:"proposal"`
	Control  bool     `json:"control"`
}

// RoundToQuarter rounds an amount to the nearest $0.25, ties rounding
// half-up (away from zero, toward the higher quarter). The result is always
// an exact multiple of 0.25 and the function is idempotent.
func RoundToQuarter(amount float64) float64 {
	if amount < 0 {
		return -math.Floor(-amount*4+0.5) / 4
	}
	return math.Floor(amount*4+0.5) / 4
}

// ArmBuilder constructs probe arms under the system-wide delta cap
type ArmBuilder struct {
	systemMaxDelta float64
	now            func() time.Time
}

// NewArmBuilder creates a builder with the given system-wide |delta| cap
func NewArmBuilder(systemMaxDelta float64) *ArmBuilder {
	return &ArmBuilder{
		systemMaxDelta: systemMaxDelta,
		now:            time.Now,
	}
}

// BuildArms produces one priced arm per surviving delta.
//
// A zero delta is prepended when absent so the arm set always contains
// exactly one control. Deltas whose magnitude exceeds the tighter of the
// system cap and the snapshot's max_change_pct are silently dropped; the
// control trivially passes, so the result is never empty. Adjusted rates
// are rounded to the nearest $0.25 before storage.
func (b *ArmBuilder) BuildArms(zoneID, daypart string, dow int, baseTiers []RateTier, deltas []float64, snapshot GuardrailSnapshot) []Arm {
	hasControl := false
	for _, d := range deltas {
		if d == 0.0 {
			hasControl = true
			break
		}
	}
	if !hasControl {
		deltas = append([]float64{0.0}, deltas...)
	}

	effectiveDate := b.now().UTC()
	arms := make([]Arm, 0, len(deltas))

	for _, delta := range deltas {
		if math.Abs(delta) > b.systemMaxDelta {
			continue // beyond system limit
		}
		if math.Abs(delta) > snapshot.MaxChangePct {
			continue // beyond guardrail limit
		}

		adjusted := make([]RateTier, 0, len(baseTiers))
		for _, tier := range baseTiers {
			current := tier.RatePerHour
			adjusted = append(adjusted, RateTier{
				DurationMaxMinutes: tier.DurationMaxMinutes,
				RatePerHour:        RoundToQuarter(current * (1 + delta)),
				TierName:           tier.TierName,
				OriginalRate:       current,
				DeltaApplied:       delta,
			})
		}

		arms = append(arms, Arm{
			Delta: delta,
			Proposal: Proposal{
				ZoneID:        zoneID,
				Daypart:       daypart,
				Dow:           dow,
				Tiers:         adjusted,
				EffectiveDate: effectiveDate,
			},
			// Exact zero only: near-zero deltas from upstream float math
			// are intentionally not treated as control
			Control: delta == 0.0,
		})
	}

	return arms
}
