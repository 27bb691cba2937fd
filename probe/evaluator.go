package probe

import (
	"context"
	"fmt"
	"math"
	"time"

	"parking-analyst/config"
	"parking-analyst/database"
	"parking-analyst/database/types"
)

// BaselineSource supplies measured control metrics for a zone and window
type BaselineSource interface {
	ObservedBaseline(ctx context.Context, zoneID string, start, end time.Time) (types.BaselineMetrics, error)
}

// ArmResult is the evaluated outcome for a single arm
type ArmResult struct {
	ArmID         string  `json:"arm_id"`
	Delta         float64 `json:"delta"`
	Control       bool    `json:"control"`
	RevPSH        float64 `json:"rev_psh"`
	Occupancy     float64 `json:"occupancy"`
	LiftRevPSH    float64 `json:"lift_rev_psh"`
	LiftOccupancy float64 `json:"lift_occupancy"`
}

// Evaluation is the full evaluation outcome across all arms
type Evaluation struct {
	ExperimentID string      `json:"experiment_id"`
	Status       string      `json:"status"`
	Results      []ArmResult `json:"results"`
	EvaluatedAt  time.Time   `json:"evaluated_at"`
}

// Evaluator computes per-arm revenue and occupancy lift against the control
// and persists the results
type Evaluator struct {
	store     Store
	baselines BaselineSource

	baselineRevPSH    float64
	baselineOccupancy float64
	elasticity        float64
	passthrough       float64

	now func() time.Time
}

// NewEvaluator creates a probe evaluator
func NewEvaluator(store Store, baselines BaselineSource, cfg *config.AnalystConfig) *Evaluator {
	return &Evaluator{
		store:             store,
		baselines:         baselines,
		baselineRevPSH:    cfg.BaselineRevPSH,
		baselineOccupancy: cfg.BaselineOccupancy,
		elasticity:        cfg.DemandElasticity,
		passthrough:       cfg.RevenuePassthrough,
		now:               time.Now,
	}
}

// Evaluate computes metrics for every arm of the experiment and upserts one
// result row per (experiment, arm, window). Re-running the same window
// overwrites the prior numbers; it never duplicates rows.
func (e *Evaluator) Evaluate(ctx context.Context, experimentID string) (*Evaluation, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	arms, err := e.store.GetArms(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	// Half-open window [created_at, ends_at), fixed per experiment
	windowStart := exp.CreatedAt.UTC()
	windowEnd := exp.EndsAt.UTC()
	metricWindow := fmt.Sprintf("[%s,%s)",
		windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))

	baseline, err := e.baselines.ObservedBaseline(ctx, exp.ZoneID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("fetch baseline metrics: %w", err)
	}
	controlRevPSH := baseline.RevPSH
	controlOccupancy := baseline.Occupancy
	if !baseline.Observed {
		// Zone has no usable data for the window yet; simulate against the
		// configured baselines
		controlRevPSH = e.baselineRevPSH
		controlOccupancy = e.baselineOccupancy
	}

	evaluatedAt := e.now().UTC()
	results := make([]ArmResult, 0, len(arms))

	for _, arm := range arms {
		var revPSH, occupancy, liftRevPSH, liftOccupancy float64

		if arm.Control {
			// Control carries the baseline with zero lift by definition
			revPSH = controlRevPSH
			occupancy = controlOccupancy
		} else {
			// Demand-elasticity model: higher prices shed demand but may
			// still raise net revenue
			occupancyImpact := -arm.Delta * e.elasticity
			revenueImpact := arm.Delta + occupancyImpact*e.passthrough

			occupancy = controlOccupancy * (1 + occupancyImpact)
			revPSH = controlRevPSH * (1 + revenueImpact)
			liftRevPSH = revenueImpact
			liftOccupancy = occupancyImpact
		}

		result := &database.PricingExperimentResult{
			ExperimentID:  exp.ID,
			ArmID:         arm.ID,
			MetricWindow:  metricWindow,
			RevPSH:        revPSH,
			Occupancy:     occupancy,
			LiftRevPSH:    liftRevPSH,
			LiftOccupancy: liftOccupancy,
			ComputedAt:    evaluatedAt,
		}
		if err := e.store.UpsertResult(ctx, result); err != nil {
			return nil, err
		}

		results = append(results, ArmResult{
			ArmID:         arm.ID,
			Delta:         arm.Delta,
			Control:       arm.Control,
			RevPSH:        round2(revPSH),
			Occupancy:     round3(occupancy),
			LiftRevPSH:    round3(liftRevPSH),
			LiftOccupancy: round3(liftOccupancy),
		})
	}

	return &Evaluation{
		ExperimentID: experimentID,
		Status:       "evaluated",
		Results:      results,
		EvaluatedAt:  evaluatedAt,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
