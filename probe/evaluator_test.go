package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"parking-analyst/config"
	"parking-analyst/database"
	"parking-analyst/database/types"
)

type fakeProbeStore struct {
	exp    *database.PricingExperiment
	expErr error
	arms   []database.PricingExperimentArm

	created     *database.PricingExperiment
	createdArms []database.PricingExperimentArm
	createErr   error

	results map[string]database.PricingExperimentResult
	upserts int
}

func (f *fakeProbeStore) CreateExperimentWithArms(ctx context.Context, exp *database.PricingExperiment, arms []database.PricingExperimentArm) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = exp
	f.createdArms = arms
	return nil
}

func (f *fakeProbeStore) GetExperiment(ctx context.Context, id string) (*database.PricingExperiment, error) {
	if f.expErr != nil {
		return nil, f.expErr
	}
	return f.exp, nil
}

func (f *fakeProbeStore) GetArms(ctx context.Context, experimentID string) ([]database.PricingExperimentArm, error) {
	return f.arms, nil
}

func (f *fakeProbeStore) UpsertResult(ctx context.Context, result *database.PricingExperimentResult) error {
	if f.results == nil {
		f.results = make(map[string]database.PricingExperimentResult)
	}
	key := fmt.Sprintf("%s|%s|%s", result.ExperimentID, result.ArmID, result.MetricWindow)
	f.results[key] = *result
	f.upserts++
	return nil
}

type fakeBaselines struct {
	metrics types.BaselineMetrics
	err     error
}

func (f *fakeBaselines) ObservedBaseline(ctx context.Context, zoneID string, start, end time.Time) (types.BaselineMetrics, error) {
	return f.metrics, f.err
}

func approx(got, want, tolerance float64) bool {
	return math.Abs(got-want) <= tolerance
}

func evalConfig() *config.AnalystConfig {
	return &config.AnalystConfig{
		BaselineRevPSH:     8.50,
		BaselineOccupancy:  0.65,
		DemandElasticity:   0.3,
		RevenuePassthrough: 0.5,
	}
}

func evalExperiment() *database.PricingExperiment {
	return &database.PricingExperiment{
		ID:        "exp-1",
		ZoneID:    "z-110",
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		EndsAt:    time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestEvaluateElasticityModel(t *testing.T) {
	store := &fakeProbeStore{
		exp: evalExperiment(),
		arms: []database.PricingExperimentArm{
			{ID: "arm-0", ExperimentID: "exp-1", Delta: 0.0, Control: true},
			{ID: "arm-1", ExperimentID: "exp-1", Delta: 0.04},
		},
	}
	baselines := &fakeBaselines{metrics: types.BaselineMetrics{
		RevPSH: 8.0, Occupancy: 0.5, Observed: true, Transactions: 500,
	}}

	e := NewEvaluator(store, baselines, evalConfig())
	evaluation, err := e.Evaluate(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if len(evaluation.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(evaluation.Results))
	}

	control := evaluation.Results[0]
	if !control.Control {
		t.Fatal("first result should be the control arm")
	}
	if control.RevPSH != 8.0 || control.Occupancy != 0.5 {
		t.Errorf("control carries baseline, got rev_psh=%v occupancy=%v", control.RevPSH, control.Occupancy)
	}
	if control.LiftRevPSH != 0 || control.LiftOccupancy != 0 {
		t.Errorf("control lift must be zero, got %v / %v", control.LiftRevPSH, control.LiftOccupancy)
	}

	// delta 0.04: occupancy impact -0.012, revenue impact 0.04 - 0.006 = 0.034
	probed := evaluation.Results[1]
	if !approx(probed.LiftOccupancy, -0.012, 1e-9) {
		t.Errorf("lift_occupancy = %v, want -0.012", probed.LiftOccupancy)
	}
	if !approx(probed.LiftRevPSH, 0.034, 1e-9) {
		t.Errorf("lift_rev_psh = %v, want 0.034", probed.LiftRevPSH)
	}
	if !approx(probed.RevPSH, 8.27, 1e-9) {
		t.Errorf("rev_psh = %v, want 8.27", probed.RevPSH)
	}
	if !approx(probed.Occupancy, 0.494, 1e-9) {
		t.Errorf("occupancy = %v, want 0.494", probed.Occupancy)
	}
}

func TestEvaluateMetricWindow(t *testing.T) {
	store := &fakeProbeStore{
		exp: evalExperiment(),
		arms: []database.PricingExperimentArm{
			{ID: "arm-0", ExperimentID: "exp-1", Delta: 0.0, Control: true},
		},
	}
	e := NewEvaluator(store, &fakeBaselines{}, evalConfig())

	if _, err := e.Evaluate(context.Background(), "exp-1"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	for key, result := range store.results {
		if result.MetricWindow != "[2026-08-01,2026-08-15)" {
			t.Errorf("metric window = %q for %s, want half-open day window", result.MetricWindow, key)
		}
	}
}

func TestEvaluateUpsertNeverDuplicates(t *testing.T) {
	store := &fakeProbeStore{
		exp: evalExperiment(),
		arms: []database.PricingExperimentArm{
			{ID: "arm-0", ExperimentID: "exp-1", Delta: 0.0, Control: true},
			{ID: "arm-1", ExperimentID: "exp-1", Delta: 0.04},
		},
	}
	e := NewEvaluator(store, &fakeBaselines{metrics: types.BaselineMetrics{
		RevPSH: 8.0, Occupancy: 0.5, Observed: true,
	}}, evalConfig())

	for i := 0; i < 3; i++ {
		if _, err := e.Evaluate(context.Background(), "exp-1"); err != nil {
			t.Fatalf("Evaluate run %d failed: %v", i, err)
		}
	}

	if store.upserts != 6 {
		t.Errorf("expected 6 upsert calls, got %d", store.upserts)
	}
	if len(store.results) != 2 {
		t.Errorf("re-evaluation must overwrite, not duplicate: %d distinct rows", len(store.results))
	}
}

func TestEvaluateFallsBackToConfiguredBaseline(t *testing.T) {
	store := &fakeProbeStore{
		exp: evalExperiment(),
		arms: []database.PricingExperimentArm{
			{ID: "arm-0", ExperimentID: "exp-1", Delta: 0.0, Control: true},
		},
	}
	// No usable transaction data in the window
	e := NewEvaluator(store, &fakeBaselines{metrics: types.BaselineMetrics{Observed: false}}, evalConfig())

	evaluation, err := e.Evaluate(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	control := evaluation.Results[0]
	if control.RevPSH != 8.5 || control.Occupancy != 0.65 {
		t.Errorf("expected configured baselines 8.50/0.65, got %v/%v", control.RevPSH, control.Occupancy)
	}
}

func TestEvaluateUnknownExperiment(t *testing.T) {
	store := &fakeProbeStore{expErr: database.NewNotFoundErrorWithID("experiment", "nope")}
	e := NewEvaluator(store, &fakeBaselines{}, evalConfig())

	_, err := e.Evaluate(context.Background(), "nope")
	var notFound *database.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
