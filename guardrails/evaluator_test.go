package guardrails

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"parking-analyst/config"
)

type fakeStore struct {
	rules     []Rule
	rulesErr  error
	prices    []float64
	pricesErr error

	lastZoneID string
}

func (f *fakeStore) ActiveRules(ctx context.Context) ([]Rule, error) {
	return f.rules, f.rulesErr
}

func (f *fakeStore) RecentAppliedPrices(ctx context.Context, zoneID string, since time.Time, limit int) ([]float64, error) {
	f.lastZoneID = zoneID
	return f.prices, f.pricesErr
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func testConfig() *config.AnalystConfig {
	return &config.AnalystConfig{
		Timezone:                "UTC",
		ConsistencyLookbackDays: 7,
		ConsistencyMaxChanges:   5,
		ConsistencyThreshold:    0.30,
	}
}

func testEvaluator(store Store) *Evaluator {
	e := NewEvaluator(store, testConfig())
	// Wednesday 2026-08-19 12:00 UTC, outside any test blackout window
	e.now = func() time.Time {
		return time.Date(2026, 8, 19, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func TestValidateMaxChangePct(t *testing.T) {
	store := &fakeStore{rules: []Rule{
		{Name: "default_policy", MaxChangePct: floatPtr(0.15)},
	}}
	e := testEvaluator(store)

	tests := []struct {
		name      string
		change    ChangeRequest
		wantValid bool
		wantMsg   string
	}{
		{
			name:      "increase beyond cap",
			change:    ChangeRequest{ZoneID: "z-110", NewPrice: 6.00, ChangePct: floatPtr(0.20)},
			wantValid: false,
			wantMsg:   "Change percentage +20.0% exceeds maximum 15.0%",
		},
		{
			name:      "decrease beyond cap",
			change:    ChangeRequest{ZoneID: "z-110", NewPrice: 3.00, ChangePct: floatPtr(-0.25)},
			wantValid: false,
			wantMsg:   "Change percentage -25.0% exceeds maximum 15.0%",
		},
		{
			name:      "within cap",
			change:    ChangeRequest{ZoneID: "z-110", NewPrice: 4.50, ChangePct: floatPtr(0.10)},
			wantValid: true,
		},
		{
			name:      "pct derived from prev price",
			change:    ChangeRequest{ZoneID: "z-110", PrevPrice: floatPtr(5.00), NewPrice: 6.00},
			wantValid: false,
			wantMsg:   "Change percentage +20.0% exceeds maximum 15.0%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Validate(context.Background(), tt.change)
			if result.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v (violations: %v)", result.IsValid, tt.wantValid, result.ViolatedRules)
			}
			if tt.wantMsg != "" {
				if len(result.ViolatedRules) != 1 || result.ViolatedRules[0] != tt.wantMsg {
					t.Errorf("violations = %v, want [%q]", result.ViolatedRules, tt.wantMsg)
				}
			}
		})
	}
}

func TestValidateMinPrice(t *testing.T) {
	store := &fakeStore{rules: []Rule{
		{Name: "default_policy", MinPrice: floatPtr(1.00)},
	}}
	e := testEvaluator(store)

	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 0.50})
	if result.IsValid {
		t.Fatal("expected invalid result")
	}
	want := "New price $0.50 below minimum $1.00"
	if len(result.ViolatedRules) != 1 || result.ViolatedRules[0] != want {
		t.Errorf("violations = %v, want [%q]", result.ViolatedRules, want)
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	store := &fakeStore{rules: []Rule{
		{Name: "default_policy", MaxChangePct: floatPtr(0.15), MinPrice: floatPtr(1.00)},
	}}
	e := testEvaluator(store)

	result := e.Validate(context.Background(), ChangeRequest{
		ZoneID:    "z-110",
		NewPrice:  0.50,
		ChangePct: floatPtr(-0.80),
	})

	if result.IsValid {
		t.Fatal("expected invalid result")
	}
	if len(result.ViolatedRules) != 2 {
		t.Fatalf("expected both violations reported, got %v", result.ViolatedRules)
	}
	if !strings.Contains(result.Reason, "; ") {
		t.Errorf("reason should join all violations: %q", result.Reason)
	}
}

func TestValidateBlackoutHours(t *testing.T) {
	store := &fakeStore{rules: []Rule{
		{Name: "weekend_freeze", BlackoutWeekdayHours: map[string][]int{"fri": {16, 17, 18}}},
	}}
	e := testEvaluator(store)

	// Friday 2026-08-21 17:30 UTC falls in the blackout
	e.now = func() time.Time {
		return time.Date(2026, 8, 21, 17, 30, 0, 0, time.UTC)
	}

	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 5.00})
	if result.IsValid {
		t.Fatal("expected invalid result during blackout")
	}
	want := "Price changes not allowed on Friday at hour 17"
	if len(result.ViolatedRules) != 1 || result.ViolatedRules[0] != want {
		t.Errorf("violations = %v, want [%q]", result.ViolatedRules, want)
	}

	// Same weekday, outside the blackout hours
	e.now = func() time.Time {
		return time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
	}
	result = e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 5.00})
	if !result.IsValid {
		t.Errorf("expected valid result outside blackout, got %v", result.ViolatedRules)
	}
}

func TestValidateRateConsistencyWarning(t *testing.T) {
	store := &fakeStore{
		rules:  []Rule{{Name: "default_policy", MaxChangePct: floatPtr(0.50)}},
		prices: []float64{4.00, 4.00, 4.00},
	}
	e := testEvaluator(store)

	// 6.00 differs 50% from the 4.00 average: warn, but stay valid
	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 6.00})
	if !result.IsValid {
		t.Fatalf("consistency must never be a hard violation: %v", result.ViolatedRules)
	}
	want := "New price $6.00 differs 50.0% from recent average $4.00"
	if len(result.Warnings) != 1 || result.Warnings[0] != want {
		t.Errorf("warnings = %v, want [%q]", result.Warnings, want)
	}
	if store.lastZoneID != "z-110" {
		t.Errorf("consistency lookup not zone-scoped: queried %q", store.lastZoneID)
	}

	// Within the threshold: no warning
	result = e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 4.50})
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateManualChangeApprovalWarning(t *testing.T) {
	store := &fakeStore{rules: []Rule{
		{Name: "default_policy", RequireApprovalIfConfidenceLT: floatPtr(0.8)},
	}}
	e := testEvaluator(store)

	// Manual change: warn
	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 5.00})
	if !result.IsValid || len(result.Warnings) != 1 {
		t.Errorf("expected valid with one warning, got valid=%v warnings=%v", result.IsValid, result.Warnings)
	}

	// Recommendation-backed change: no warning
	result = e.Validate(context.Background(), ChangeRequest{
		ZoneID:           "z-110",
		NewPrice:         5.00,
		RecommendationID: strPtr("rec-1"),
	})
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateStoreErrorFailsClosed(t *testing.T) {
	store := &fakeStore{rulesErr: errors.New("connection refused")}
	e := testEvaluator(store)

	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 5.00})
	if result.IsValid {
		t.Fatal("datastore failure must not validate the change")
	}
	if !strings.Contains(result.Reason, "validation error") {
		t.Errorf("reason = %q, want validation-error reason", result.Reason)
	}
}

func TestValidateNoActiveRulesAllowsAll(t *testing.T) {
	store := &fakeStore{}
	e := testEvaluator(store)

	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 0.25, ChangePct: floatPtr(5.0)})
	if !result.IsValid {
		t.Errorf("no active rules should allow the change: %v", result.ViolatedRules)
	}
}

func TestValidateConsistencyLookupFailureOnlyLosesWarning(t *testing.T) {
	store := &fakeStore{
		rules:     []Rule{{Name: "default_policy", MaxChangePct: floatPtr(0.50)}},
		pricesErr: errors.New("timeout"),
	}
	e := testEvaluator(store)

	result := e.Validate(context.Background(), ChangeRequest{ZoneID: "z-110", NewPrice: 5.00})
	if !result.IsValid {
		t.Errorf("consistency lookup failure must not invalidate: %v", result.ViolatedRules)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}
