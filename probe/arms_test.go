package probe

import (
	"math"
	"testing"
	"time"
)

func TestRoundToQuarter(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		expected float64
	}{
		{"exact quarter unchanged", 4.25, 4.25},
		{"rounds up past midpoint", 4.20, 4.25},
		{"rounds down below midpoint", 4.10, 4.00},
		{"midpoint rounds up", 4.125, 4.25},
		{"zero", 0.0, 0.0},
		{"whole dollar unchanged", 6.00, 6.00},
		{"negative mirrors positive", -4.20, -4.25},
		{"negative midpoint away from zero", -4.125, -4.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundToQuarter(tt.amount)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("RoundToQuarter(%v) = %v, want %v", tt.amount, got, tt.expected)
			}
		})
	}
}

func TestRoundToQuarterInvariants(t *testing.T) {
	amounts := []float64{0.01, 1.13, 3.87, 4.20, 7.99, 10.126, 123.456}
	for _, amount := range amounts {
		rounded := RoundToQuarter(amount)

		// Always an exact multiple of 0.25
		quarters := rounded * 4
		if math.Abs(quarters-math.Round(quarters)) > 1e-9 {
			t.Errorf("RoundToQuarter(%v) = %v is not a multiple of 0.25", amount, rounded)
		}

		// Idempotent
		if again := RoundToQuarter(rounded); again != rounded {
			t.Errorf("RoundToQuarter not idempotent: %v -> %v -> %v", amount, rounded, again)
		}
	}
}

func testTiers() []RateTier {
	firstHour := 60
	return []RateTier{
		{DurationMaxMinutes: &firstHour, RatePerHour: 4.00, TierName: "First hour"},
	}
}

func testBuilder() *ArmBuilder {
	b := NewArmBuilder(0.10)
	b.now = func() time.Time {
		return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	}
	return b
}

func TestBuildArmsAlwaysIncludesControl(t *testing.T) {
	builder := testBuilder()
	snapshot := GuardrailSnapshot{MaxChangePct: 0.15}

	tests := []struct {
		name   string
		deltas []float64
	}{
		{"control absent from request", []float64{-0.05, 0.05}},
		{"control present in request", []float64{0.0, 0.05}},
		{"empty delta list", []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arms := builder.BuildArms("z-110", "morning", 1, testTiers(), tt.deltas, snapshot)

			controls := 0
			for _, arm := range arms {
				if arm.Control {
					controls++
					if arm.Delta != 0.0 {
						t.Errorf("control arm has delta %v", arm.Delta)
					}
				}
			}
			if controls != 1 {
				t.Fatalf("expected exactly 1 control arm, got %d", controls)
			}
			if !arms[0].Control {
				t.Errorf("control arm is not first")
			}
		})
	}
}

func TestBuildArmsDropsOutOfBoundDeltas(t *testing.T) {
	builder := testBuilder()

	tests := []struct {
		name         string
		deltas       []float64
		snapshotMax  float64
		expectedLen  int
		droppedDelta float64
	}{
		{"beyond system cap", []float64{0.05, 0.20}, 0.50, 2, 0.20},
		{"beyond snapshot cap", []float64{0.02, 0.08}, 0.05, 2, 0.08},
		{"negative beyond cap", []float64{-0.15, -0.05}, 0.15, 2, -0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arms := builder.BuildArms("z-110", "morning", 1, testTiers(),
				tt.deltas, GuardrailSnapshot{MaxChangePct: tt.snapshotMax})

			if len(arms) != tt.expectedLen {
				t.Fatalf("expected %d arms, got %d", tt.expectedLen, len(arms))
			}
			for _, arm := range arms {
				if arm.Delta == tt.droppedDelta {
					t.Errorf("delta %v should have been dropped", tt.droppedDelta)
				}
			}
		})
	}
}

func TestBuildArmsRoundsRatesToQuarter(t *testing.T) {
	builder := testBuilder()
	arms := builder.BuildArms("z-110", "morning", 1, testTiers(),
		[]float64{0.05}, GuardrailSnapshot{MaxChangePct: 0.15})

	if len(arms) != 2 {
		t.Fatalf("expected 2 arms, got %d", len(arms))
	}

	// 4.00 * 1.05 = 4.20 rounds up to 4.25
	probeArm := arms[1]
	if probeArm.Proposal.Tiers[0].RatePerHour != 4.25 {
		t.Errorf("expected adjusted rate 4.25, got %v", probeArm.Proposal.Tiers[0].RatePerHour)
	}
	if probeArm.Proposal.Tiers[0].OriginalRate != 4.00 {
		t.Errorf("expected original rate 4.00, got %v", probeArm.Proposal.Tiers[0].OriginalRate)
	}
	if probeArm.Proposal.Tiers[0].DeltaApplied != 0.05 {
		t.Errorf("expected delta applied 0.05, got %v", probeArm.Proposal.Tiers[0].DeltaApplied)
	}

	// Control keeps the base rate
	if arms[0].Proposal.Tiers[0].RatePerHour != 4.00 {
		t.Errorf("control rate changed: %v", arms[0].Proposal.Tiers[0].RatePerHour)
	}
}
