package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"parking-analyst/auth"
	"parking-analyst/config"
	"parking-analyst/database"
)

type fakeTiers struct {
	tiers []RateTier
	err   error
}

func (f *fakeTiers) BaseTiers(ctx context.Context, zoneID, daypart string, dow int) ([]RateTier, error) {
	return f.tiers, f.err
}

type fakeSnapshots struct {
	snapshot GuardrailSnapshot
	err      error
}

func (f *fakeSnapshots) Snapshot(ctx context.Context) (GuardrailSnapshot, error) {
	return f.snapshot, f.err
}

func schedulerConfig() *config.AnalystConfig {
	return &config.AnalystConfig{
		ProbeMaxDelta:      0.10,
		ProbeDefaultDeltas: []float64{-0.05, -0.02, 0.02, 0.05},
		ProbeHorizonDays:   14,
	}
}

func testScheduler(store Store) *Scheduler {
	s := NewScheduler(store, &fakeTiers{tiers: testTiers()}, &fakeSnapshots{
		snapshot: GuardrailSnapshot{MaxChangePct: 0.15},
	}, schedulerConfig())
	s.now = func() time.Time {
		return time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	}
	return s
}

func testUser() *auth.UserContext {
	return &auth.UserContext{
		Sub:     "user-1",
		ZoneIDs: []string{"z-110", "z-221"},
	}
}

func TestScheduleRejectsForeignZone(t *testing.T) {
	store := &fakeProbeStore{}
	s := testScheduler(store)

	_, err := s.Schedule(context.Background(), testUser(), ScheduleRequest{
		ZoneID: "z-999", Daypart: "morning", Dow: 1,
	})

	var access *database.AccessError
	if !errors.As(err, &access) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if store.created != nil {
		t.Error("nothing should be persisted on access failure")
	}
}

func TestScheduleRejectsInvalidDaypart(t *testing.T) {
	for _, daypart := range []string{"afternoon", "night", "MORNING", ""} {
		t.Run(daypart, func(t *testing.T) {
			store := &fakeProbeStore{}
			s := testScheduler(store)

			_, err := s.Schedule(context.Background(), testUser(), ScheduleRequest{
				ZoneID: "z-110", Daypart: daypart, Dow: 1,
			})

			var validation *database.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if store.created != nil {
				t.Error("nothing should be persisted for an invalid daypart")
			}
		})
	}
}

func TestScheduleAppliesDefaults(t *testing.T) {
	store := &fakeProbeStore{}
	s := testScheduler(store)

	result, err := s.Schedule(context.Background(), testUser(), ScheduleRequest{
		ZoneID: "z-110", Daypart: "morning", Dow: 1,
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// 4 default deltas plus the prepended control
	if len(result.Arms) != 5 {
		t.Fatalf("expected 5 arms, got %d", len(result.Arms))
	}
	if result.HorizonDays != 14 {
		t.Errorf("horizon = %d, want 14", result.HorizonDays)
	}
	if result.Status != database.ExperimentStatusScheduled {
		t.Errorf("status = %q, want scheduled", result.Status)
	}

	wantEnds := time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)
	if !result.EndsAt.Equal(wantEnds) {
		t.Errorf("ends_at = %v, want %v", result.EndsAt, wantEnds)
	}
}

func TestSchedulePersistsExperimentAndArms(t *testing.T) {
	store := &fakeProbeStore{}
	s := testScheduler(store)

	result, err := s.Schedule(context.Background(), testUser(), ScheduleRequest{
		ZoneID:      "z-110",
		Daypart:     "evening",
		Dow:         5,
		Deltas:      []float64{0.05},
		HorizonDays: 7,
	})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	exp := store.created
	if exp == nil {
		t.Fatal("experiment not persisted")
	}
	if exp.ZoneID != "z-110" || exp.Daypart != "evening" || exp.Dow != 5 {
		t.Errorf("persisted experiment mismatch: %+v", exp)
	}
	if exp.CreatedBy != "user-1" {
		t.Errorf("created_by = %q, want user-1", exp.CreatedBy)
	}
	if exp.HorizonDays != 7 {
		t.Errorf("horizon = %d, want 7", exp.HorizonDays)
	}

	// The persisted delta list always records the control
	if len(exp.Deltas) != 2 || exp.Deltas[0] != 0.0 {
		t.Errorf("persisted deltas = %v, want control prepended", exp.Deltas)
	}

	if len(store.createdArms) != len(result.Arms) {
		t.Fatalf("persisted %d arm rows for %d arms", len(store.createdArms), len(result.Arms))
	}
	for i, row := range store.createdArms {
		if row.ExperimentID != exp.ID {
			t.Errorf("arm %d not linked to experiment", i)
		}
		if row.ID == "" || row.Proposal == "" {
			t.Errorf("arm %d missing ID or proposal payload", i)
		}
		if row.ID != result.Arms[i].ID {
			t.Errorf("arm %d ID mismatch between row and response", i)
		}
	}
	if !store.createdArms[0].Control {
		t.Error("first persisted arm should be the control")
	}
}

func TestScheduleStoreFailurePropagates(t *testing.T) {
	store := &fakeProbeStore{createErr: errors.New("insert failed")}
	s := testScheduler(store)

	_, err := s.Schedule(context.Background(), testUser(), ScheduleRequest{
		ZoneID: "z-110", Daypart: "morning", Dow: 1,
	})
	if err == nil {
		t.Fatal("expected error from store")
	}
}
