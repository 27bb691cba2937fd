package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"parking-analyst/auth"
	"parking-analyst/config"
	"parking-analyst/database"
)

// Store persists experiments, arms and results
type Store interface {
	// CreateExperimentWithArms inserts the experiment and all of its arms
	// in one transaction; a partially written experiment is never committed
	CreateExperimentWithArms(ctx context.Context, exp *database.PricingExperiment, arms []database.PricingExperimentArm) error
	GetExperiment(ctx context.Context, id string) (*database.PricingExperiment, error)
	GetArms(ctx context.Context, experimentID string) ([]database.PricingExperimentArm, error)
	UpsertResult(ctx context.Context, result *database.PricingExperimentResult) error
}

// TierSource supplies a zone's current base rate tiers
type TierSource interface {
	BaseTiers(ctx context.Context, zoneID, daypart string, dow int) ([]RateTier, error)
}

// SnapshotSource supplies the guardrail limits to freeze into the
// experiment at creation time
type SnapshotSource interface {
	Snapshot(ctx context.Context) (GuardrailSnapshot, error)
}

// ScheduleRequest describes a probe to schedule
type ScheduleRequest struct {
	ZoneID      string    `json:"zone_id"`
	Daypart     string    `json:"daypart"`
	Dow         int       `json:"dow"`
	Deltas      []float64 `json:"deltas,omitempty"`
	HorizonDays int       `json:"horizon_days,omitempty"`
}

// ScheduleResult is the scheduling outcome returned to the caller
type ScheduleResult struct {
	ExperimentID string    `json:"experiment_id"`
	Arms         []Arm     `json:"arms"`
	Status       string    `json:"status"`
	EndsAt       time.Time `json:"ends_at"`
	HorizonDays  int       `json:"horizon_days"`
}

// Scheduler creates new probe experiments
type Scheduler struct {
	store     Store
	tiers     TierSource
	snapshots SnapshotSource
	builder   *ArmBuilder

	defaultDeltas  []float64
	defaultHorizon int

	now func() time.Time
}

// NewScheduler creates a probe scheduler
func NewScheduler(store Store, tiers TierSource, snapshots SnapshotSource, cfg *config.AnalystConfig) *Scheduler {
	return &Scheduler{
		store:          store,
		tiers:          tiers,
		snapshots:      snapshots,
		builder:        NewArmBuilder(cfg.ProbeMaxDelta),
		defaultDeltas:  cfg.ProbeDefaultDeltas,
		defaultHorizon: cfg.ProbeHorizonDays,
		now:            time.Now,
	}
}

// Schedule validates access, builds the arm set, and persists the
// experiment with its arms transactionally.
func (s *Scheduler) Schedule(ctx context.Context, user *auth.UserContext, req ScheduleRequest) (*ScheduleResult, error) {
	if !user.HasZone(req.ZoneID) {
		return nil, database.NewAccessError(req.ZoneID)
	}
	if req.Daypart != database.DaypartMorning && req.Daypart != database.DaypartEvening {
		return nil, database.NewValidationError("daypart", "must be morning or evening")
	}

	deltas := req.Deltas
	if len(deltas) == 0 {
		deltas = s.defaultDeltas
	}

	horizon := req.HorizonDays
	if horizon <= 0 {
		horizon = s.defaultHorizon
	}

	baseTiers, err := s.tiers.BaseTiers(ctx, req.ZoneID, req.Daypart, req.Dow)
	if err != nil {
		return nil, fmt.Errorf("fetch base tiers: %w", err)
	}

	snapshot, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot guardrails: %w", err)
	}

	arms := s.builder.BuildArms(req.ZoneID, req.Daypart, req.Dow, baseTiers, deltas, snapshot)

	now := s.now().UTC()
	// EndsAt is fixed here and never recomputed
	endsAt := now.Add(time.Duration(horizon) * 24 * time.Hour)

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshal guardrails snapshot: %w", err)
	}

	exp := &database.PricingExperiment{
		ID:                 uuid.NewString(),
		ZoneID:             req.ZoneID,
		Daypart:            req.Daypart,
		Dow:                req.Dow,
		Deltas:             withControl(deltas),
		GuardrailsSnapshot: string(snapshotJSON),
		HorizonDays:        horizon,
		Status:             database.ExperimentStatusScheduled,
		CreatedBy:          user.Sub,
		CreatedAt:          now,
		EndsAt:             endsAt,
	}

	armRows := make([]database.PricingExperimentArm, 0, len(arms))
	for i := range arms {
		arms[i].ID = uuid.NewString()

		proposalJSON, err := json.Marshal(arms[i].Proposal)
		if err != nil {
			return nil, fmt.Errorf("marshal arm proposal: %w", err)
		}
		armRows = append(armRows, database.PricingExperimentArm{
			ID:           arms[i].ID,
			ExperimentID: exp.ID,
			Delta:        arms[i].Delta,
			Proposal:     string(proposalJSON),
			Control:      arms[i].Control,
		})
	}

	if err := s.store.CreateExperimentWithArms(ctx, exp, armRows); err != nil {
		return nil, err
	}

	return &ScheduleResult{
		ExperimentID: exp.ID,
		Arms:         arms,
		Status:       exp.Status,
		EndsAt:       endsAt,
		HorizonDays:  horizon,
	}, nil
}

// withControl returns the delta list with 0.0 prepended when absent, so the
// persisted request always records the control
func withControl(deltas []float64) []float64 {
	for _, d := range deltas {
		if d == 0.0 {
			return deltas
		}
	}
	return append([]float64{0.0}, deltas...)
}
