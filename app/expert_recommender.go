package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"parking-analyst/database"
	"parking-analyst/database/types"
	"parking-analyst/llm"
	"parking-analyst/probe"
)

// RecommendationStore persists generated recommendations
type RecommendationStore interface {
	SaveRecommendations(ctx context.Context, recs []database.Recommendation) error
}

// LimitSource supplies the guardrail limits a proposal must respect
type LimitSource interface {
	Snapshot(ctx context.Context) (probe.GuardrailSnapshot, error)
}

// ExpertRecommender generates expert-framework rate recommendations from
// zone aggregates. Proposals never exceed the active guardrail's change cap;
// the recommendation exists to be reviewed, not to dodge validation later.
type ExpertRecommender struct {
	store     RecommendationStore
	stats     StatsSource
	inference *RateInference
	limits    LimitSource
	llmClient *llm.Client

	now func() time.Time
}

// NewExpertRecommender creates an expert recommender. llmClient may be nil.
func NewExpertRecommender(store RecommendationStore, stats StatsSource, inference *RateInference, limits LimitSource, llmClient *llm.Client) *ExpertRecommender {
	return &ExpertRecommender{
		store:     store,
		stats:     stats,
		inference: inference,
		limits:    limits,
		llmClient: llmClient,
		now:       time.Now,
	}
}

// RefreshRecommendations generates one expert recommendation per zone with
// usable transaction data
func (er *ExpertRecommender) RefreshRecommendations(ctx context.Context, zoneIDs []string) error {
	snapshot, err := er.limits.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("guardrail limits: %w", err)
	}

	generatedAt := er.now().UTC()
	var batch []database.Recommendation

	for _, zoneID := range zoneIDs {
		stats, err := er.stats.ZoneStats(ctx, zoneID)
		if err != nil {
			return fmt.Errorf("zone stats for %s: %w", zoneID, err)
		}
		if stats == nil {
			continue
		}

		rec, err := er.buildRecommendation(ctx, stats, snapshot, generatedAt)
		if err != nil {
			return err
		}
		batch = append(batch, *rec)
	}

	if err := er.store.SaveRecommendations(ctx, batch); err != nil {
		return err
	}
	log.Printf("🎯 Generated %d expert recommendations", len(batch))
	return nil
}

func (er *ExpertRecommender) buildRecommendation(ctx context.Context, stats *types.ZoneStats, snapshot probe.GuardrailSnapshot, generatedAt time.Time) (*database.Recommendation, error) {
	delta, daypart := recommendDelta(stats)

	// Clamp to the guardrail cap so the proposal is always applyable
	if math.Abs(delta) > snapshot.MaxChangePct {
		if delta > 0 {
			delta = snapshot.MaxChangePct
		} else {
			delta = -snapshot.MaxChangePct
		}
	}

	baseTiers, err := er.inference.BaseTiers(ctx, stats.ZoneID, daypart, stats.PeakDow)
	if err != nil {
		return nil, fmt.Errorf("base tiers for %s: %w", stats.ZoneID, err)
	}

	adjusted := make([]probe.RateTier, 0, len(baseTiers))
	for _, tier := range baseTiers {
		adjusted = append(adjusted, probe.RateTier{
			DurationMaxMinutes: tier.DurationMaxMinutes,
			RatePerHour:        probe.RoundToQuarter(tier.RatePerHour * (1 + delta)),
			TierName:           tier.TierName,
			OriginalRate:       tier.RatePerHour,
			DeltaApplied:       delta,
		})
	}

	proposal := probe.Proposal{
		ZoneID:        stats.ZoneID,
		Daypart:       daypart,
		Dow:           stats.PeakDow,
		Tiers:         adjusted,
		EffectiveDate: generatedAt,
	}
	proposalJSON, err := json.Marshal(proposal)
	if err != nil {
		return nil, fmt.Errorf("marshal proposal: %w", err)
	}

	confidence := recommendConfidence(stats)

	return &database.Recommendation{
		ID:              uuid.NewString(),
		ZoneID:          stats.ZoneID,
		Proposal:        string(proposalJSON),
		Confidence:      confidence,
		Rationale:       er.rationale(ctx, stats, baseTiers[0].RatePerHour, adjusted[0].RatePerHour, confidence),
		ExpertFramework: true,
		Status:          database.RecommendationStatusProposed,
		CreatedAt:       generatedAt,
	}, nil
}

// recommendDelta picks a direction and magnitude from the demand shape.
// Short average stays signal price-sensitive turnover traffic; a strongly
// skewed daypart signals headroom in the dominant period.
func recommendDelta(stats *types.ZoneStats) (float64, string) {
	daypart := database.DaypartMorning
	if stats.MorningShare < 0.5 {
		daypart = database.DaypartEvening
	}

	if stats.AvgDurationMinutes < 90 {
		return -0.02, daypart
	}
	if stats.MorningShare > 0.65 || stats.MorningShare < 0.35 {
		return 0.05, daypart
	}
	return 0.02, daypart
}

// recommendConfidence scales with sample size, capped below the level that
// would bypass approval
func recommendConfidence(stats *types.ZoneStats) float64 {
	confidence := 0.55 + float64(stats.TotalTransactions)/5000.0*0.3
	if confidence > 0.85 {
		confidence = 0.85
	}
	return math.Round(confidence*1000) / 1000
}

// rationale asks the LLM for a reviewer-facing explanation, degrading to a
// deterministic sentence when the LLM is unavailable
func (er *ExpertRecommender) rationale(ctx context.Context, stats *types.ZoneStats, currentRate, proposedRate, confidence float64) string {
	fallback := fmt.Sprintf(
		"Proposed %+.1f%% based on %d sessions: average stay %.0f minutes, %.0f%% morning share.",
		(proposedRate-currentRate)/currentRate*100, stats.TotalTransactions,
		stats.AvgDurationMinutes, stats.MorningShare*100)

	if er.llmClient == nil {
		return fallback
	}

	llmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rationale, err := er.llmClient.Analyze(llmCtx, llm.FormatRecommendationPrompt(stats, currentRate, proposedRate, confidence))
	if err != nil {
		log.Printf("⚠️ LLM rationale failed for zone %s: %v", stats.ZoneID, err)
		return fallback
	}
	return rationale
}
