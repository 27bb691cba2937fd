package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"parking-analyst/cache"
	"parking-analyst/database"
	"parking-analyst/database/types"
	"parking-analyst/llm"
)

// DaypartSource supplies per-daypart breakdowns
type DaypartSource interface {
	DaypartBreakdown(ctx context.Context, zoneID string) ([]types.DaypartStats, error)
}

// InsightStore persists regenerated insights
type InsightStore interface {
	ReplaceInsights(ctx context.Context, zoneIDs []string, insights []database.Insight) error
}

// InsightGenerator regenerates narrative insights for zones from their
// transaction aggregates. Insights are replaced wholesale per refresh; the
// optional LLM narrative rides on the summary insight and degrades to a
// deterministic summary when the LLM is unavailable.
type InsightGenerator struct {
	store      InsightStore
	stats      StatsSource
	dayparts   DaypartSource
	llmClient  *llm.Client
	llmEnabled bool
	narratives *cache.NarrativeCache

	now func() time.Time
}

// NewInsightGenerator creates an insight generator. llmClient may be nil.
func NewInsightGenerator(store InsightStore, stats StatsSource, dayparts DaypartSource, llmClient *llm.Client, narratives *cache.NarrativeCache) *InsightGenerator {
	return &InsightGenerator{
		store:      store,
		stats:      stats,
		dayparts:   dayparts,
		llmClient:  llmClient,
		llmEnabled: llmClient != nil,
		narratives: narratives,
		now:        time.Now,
	}
}

// RefreshInsights regenerates insights for the given zones. Zones without
// transaction data produce no insights; their stale rows are still cleared.
func (g *InsightGenerator) RefreshInsights(ctx context.Context, zoneIDs []string) error {
	generatedAt := g.now().UTC()
	var batch []database.Insight

	for _, zoneID := range zoneIDs {
		stats, err := g.stats.ZoneStats(ctx, zoneID)
		if err != nil {
			return fmt.Errorf("zone stats for %s: %w", zoneID, err)
		}
		if stats == nil {
			log.Printf("ℹ️ Zone %s has no transactions, skipping insight generation", zoneID)
			continue
		}

		dayparts, err := g.dayparts.DaypartBreakdown(ctx, zoneID)
		if err != nil {
			return fmt.Errorf("daypart breakdown for %s: %w", zoneID, err)
		}

		batch = append(batch, g.buildInsights(ctx, stats, dayparts, generatedAt)...)
	}

	if err := g.store.ReplaceInsights(ctx, zoneIDs, batch); err != nil {
		return err
	}
	log.Printf("💡 Regenerated %d insights across %d zones", len(batch), len(zoneIDs))
	return nil
}

// buildInsights produces the per-zone insight set from aggregates
func (g *InsightGenerator) buildInsights(ctx context.Context, stats *types.ZoneStats, dayparts []types.DaypartStats, generatedAt time.Time) []database.Insight {
	metricsJSON, _ := json.Marshal(stats)

	newInsight := func(kind, title, body, severity string) database.Insight {
		return database.Insight{
			ID:        uuid.NewString(),
			ZoneID:    stats.ZoneID,
			Kind:      kind,
			Title:     title,
			Body:      body,
			Severity:  severity,
			Metrics:   string(metricsJSON),
			CreatedAt: generatedAt,
		}
	}

	insights := []database.Insight{
		newInsight(database.InsightKindVolume,
			fmt.Sprintf("%d sessions over %d active days", stats.TotalTransactions, stats.ActiveDays),
			fmt.Sprintf("Zone %s averaged %.0f sessions per active day.",
				stats.ZoneID, float64(stats.TotalTransactions)/float64(max64(stats.ActiveDays, 1))),
			database.SeverityInfo),
		newInsight(database.InsightKindRevenue,
			fmt.Sprintf("$%.2f total revenue, $%.2f average ticket", stats.TotalRevenue, stats.AvgTicket),
			fmt.Sprintf("Revenue for zone %s is %s.", stats.ZoneID, revenueShape(stats)),
			database.SeverityInfo),
	}

	durationSeverity := database.SeverityInfo
	if stats.AvgDurationMinutes > 240 {
		durationSeverity = database.SeverityNotable
	}
	insights = append(insights, newInsight(database.InsightKindDuration,
		fmt.Sprintf("Average stay %.0f minutes", stats.AvgDurationMinutes),
		fmt.Sprintf("Stays range from %.0f to %.0f minutes.", stats.MinDurationMinutes, stats.MaxDurationMinutes),
		durationSeverity))

	patternSeverity := database.SeverityInfo
	if stats.MorningShare > 0.7 || stats.MorningShare < 0.3 {
		patternSeverity = database.SeverityNotable
	}
	insights = append(insights, newInsight(database.InsightKindPattern,
		fmt.Sprintf("%.0f%% of sessions start in the morning", stats.MorningShare*100),
		fmt.Sprintf("Busiest day of week is %s.", llm.Weekday(stats.PeakDow)),
		patternSeverity))

	summary := g.summaryNarrative(ctx, stats, dayparts)
	insights = append(insights, newInsight(database.InsightKindSummary,
		fmt.Sprintf("Zone %s summary", stats.ZoneID), summary, database.SeverityInfo))

	return insights
}

// summaryNarrative returns the LLM narrative when enabled and obtainable,
// otherwise a deterministic summary. Narratives are cached per data hash so
// unchanged metrics never trigger another LLM call.
func (g *InsightGenerator) summaryNarrative(ctx context.Context, stats *types.ZoneStats, dayparts []types.DaypartStats) string {
	fallback := fmt.Sprintf(
		"Zone %s recorded %d sessions and $%.2f revenue. Average stay %.0f minutes with %.0f%% morning share.",
		stats.ZoneID, stats.TotalTransactions, stats.TotalRevenue,
		stats.AvgDurationMinutes, stats.MorningShare*100)

	if !g.llmEnabled {
		return fallback
	}

	dataHash := cache.GenerateDataHash(stats)
	if g.narratives != nil {
		if cached, ok := g.narratives.GetNarrative(ctx, stats.ZoneID, dataHash); ok {
			return cached
		}
		if g.narratives.IsInCooldown(ctx, stats.ZoneID) {
			return fallback
		}
	}

	llmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	narrative, err := g.llmClient.Analyze(llmCtx, llm.FormatInsightPrompt(stats, dayparts))
	if err != nil {
		log.Printf("⚠️ LLM narrative failed for zone %s: %v", stats.ZoneID, err)
		if g.narratives != nil {
			_ = g.narratives.SetCooldown(ctx, stats.ZoneID, 10*time.Minute)
		}
		return fallback
	}

	if g.narratives != nil {
		_ = g.narratives.SetNarrative(ctx, stats.ZoneID, dataHash, narrative, 24*time.Hour)
	}
	return narrative
}

// revenueShape classifies whether revenue is volume- or ticket-driven
func revenueShape(stats *types.ZoneStats) string {
	if stats.AvgTicket >= 8.0 {
		return "ticket-driven: fewer, longer, higher-value sessions"
	}
	return "volume-driven: many short, low-value sessions"
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
