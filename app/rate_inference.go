package app

import (
	"context"
	"log"

	"parking-analyst/database/types"
	"parking-analyst/probe"
)

// Standard municipal rate plan used when a zone has no transaction history
// to infer from
var standardTiers = []struct {
	maxMinutes int
	rate       float64
	name       string
}{
	{60, 4.00, "First hour"},
	{180, 6.00, "Up to 3 hours"},
	{480, 8.00, "Half day"},
	{1440, 10.00, "Full day"},
}

// StatsSource supplies zone transaction aggregates
type StatsSource interface {
	ZoneStats(ctx context.Context, zoneID string) (*types.ZoneStats, error)
}

// RateInference derives a zone's current rate tiers from its observed
// transaction economics. The upstream rates platform is the system of
// record; this is a read-side estimate good enough to anchor probe deltas
// and recommendations.
type RateInference struct {
	stats StatsSource
}

// NewRateInference creates a rate inference service
func NewRateInference(stats StatsSource) *RateInference {
	return &RateInference{stats: stats}
}

// DefaultTiers returns the standard rate plan
func DefaultTiers() []probe.RateTier {
	tiers := make([]probe.RateTier, 0, len(standardTiers))
	for _, t := range standardTiers {
		maxMin := t.maxMinutes
		tiers = append(tiers, probe.RateTier{
			DurationMaxMinutes: &maxMin,
			RatePerHour:        t.rate,
			TierName:           t.name,
		})
	}
	return tiers
}

// BaseTiers returns the zone's estimated current tiers. The standard plan is
// scaled by the implied hourly rate from observed tickets, clamped so a few
// outlier sessions cannot produce absurd anchors. Zones without history get
// the standard plan unscaled.
func (ri *RateInference) BaseTiers(ctx context.Context, zoneID, daypart string, dow int) ([]probe.RateTier, error) {
	stats, err := ri.stats.ZoneStats(ctx, zoneID)
	if err != nil {
		log.Printf("⚠️ Rate inference falling back to standard plan for zone %s: %v", zoneID, err)
		return DefaultTiers(), nil
	}
	if stats == nil || stats.AvgDurationMinutes <= 0 || stats.AvgTicket <= 0 {
		return DefaultTiers(), nil
	}

	impliedHourly := stats.AvgTicket / (stats.AvgDurationMinutes / 60.0)
	factor := impliedHourly / standardTiers[0].rate
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 2.0 {
		factor = 2.0
	}

	tiers := DefaultTiers()
	for i := range tiers {
		tiers[i].RatePerHour = probe.RoundToQuarter(tiers[i].RatePerHour * factor)
	}
	return tiers, nil
}
