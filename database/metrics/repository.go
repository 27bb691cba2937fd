// Package metrics runs the aggregate queries over historical_transactions
// that feed insight generation, rate inference, and probe evaluation.
package metrics

import (
	"context"
	"fmt"
	"time"

	"parking-analyst/database/types"

	"gorm.io/gorm"
)

// Repository handles aggregate metric queries for zones
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new metrics repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ZoneStats computes a zone's transaction aggregates. Returns nil when the
// zone has no transactions at all.
func (r *Repository) ZoneStats(ctx context.Context, zoneID string) (*types.ZoneStats, error) {
	var stats types.ZoneStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			? AS zone_id,
			COUNT(*) AS total_transactions,
			COALESCE(AVG(paid_minutes), 0) AS avg_duration_minutes,
			COALESCE(MIN(paid_minutes), 0) AS min_duration_minutes,
			COALESCE(MAX(paid_minutes), 0) AS max_duration_minutes,
			COALESCE(SUM(parking_amount), 0) AS total_revenue,
			COALESCE(AVG(parking_amount), 0) AS avg_ticket,
			COUNT(DISTINCT DATE(started_at)) AS active_days,
			COALESCE(AVG(CASE WHEN daypart = 'morning' THEN 1.0 ELSE 0.0 END), 0) AS morning_share,
			COALESCE(MODE() WITHIN GROUP (ORDER BY dow), 0) AS peak_dow
		FROM historical_transactions
		WHERE zone_id = ?
	`, zoneID, zoneID).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("ZoneStats: %w", err)
	}
	if stats.TotalTransactions == 0 {
		return nil, nil
	}
	return &stats, nil
}

// DaypartBreakdown returns per-daypart traffic and revenue for a zone
func (r *Repository) DaypartBreakdown(ctx context.Context, zoneID string) ([]types.DaypartStats, error) {
	var rows []types.DaypartStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			daypart,
			COUNT(*) AS transactions,
			COALESCE(SUM(parking_amount), 0) AS revenue,
			COALESCE(AVG(paid_minutes), 0) AS avg_minutes
		FROM historical_transactions
		WHERE zone_id = ? AND daypart <> ''
		GROUP BY daypart
		ORDER BY daypart
	`, zoneID).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("DaypartBreakdown: %w", err)
	}
	return rows, nil
}

// ObservedBaseline computes measured revenue-per-available-space-hour and an
// occupancy estimate for a zone over [start, end). Falls back to
// Observed=false with zeroed metrics when the zone has no capacity on file
// or no transactions in the window; callers substitute configured defaults.
func (r *Repository) ObservedBaseline(ctx context.Context, zoneID string, start, end time.Time) (types.BaselineMetrics, error) {
	var row struct {
		Transactions int64
		Revenue      float64
		PaidMinutes  float64
		Spaces       int
	}
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(ht.id) AS transactions,
			COALESCE(SUM(ht.parking_amount), 0) AS revenue,
			COALESCE(SUM(ht.paid_minutes), 0) AS paid_minutes,
			COALESCE(MAX(z.spaces), 0) AS spaces
		FROM zones z
		LEFT JOIN historical_transactions ht
			ON ht.zone_id = z.id AND ht.started_at >= ? AND ht.started_at < ?
		WHERE z.id = ?
	`, start, end, zoneID).Scan(&row).Error
	if err != nil {
		return types.BaselineMetrics{}, fmt.Errorf("ObservedBaseline: %w", err)
	}

	windowHours := end.Sub(start).Hours()
	if row.Transactions == 0 || row.Spaces == 0 || windowHours <= 0 {
		return types.BaselineMetrics{Transactions: row.Transactions}, nil
	}

	spaceHours := float64(row.Spaces) * windowHours
	occupancy := (row.PaidMinutes / 60.0) / spaceHours
	if occupancy > 1 {
		occupancy = 1
	}
	return types.BaselineMetrics{
		RevPSH:       row.Revenue / spaceHours,
		Occupancy:    occupancy,
		Observed:     true,
		Transactions: row.Transactions,
	}, nil
}
