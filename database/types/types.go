// Package types holds shared query-result shapes returned by the metric
// repositories. They are plain scan targets, not persisted models.
package types

// ZoneStats aggregates a zone's historical transactions for insight
// generation and rate inference
type ZoneStats struct {
	ZoneID             string  `json:"zone_id"`
	TotalTransactions  int64   `json:"total_transactions"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes"`
	MinDurationMinutes float64 `json:"min_duration_minutes"`
	MaxDurationMinutes float64 `json:"max_duration_minutes"`
	TotalRevenue       float64 `json:"total_revenue"`
	AvgTicket          float64 `json:"avg_ticket"`
	ActiveDays         int64   `json:"active_days"`
	MorningShare       float64 `json:"morning_share"` // fraction of sessions in the morning daypart
	PeakDow            int     `json:"peak_dow"`      // busiest day of week, 0=Sunday
}

// DaypartStats is one row of a zone's per-daypart breakdown
type DaypartStats struct {
	Daypart      string  `json:"daypart"`
	Transactions int64   `json:"transactions"`
	Revenue      float64 `json:"revenue"`
	AvgMinutes   float64 `json:"avg_minutes"`
}

// BaselineMetrics carries the control-arm baseline used by probe
// evaluation. Observed is false when the zone had no usable transaction
// data and the configured defaults were substituted.
type BaselineMetrics struct {
	RevPSH       float64 `json:"rev_psh"`
	Occupancy    float64 `json:"occupancy"`
	Observed     bool    `json:"observed"`
	Transactions int64   `json:"transactions"`
}
