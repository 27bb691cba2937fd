package llm

import (
	"fmt"
	"strings"
	"time"

	"parking-analyst/database/types"
)

// Constants for prompt formatting
const maxPromptWords = 200

// Weekday maps 0=Sunday .. 6=Saturday to a display name
func Weekday(dow int) string {
	names := []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	if dow < 0 || dow >= len(names) {
		return "Unknown"
	}
	return names[dow]
}

// FormatInsightPrompt creates a prompt asking for a narrative reading of a
// zone's aggregated metrics
func FormatInsightPrompt(stats *types.ZoneStats, dayparts []types.DaypartStats) string {
	var sb strings.Builder
	sb.Grow(1024 + len(dayparts)*120)

	sb.WriteString(fmt.Sprintf("You are reviewing parking zone %s. Metrics for the analysis window:\n\n", stats.ZoneID))
	sb.WriteString(fmt.Sprintf("- Sessions: %d across %d active days\n", stats.TotalTransactions, stats.ActiveDays))
	sb.WriteString(fmt.Sprintf("- Average stay: %.0f minutes (range %.0f-%.0f)\n",
		stats.AvgDurationMinutes, stats.MinDurationMinutes, stats.MaxDurationMinutes))
	sb.WriteString(fmt.Sprintf("- Revenue: $%.2f total, $%.2f average ticket\n", stats.TotalRevenue, stats.AvgTicket))
	sb.WriteString(fmt.Sprintf("- Morning share: %.0f%% of sessions, peak day %s\n\n",
		stats.MorningShare*100, Weekday(stats.PeakDow)))

	if len(dayparts) > 0 {
		sb.WriteString("Daypart breakdown:\n")
		for _, dp := range dayparts {
			sb.WriteString(fmt.Sprintf("- %s: %d sessions, $%.2f revenue, %.0f min average stay\n",
				dp.Daypart, dp.Transactions, dp.Revenue, dp.AvgMinutes))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Tasks:\n")
	sb.WriteString("1. **Demand pattern**: What does the daypart and duration mix say about who parks here?\n")
	sb.WriteString("2. **Revenue read**: Is revenue driven by volume or ticket size, and is either at risk?\n")
	sb.WriteString("3. **Watch item**: Name the single metric an operator should watch next week.\n")
	sb.WriteString(fmt.Sprintf("\nAnswer in sharp, professional English. Maximum %d words.", maxPromptWords))

	return sb.String()
}

// FormatRecommendationPrompt creates a prompt asking for a rationale behind
// a proposed rate change for a zone
func FormatRecommendationPrompt(stats *types.ZoneStats, currentRate, proposedRate, confidence float64) string {
	var sb strings.Builder
	sb.Grow(1024)

	changePct := 0.0
	if currentRate > 0 {
		changePct = (proposedRate - currentRate) / currentRate * 100
	}

	sb.WriteString(fmt.Sprintf("A rate change is proposed for parking zone %s:\n\n", stats.ZoneID))
	sb.WriteString(fmt.Sprintf("- Current rate: $%.2f/hour, proposed: $%.2f/hour (%+.1f%%)\n", currentRate, proposedRate, changePct))
	sb.WriteString(fmt.Sprintf("- Model confidence: %.0f%%\n", confidence*100))
	sb.WriteString(fmt.Sprintf("- Sessions: %d, average ticket $%.2f, average stay %.0f minutes\n",
		stats.TotalTransactions, stats.AvgTicket, stats.AvgDurationMinutes))
	sb.WriteString(fmt.Sprintf("- Morning share %.0f%%, peak day %s, generated %s\n\n",
		stats.MorningShare*100, Weekday(stats.PeakDow), time.Now().UTC().Format("2006-01-02")))

	sb.WriteString("Write a two-sentence rationale an operations manager could read before approving. ")
	sb.WriteString("State what in the data supports the direction of the change and what could invalidate it. ")
	sb.WriteString("No hedging filler, no invented numbers.")

	return sb.String()
}
