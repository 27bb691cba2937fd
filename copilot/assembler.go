// Package copilot answers analyst questions about a zone in grounded
// natural language. Conversations live in threads; durable facts from them
// are distilled into memories that feed future prompts.
package copilot

import (
	"fmt"
	"strings"
	"time"

	"parking-analyst/database"
	"parking-analyst/database/types"
	"parking-analyst/llm"
	"parking-analyst/probe"
)

const (
	// historyLimit caps how many prior turns are replayed into the prompt
	historyLimit = 10
	// memoryContentMax truncates long memory bodies before prompting
	memoryContentMax = 200
	// maxAnswerWords bounds the copilot's answer length
	maxAnswerWords = 250
)

// BuildPrompt assembles the copilot prompt: zone metrics, the active
// guardrail limits, prior distilled memories, the trimmed conversation, and
// finally the question. stats may be nil for a zone without transactions.
func BuildPrompt(zoneID string, stats *types.ZoneStats, dayparts []types.DaypartStats,
	limits probe.GuardrailSnapshot, memories []database.CopilotMemory,
	history []database.CopilotMessage, question string, asOf time.Time) string {

	var sb strings.Builder
	sb.Grow(2048 + len(memories)*240 + len(history)*160)

	sb.WriteString("You are answering an operator's question about one parking zone.\n\n")
	sb.WriteString("## CONTEXT\n")
	sb.WriteString(fmt.Sprintf("Zone: %s\n", zoneID))
	sb.WriteString(fmt.Sprintf("Analysis time: %s\n\n", asOf.UTC().Format("2006-01-02 15:04 UTC")))

	sb.WriteString("## RECENT PERFORMANCE\n")
	if stats == nil {
		sb.WriteString("No transaction data on file for this zone.\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("- Sessions: %d across %d active days\n", stats.TotalTransactions, stats.ActiveDays))
		sb.WriteString(fmt.Sprintf("- Revenue: $%.2f total, $%.2f average ticket\n", stats.TotalRevenue, stats.AvgTicket))
		sb.WriteString(fmt.Sprintf("- Average stay: %.0f minutes (range %.0f-%.0f)\n",
			stats.AvgDurationMinutes, stats.MinDurationMinutes, stats.MaxDurationMinutes))
		sb.WriteString(fmt.Sprintf("- Morning share: %.0f%% of sessions, peak day %s\n",
			stats.MorningShare*100, llm.Weekday(stats.PeakDow)))
		for _, dp := range dayparts {
			sb.WriteString(fmt.Sprintf("- %s daypart: %d sessions, $%.2f revenue, %.0f min average stay\n",
				dp.Daypart, dp.Transactions, dp.Revenue, dp.AvgMinutes))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## GUARDRAILS (MUST COMPLY)\n")
	if limits.MaxChangePct > 0 {
		sb.WriteString(fmt.Sprintf("- Maximum price change: %.1f%%\n", limits.MaxChangePct*100))
	} else {
		sb.WriteString("- No price-change cap currently active\n")
	}
	if limits.MinApprovalRequired {
		sb.WriteString("- Low-confidence recommendations require approval\n")
	}
	sb.WriteString("\n")

	if len(memories) > 0 {
		sb.WriteString("## PRIOR FEEDBACK & INSIGHTS\n")
		for _, m := range memories {
			content := m.Content
			if len(content) > memoryContentMax {
				content = content[:memoryContentMax-3] + "..."
			}
			topic := m.Topic
			if topic == "" {
				topic = "general"
			}
			sb.WriteString(fmt.Sprintf("[%s/%s] %s\n", strings.ToUpper(m.Kind), topic, content))
		}
		sb.WriteString("\n")
	}

	if trimmed := trimHistory(history); len(trimmed) > 0 {
		sb.WriteString("## CONVERSATION SO FAR\n")
		for _, msg := range trimmed {
			sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## QUESTION\n")
	sb.WriteString(question)
	sb.WriteString(fmt.Sprintf("\n\nAnswer only from the data above. State it plainly when the data cannot answer the question. Maximum %d words.", maxAnswerWords))

	return sb.String()
}

// trimHistory keeps the most recent turns so long threads never blow up the
// prompt
func trimHistory(history []database.CopilotMessage) []database.CopilotMessage {
	if len(history) <= historyLimit {
		return history
	}
	return history[len(history)-historyLimit:]
}
