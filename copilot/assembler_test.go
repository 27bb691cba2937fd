package copilot

import (
	"fmt"
	"strings"
	"testing"

	"parking-analyst/database"
	"parking-analyst/database/types"
	"parking-analyst/probe"
)

func TestBuildPromptSections(t *testing.T) {
	stats := copilotStats()
	dayparts := []types.DaypartStats{
		{Daypart: "evening", Transactions: 129, Revenue: 880.25, AvgMinutes: 120},
		{Daypart: "morning", Transactions: 211, Revenue: 1245.25, AvgMinutes: 80},
	}
	memories := []database.CopilotMemory{
		{Kind: database.MemoryKindCanonical, Topic: "events", Content: "Stadium nights always run hot."},
	}
	history := []database.CopilotMessage{
		{Role: database.MessageRoleUser, Content: "What changed last week?"},
		{Role: database.MessageRoleAssistant, Content: "Evening revenue rose."},
	}

	prompt := BuildPrompt("z-110", stats, dayparts,
		probe.GuardrailSnapshot{MaxChangePct: 0.15, MinApprovalRequired: true},
		memories, history, "Should we raise evening rates?", copilotNow)

	for _, want := range []string{
		"Zone: z-110",
		"Analysis time: 2026-08-20 12:00 UTC",
		"Sessions: 340 across 20 active days",
		"Revenue: $2125.50 total, $6.25 average ticket",
		"peak day Friday",
		"evening daypart: 129 sessions",
		"Maximum price change: 15.0%",
		"Low-confidence recommendations require approval",
		"[CANONICAL/events] Stadium nights always run hot.",
		"user: What changed last week?",
		"assistant: Evening revenue rose.",
		"Should we raise evening rates?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptWithoutData(t *testing.T) {
	prompt := BuildPrompt("z-221", nil, nil, probe.GuardrailSnapshot{}, nil, nil, "Anything to report?", copilotNow)

	if !strings.Contains(prompt, "No transaction data on file for this zone.") {
		t.Error("prompt should state that no data exists")
	}
	if !strings.Contains(prompt, "No price-change cap currently active") {
		t.Error("prompt should state the missing cap")
	}
	if strings.Contains(prompt, "PRIOR FEEDBACK") || strings.Contains(prompt, "CONVERSATION SO FAR") {
		t.Error("empty sections must be omitted")
	}
}

func TestBuildPromptTrimsHistory(t *testing.T) {
	var history []database.CopilotMessage
	for i := 0; i < 25; i++ {
		history = append(history, database.CopilotMessage{
			Role:    database.MessageRoleUser,
			Content: fmt.Sprintf("turn %d", i),
		})
	}

	prompt := BuildPrompt("z-110", copilotStats(), nil, probe.GuardrailSnapshot{}, nil, history, "q", copilotNow)

	if strings.Contains(prompt, "turn 14\n") {
		t.Error("old turns must be trimmed from the prompt")
	}
	for i := 15; i < 25; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("turn %d\n", i)) {
			t.Errorf("recent turn %d missing from the prompt", i)
		}
	}
}

func TestBuildPromptTruncatesLongMemories(t *testing.T) {
	long := strings.Repeat("x", 300)
	memories := []database.CopilotMemory{
		{Kind: database.MemoryKindContext, Content: long},
	}

	prompt := BuildPrompt("z-110", copilotStats(), nil, probe.GuardrailSnapshot{}, memories, nil, "q", copilotNow)

	if strings.Contains(prompt, long) {
		t.Error("long memory content must be truncated")
	}
	if !strings.Contains(prompt, strings.Repeat("x", memoryContentMax-3)+"...") {
		t.Error("truncated memory should end with an ellipsis")
	}
}
