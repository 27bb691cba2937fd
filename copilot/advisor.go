package copilot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"parking-analyst/auth"
	"parking-analyst/database"
	"parking-analyst/database/types"
	"parking-analyst/llm"
	"parking-analyst/probe"
)

const (
	askTimeout    = 30 * time.Second
	streamTimeout = 90 * time.Second

	// memoryLimit caps how many distilled memories ride into one prompt
	memoryLimit = 10
)

// Narrator produces grounded narrative answers. Both entry points are used:
// the blocking call for JSON responses, the streaming call for the SSE feed.
type Narrator interface {
	Analyze(ctx context.Context, prompt string) (string, error)
	AnalyzeStream(ctx context.Context, prompt string, callback llm.StreamCallback) error
}

// Store persists threads, messages and distilled memories
type Store interface {
	CreateThread(ctx context.Context, thread *database.CopilotThread) error
	GetThread(ctx context.Context, id string) (*database.CopilotThread, error)
	AppendMessage(ctx context.Context, msg *database.CopilotMessage) error
	ListMessages(ctx context.Context, threadID string) ([]database.CopilotMessage, error)
	ListMemories(ctx context.Context, zoneIDs []string, kind string, limit int) ([]database.CopilotMemory, error)
	SaveMemories(ctx context.Context, memories []database.CopilotMemory) error
}

// StatsSource supplies the zone aggregates that ground every answer
type StatsSource interface {
	ZoneStats(ctx context.Context, zoneID string) (*types.ZoneStats, error)
}

// DaypartSource supplies per-daypart breakdowns
type DaypartSource interface {
	DaypartBreakdown(ctx context.Context, zoneID string) ([]types.DaypartStats, error)
}

// LimitSource supplies the active guardrail limits for prompt context
type LimitSource interface {
	Snapshot(ctx context.Context) (probe.GuardrailSnapshot, error)
}

// Advisor runs zone Q&A threads. Answers come from the narrator when one is
// configured and degrade to a deterministic metrics summary otherwise, so
// the copilot surface works without an LLM.
type Advisor struct {
	store     Store
	stats     StatsSource
	dayparts  DaypartSource
	limits    LimitSource
	narrator  Narrator // nil when the LLM is disabled
	distiller *MemoryDistiller

	now func() time.Time
}

// NewAdvisor creates a copilot advisor. narrator may be nil.
func NewAdvisor(store Store, stats StatsSource, dayparts DaypartSource, limits LimitSource, narrator Narrator) *Advisor {
	return &Advisor{
		store:     store,
		stats:     stats,
		dayparts:  dayparts,
		limits:    limits,
		narrator:  narrator,
		distiller: NewMemoryDistiller(store, narrator),
		now:       time.Now,
	}
}

// StartThread opens a new conversation thread for a zone
func (a *Advisor) StartThread(ctx context.Context, user *auth.UserContext, zoneID, title string) (*database.CopilotThread, error) {
	if !user.HasZone(zoneID) {
		return nil, database.NewAccessError(zoneID)
	}

	thread := &database.CopilotThread{
		ID:        uuid.NewString(),
		ZoneID:    zoneID,
		Title:     title,
		Status:    database.ThreadStatusOpen,
		CreatedBy: user.Sub,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	return thread, nil
}

// Ask records the question, answers it, and records the answer. The user
// message is persisted before the narrator is consulted so the question
// survives an LLM failure.
func (a *Advisor) Ask(ctx context.Context, user *auth.UserContext, threadID, question string) (*database.CopilotMessage, error) {
	thread, prompt, stats, err := a.prepare(ctx, user, threadID, question)
	if err != nil {
		return nil, err
	}

	answer := a.fallbackAnswer(thread.ZoneID, stats)
	if a.narrator != nil {
		llmCtx, cancel := context.WithTimeout(ctx, askTimeout)
		defer cancel()

		text, err := a.narrator.Analyze(llmCtx, prompt)
		if err != nil {
			log.Printf("⚠️ Copilot answer failed for thread %s: %v", thread.ID, err)
		} else {
			answer = text
		}
	}

	return a.persistAnswer(ctx, thread.ID, answer)
}

// AskStream is Ask with the answer streamed chunk by chunk through the
// callback. The full accumulated answer is persisted as the assistant turn;
// a stream that dies mid-answer persists whatever arrived.
func (a *Advisor) AskStream(ctx context.Context, user *auth.UserContext, threadID, question string, callback llm.StreamCallback) (*database.CopilotMessage, error) {
	thread, prompt, stats, err := a.prepare(ctx, user, threadID, question)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	if a.narrator == nil {
		answer := a.fallbackAnswer(thread.ZoneID, stats)
		if err := callback(answer); err != nil {
			return nil, fmt.Errorf("stream callback: %w", err)
		}
		sb.WriteString(answer)
	} else {
		llmCtx, cancel := context.WithTimeout(ctx, streamTimeout)
		defer cancel()

		err := a.narrator.AnalyzeStream(llmCtx, prompt, func(chunk string) error {
			sb.WriteString(chunk)
			return callback(chunk)
		})
		if err != nil {
			log.Printf("⚠️ Copilot stream failed for thread %s: %v", thread.ID, err)
			if sb.Len() == 0 {
				answer := a.fallbackAnswer(thread.ZoneID, stats)
				if cbErr := callback(answer); cbErr != nil {
					return nil, fmt.Errorf("stream callback: %w", cbErr)
				}
				sb.WriteString(answer)
			}
		}
	}

	return a.persistAnswer(ctx, thread.ID, sb.String())
}

// Distill extracts durable memories from a thread's conversation
func (a *Advisor) Distill(ctx context.Context, user *auth.UserContext, threadID string) ([]database.CopilotMemory, error) {
	thread, err := a.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if !user.HasZone(thread.ZoneID) {
		return nil, database.NewAccessError(thread.ZoneID)
	}
	return a.distiller.DistillThread(ctx, thread, user.Sub)
}

// prepare validates access, persists the question, and assembles the
// prompt. History is captured before the question is appended so the prompt
// never repeats it.
func (a *Advisor) prepare(ctx context.Context, user *auth.UserContext, threadID, question string) (*database.CopilotThread, string, *types.ZoneStats, error) {
	if strings.TrimSpace(question) == "" {
		return nil, "", nil, database.NewValidationError("question", "is required")
	}

	thread, err := a.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, "", nil, err
	}
	if !user.HasZone(thread.ZoneID) {
		return nil, "", nil, database.NewAccessError(thread.ZoneID)
	}

	history, err := a.store.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, "", nil, err
	}

	if err := a.store.AppendMessage(ctx, &database.CopilotMessage{
		ID:        uuid.NewString(),
		ThreadID:  thread.ID,
		Role:      database.MessageRoleUser,
		Content:   question,
		CreatedAt: a.now().UTC(),
	}); err != nil {
		return nil, "", nil, err
	}

	stats, err := a.stats.ZoneStats(ctx, thread.ZoneID)
	if err != nil {
		return nil, "", nil, fmt.Errorf("zone stats for %s: %w", thread.ZoneID, err)
	}

	var dayparts []types.DaypartStats
	if stats != nil {
		dayparts, err = a.dayparts.DaypartBreakdown(ctx, thread.ZoneID)
		if err != nil {
			return nil, "", nil, fmt.Errorf("daypart breakdown for %s: %w", thread.ZoneID, err)
		}
	}

	limits, err := a.limits.Snapshot(ctx)
	if err != nil {
		// Prompt garnish only; the change path still enforces guardrails
		log.Printf("⚠️ Guardrail snapshot unavailable for copilot prompt: %v", err)
		limits = probe.GuardrailSnapshot{}
	}

	memories, err := a.store.ListMemories(ctx, []string{thread.ZoneID}, "", memoryLimit)
	if err != nil {
		return nil, "", nil, err
	}

	prompt := BuildPrompt(thread.ZoneID, stats, dayparts, limits, memories, history, question, a.now())
	return thread, prompt, stats, nil
}

func (a *Advisor) persistAnswer(ctx context.Context, threadID, answer string) (*database.CopilotMessage, error) {
	reply := &database.CopilotMessage{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Role:      database.MessageRoleAssistant,
		Content:   answer,
		CreatedAt: a.now().UTC(),
	}
	if err := a.store.AppendMessage(ctx, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// fallbackAnswer is the deterministic metrics summary used when no narrator
// is configured or the narrator fails
func (a *Advisor) fallbackAnswer(zoneID string, stats *types.ZoneStats) string {
	if stats == nil {
		return fmt.Sprintf("Zone %s has no transaction data on file yet, so there is nothing to analyze. Import historical transactions and ask again.", zoneID)
	}
	return fmt.Sprintf(
		"Zone %s recorded %d sessions and $%.2f revenue over %d active days. Average stay %.0f minutes, average ticket $%.2f, morning share %.0f%%, peak day %s.",
		zoneID, stats.TotalTransactions, stats.TotalRevenue, stats.ActiveDays,
		stats.AvgDurationMinutes, stats.AvgTicket, stats.MorningShare*100, llm.Weekday(stats.PeakDow))
}
