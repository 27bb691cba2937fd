package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"parking-analyst/database"
)

// memoryContentLimit truncates heuristic memories taken verbatim from long
// user messages
const memoryContentLimit = 500

// MemoryDistiller turns a thread's conversation into durable memories.
// Extraction goes through the narrator when one is configured; without one,
// or when the narrator's output cannot be parsed, a keyword heuristic over
// the operator's own messages takes over.
type MemoryDistiller struct {
	store    Store
	narrator Narrator

	now func() time.Time
}

// NewMemoryDistiller creates a memory distiller. narrator may be nil.
func NewMemoryDistiller(store Store, narrator Narrator) *MemoryDistiller {
	return &MemoryDistiller{
		store:    store,
		narrator: narrator,
		now:      time.Now,
	}
}

// distilledMemory is the shape the narrator is asked to emit
type distilledMemory struct {
	Kind    string `json:"kind"`
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// DistillThread extracts and persists memories from one thread. An empty
// thread distills to nothing.
func (d *MemoryDistiller) DistillThread(ctx context.Context, thread *database.CopilotThread, userID string) ([]database.CopilotMemory, error) {
	messages, err := d.store.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, nil
	}

	extracted := d.extract(ctx, thread, messages)
	if len(extracted) == 0 {
		return nil, nil
	}

	createdAt := d.now().UTC()
	memories := make([]database.CopilotMemory, 0, len(extracted))
	for _, m := range extracted {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		kind := m.Kind
		if kind != database.MemoryKindCanonical && kind != database.MemoryKindContext && kind != database.MemoryKindException {
			kind = classifyMemoryKind(m.Content)
		}
		threadID := thread.ID
		memories = append(memories, database.CopilotMemory{
			ZoneID:         thread.ZoneID,
			Kind:           kind,
			Topic:          m.Topic,
			Content:        m.Content,
			SourceThreadID: &threadID,
			IsActive:       true,
			CreatedBy:      userID,
			CreatedAt:      createdAt,
		})
	}
	if len(memories) == 0 {
		return nil, nil
	}

	if err := d.store.SaveMemories(ctx, memories); err != nil {
		return nil, err
	}
	log.Printf("🧠 Distilled %d memories from thread %s", len(memories), thread.ID)
	return memories, nil
}

func (d *MemoryDistiller) extract(ctx context.Context, thread *database.CopilotThread, messages []database.CopilotMessage) []distilledMemory {
	if d.narrator == nil {
		return extractHeuristic(messages)
	}

	llmCtx, cancel := context.WithTimeout(ctx, askTimeout)
	defer cancel()

	response, err := d.narrator.Analyze(llmCtx, formatDistillPrompt(thread.ZoneID, messages))
	if err != nil {
		log.Printf("⚠️ Memory extraction failed for thread %s: %v", thread.ID, err)
		return extractHeuristic(messages)
	}

	parsed, err := parseDistilled(response)
	if err != nil {
		log.Printf("⚠️ Unparseable memory extraction for thread %s: %v", thread.ID, err)
		return extractHeuristic(messages)
	}
	return parsed
}

// formatDistillPrompt asks for a JSON array of memories over the transcript
func formatDistillPrompt(zoneID string, messages []database.CopilotMessage) string {
	var sb strings.Builder
	sb.Grow(512 + len(messages)*160)

	sb.WriteString(fmt.Sprintf("Extract durable facts from this conversation about parking zone %s.\n\n", zoneID))
	sb.WriteString("Conversation:\n")
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	sb.WriteString("\nReturn ONLY a JSON array, no prose:\n")
	sb.WriteString(`[{"kind": "canonical|context|exception", "topic": "short topic", "content": "the fact"}]` + "\n")
	sb.WriteString("canonical = a universal rule or pattern, context = a situational insight, exception = a noted anomaly. ")
	sb.WriteString("Omit anything that is not worth remembering next month. An empty array is a valid answer.")

	return sb.String()
}

// parseDistilled tolerates prose or code fences around the JSON array by
// slicing from the first '[' to the last ']'
func parseDistilled(response string) ([]distilledMemory, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var parsed []distilledMemory
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

// insightKeywords mark operator statements worth remembering
var insightKeywords = []string{"always", "never", "usually", "pattern", "trend", "rule", "exception"}

// extractHeuristic keeps operator messages that carry rule-like language
func extractHeuristic(messages []database.CopilotMessage) []distilledMemory {
	var extracted []distilledMemory
	for _, msg := range messages {
		if msg.Role != database.MessageRoleUser {
			continue
		}
		lower := strings.ToLower(msg.Content)
		keep := false
		for _, keyword := range insightKeywords {
			if strings.Contains(lower, keyword) {
				keep = true
				break
			}
		}
		if !keep {
			continue
		}

		content := msg.Content
		if len(content) > memoryContentLimit {
			content = content[:memoryContentLimit]
		}
		extracted = append(extracted, distilledMemory{
			Kind:    classifyMemoryKind(content),
			Topic:   "operator feedback",
			Content: content,
		})
	}
	return extracted
}

// classifyMemoryKind buckets free text into a memory kind by keyword
func classifyMemoryKind(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "exception"), strings.Contains(lower, "unusual"),
		strings.Contains(lower, "anomaly"), strings.Contains(lower, "outlier"):
		return database.MemoryKindException
	case strings.Contains(lower, "always"), strings.Contains(lower, "never"),
		strings.Contains(lower, "rule"), strings.Contains(lower, "policy"):
		return database.MemoryKindCanonical
	default:
		return database.MemoryKindContext
	}
}
