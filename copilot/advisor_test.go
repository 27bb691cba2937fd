package copilot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"parking-analyst/auth"
	"parking-analyst/database"
	"parking-analyst/database/types"
	"parking-analyst/llm"
	"parking-analyst/probe"
)

type fakeCopilotStore struct {
	threads   map[string]*database.CopilotThread
	messages  map[string][]database.CopilotMessage
	memories  []database.CopilotMemory
	saved     []database.CopilotMemory
	appendErr error
}

func newFakeCopilotStore() *fakeCopilotStore {
	return &fakeCopilotStore{
		threads:  map[string]*database.CopilotThread{},
		messages: map[string][]database.CopilotMessage{},
	}
}

func (f *fakeCopilotStore) CreateThread(ctx context.Context, thread *database.CopilotThread) error {
	f.threads[thread.ID] = thread
	return nil
}

func (f *fakeCopilotStore) GetThread(ctx context.Context, id string) (*database.CopilotThread, error) {
	thread, ok := f.threads[id]
	if !ok {
		return nil, database.NewNotFoundErrorWithID("thread", id)
	}
	return thread, nil
}

func (f *fakeCopilotStore) AppendMessage(ctx context.Context, msg *database.CopilotMessage) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages[msg.ThreadID] = append(f.messages[msg.ThreadID], *msg)
	return nil
}

func (f *fakeCopilotStore) ListMessages(ctx context.Context, threadID string) ([]database.CopilotMessage, error) {
	return f.messages[threadID], nil
}

func (f *fakeCopilotStore) ListMemories(ctx context.Context, zoneIDs []string, kind string, limit int) ([]database.CopilotMemory, error) {
	return f.memories, nil
}

func (f *fakeCopilotStore) SaveMemories(ctx context.Context, memories []database.CopilotMemory) error {
	f.saved = append(f.saved, memories...)
	return nil
}

type fakeNarrator struct {
	answer string
	chunks []string
	err    error
	prompt string
	calls  int
}

func (f *fakeNarrator) Analyze(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.answer, f.err
}

func (f *fakeNarrator) AnalyzeStream(ctx context.Context, prompt string, callback llm.StreamCallback) error {
	f.calls++
	f.prompt = prompt
	for _, chunk := range f.chunks {
		if err := callback(chunk); err != nil {
			return err
		}
	}
	return f.err
}

type fakeZoneStats struct {
	stats *types.ZoneStats
	err   error
}

func (f *fakeZoneStats) ZoneStats(ctx context.Context, zoneID string) (*types.ZoneStats, error) {
	return f.stats, f.err
}

type fakeDayparts struct {
	rows []types.DaypartStats
}

func (f *fakeDayparts) DaypartBreakdown(ctx context.Context, zoneID string) ([]types.DaypartStats, error) {
	return f.rows, nil
}

type fakeLimits struct {
	snapshot probe.GuardrailSnapshot
	err      error
}

func (f *fakeLimits) Snapshot(ctx context.Context) (probe.GuardrailSnapshot, error) {
	return f.snapshot, f.err
}

var copilotNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func copilotStats() *types.ZoneStats {
	return &types.ZoneStats{
		ZoneID:             "z-110",
		TotalTransactions:  340,
		AvgDurationMinutes: 95,
		MinDurationMinutes: 15,
		MaxDurationMinutes: 480,
		TotalRevenue:       2125.50,
		AvgTicket:          6.25,
		ActiveDays:         20,
		MorningShare:       0.62,
		PeakDow:            5,
	}
}

func copilotUser() *auth.UserContext {
	return &auth.UserContext{
		Sub:     "user-1",
		ZoneIDs: []string{"z-110", "z-221"},
	}
}

func testAdvisor(store *fakeCopilotStore, narrator Narrator) *Advisor {
	a := NewAdvisor(store, &fakeZoneStats{stats: copilotStats()}, &fakeDayparts{}, &fakeLimits{
		snapshot: probe.GuardrailSnapshot{MaxChangePct: 0.15},
	}, narrator)
	a.now = func() time.Time { return copilotNow }
	a.distiller.now = a.now
	return a
}

func seedThread(store *fakeCopilotStore) *database.CopilotThread {
	thread := &database.CopilotThread{
		ID:        "thread-1",
		ZoneID:    "z-110",
		Title:     "Friday demand",
		Status:    database.ThreadStatusOpen,
		CreatedBy: "user-1",
		CreatedAt: copilotNow.Add(-time.Hour),
	}
	store.threads[thread.ID] = thread
	return thread
}

func TestStartThreadRejectsForeignZone(t *testing.T) {
	store := newFakeCopilotStore()
	a := testAdvisor(store, nil)

	_, err := a.StartThread(context.Background(), copilotUser(), "z-999", "foreign")

	var access *database.AccessError
	if !errors.As(err, &access) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if len(store.threads) != 0 {
		t.Error("nothing should be persisted on access failure")
	}
}

func TestStartThreadPersists(t *testing.T) {
	store := newFakeCopilotStore()
	a := testAdvisor(store, nil)

	thread, err := a.StartThread(context.Background(), copilotUser(), "z-110", "Friday demand")
	if err != nil {
		t.Fatalf("StartThread failed: %v", err)
	}
	if thread.Status != database.ThreadStatusOpen {
		t.Errorf("status = %q, want open", thread.Status)
	}
	if thread.CreatedBy != "user-1" {
		t.Errorf("created_by = %q, want user-1", thread.CreatedBy)
	}
	if store.threads[thread.ID] == nil {
		t.Error("thread not persisted")
	}
}

func TestAskRecordsBothTurns(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	narrator := &fakeNarrator{answer: "Friday evenings carry the peak demand."}
	a := testAdvisor(store, narrator)

	reply, err := a.Ask(context.Background(), copilotUser(), "thread-1", "When is this zone busiest?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if reply.Role != database.MessageRoleAssistant {
		t.Errorf("reply role = %q, want assistant", reply.Role)
	}
	if reply.Content != narrator.answer {
		t.Errorf("reply = %q, want narrator answer", reply.Content)
	}

	msgs := store.messages["thread-1"]
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want user + assistant", len(msgs))
	}
	if msgs[0].Role != database.MessageRoleUser || msgs[0].Content != "When is this zone busiest?" {
		t.Errorf("first persisted message = %+v", msgs[0])
	}
	if msgs[1].Role != database.MessageRoleAssistant {
		t.Errorf("second persisted message role = %q", msgs[1].Role)
	}
}

func TestAskPromptCarriesContext(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	store.memories = []database.CopilotMemory{{
		ZoneID: "z-110", Kind: database.MemoryKindCanonical,
		Topic: "events", Content: "Stadium events always spike evening demand.",
	}}
	narrator := &fakeNarrator{answer: "ok"}
	a := testAdvisor(store, narrator)

	if _, err := a.Ask(context.Background(), copilotUser(), "thread-1", "Why is Friday up?"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	for _, want := range []string{
		"Zone: z-110",
		"Sessions: 340 across 20 active days",
		"Maximum price change: 15.0%",
		"Stadium events always spike evening demand.",
		"Why is Friday up?",
	} {
		if !strings.Contains(narrator.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestAskFallsBackWithoutNarrator(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	a := testAdvisor(store, nil)

	reply, err := a.Ask(context.Background(), copilotUser(), "thread-1", "How is revenue?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !strings.Contains(reply.Content, "340 sessions") || !strings.Contains(reply.Content, "$2125.50") {
		t.Errorf("fallback answer not grounded in the metrics: %q", reply.Content)
	}
}

func TestAskFallsBackOnNarratorError(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	narrator := &fakeNarrator{err: errors.New("model overloaded")}
	a := testAdvisor(store, narrator)

	reply, err := a.Ask(context.Background(), copilotUser(), "thread-1", "How is revenue?")
	if err != nil {
		t.Fatalf("narrator failure must not fail the ask: %v", err)
	}
	if !strings.Contains(reply.Content, "340 sessions") {
		t.Errorf("expected deterministic fallback, got %q", reply.Content)
	}
	// The question still survives the failure
	if len(store.messages["thread-1"]) != 2 {
		t.Errorf("persisted %d messages, want 2", len(store.messages["thread-1"]))
	}
}

func TestAskRejectsForeignZoneThread(t *testing.T) {
	store := newFakeCopilotStore()
	store.threads["thread-9"] = &database.CopilotThread{ID: "thread-9", ZoneID: "z-999"}
	a := testAdvisor(store, nil)

	_, err := a.Ask(context.Background(), copilotUser(), "thread-9", "anything")

	var access *database.AccessError
	if !errors.As(err, &access) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if len(store.messages["thread-9"]) != 0 {
		t.Error("no message may be persisted on access failure")
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	a := testAdvisor(store, nil)

	_, err := a.Ask(context.Background(), copilotUser(), "thread-1", "   ")

	var validation *database.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAskStreamForwardsChunksAndPersistsWhole(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	narrator := &fakeNarrator{chunks: []string{"Friday ", "evenings ", "peak."}}
	a := testAdvisor(store, narrator)

	var received []string
	reply, err := a.AskStream(context.Background(), copilotUser(), "thread-1", "When does demand peak?",
		func(chunk string) error {
			received = append(received, chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("AskStream failed: %v", err)
	}

	if len(received) != 3 {
		t.Fatalf("received %d chunks, want 3", len(received))
	}
	want := "Friday evenings peak."
	if reply.Content != want {
		t.Errorf("persisted answer = %q, want the concatenated chunks", reply.Content)
	}

	msgs := store.messages["thread-1"]
	if len(msgs) != 2 || msgs[1].Content != want {
		t.Errorf("assistant turn not persisted from the stream: %+v", msgs)
	}
}

func TestAskStreamFallsBackWhenNothingStreamed(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	narrator := &fakeNarrator{err: errors.New("connection reset")}
	a := testAdvisor(store, narrator)

	var received []string
	reply, err := a.AskStream(context.Background(), copilotUser(), "thread-1", "How is revenue?",
		func(chunk string) error {
			received = append(received, chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("AskStream failed: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("fallback should arrive as one chunk, got %d", len(received))
	}
	if !strings.Contains(reply.Content, "340 sessions") {
		t.Errorf("expected deterministic fallback, got %q", reply.Content)
	}
}

func TestAskStreamKeepsPartialAnswer(t *testing.T) {
	store := newFakeCopilotStore()
	seedThread(store)
	narrator := &fakeNarrator{chunks: []string{"Friday "}, err: errors.New("connection reset")}
	a := testAdvisor(store, narrator)

	reply, err := a.AskStream(context.Background(), copilotUser(), "thread-1", "When does demand peak?",
		func(chunk string) error { return nil })
	if err != nil {
		t.Fatalf("AskStream failed: %v", err)
	}
	if reply.Content != "Friday " {
		t.Errorf("partial stream should persist what arrived, got %q", reply.Content)
	}
}

func TestDistillParsesNarratorJSON(t *testing.T) {
	store := newFakeCopilotStore()
	thread := seedThread(store)
	store.messages[thread.ID] = []database.CopilotMessage{
		{ThreadID: thread.ID, Role: database.MessageRoleUser, Content: "Fridays always spike here."},
		{ThreadID: thread.ID, Role: database.MessageRoleAssistant, Content: "Agreed, the data shows it."},
	}
	narrator := &fakeNarrator{answer: "Here you go:\n" +
		`[{"kind": "canonical", "topic": "weekly pattern", "content": "Friday demand spikes in z-110."}]`}
	a := testAdvisor(store, narrator)

	memories, err := a.Distill(context.Background(), copilotUser(), thread.ID)
	if err != nil {
		t.Fatalf("Distill failed: %v", err)
	}
	if len(memories) != 1 {
		t.Fatalf("distilled %d memories, want 1", len(memories))
	}
	m := memories[0]
	if m.Kind != database.MemoryKindCanonical || m.Topic != "weekly pattern" {
		t.Errorf("memory = %+v", m)
	}
	if m.ZoneID != "z-110" {
		t.Errorf("zone = %q, want z-110", m.ZoneID)
	}
	if m.SourceThreadID == nil || *m.SourceThreadID != thread.ID {
		t.Error("memory not linked to its source thread")
	}
	if len(store.saved) != 1 {
		t.Errorf("persisted %d memories, want 1", len(store.saved))
	}
}

func TestDistillHeuristicWithoutNarrator(t *testing.T) {
	store := newFakeCopilotStore()
	thread := seedThread(store)
	store.messages[thread.ID] = []database.CopilotMessage{
		{ThreadID: thread.ID, Role: database.MessageRoleUser, Content: "There is an unusual exception on holidays."},
		{ThreadID: thread.ID, Role: database.MessageRoleUser, Content: "What about Tuesdays?"},
		{ThreadID: thread.ID, Role: database.MessageRoleAssistant, Content: "Rates always drop on Tuesdays."},
	}
	a := testAdvisor(store, nil)

	memories, err := a.Distill(context.Background(), copilotUser(), thread.ID)
	if err != nil {
		t.Fatalf("Distill failed: %v", err)
	}
	// Only the operator's rule-like message qualifies; questions and
	// assistant turns never become memories
	if len(memories) != 1 {
		t.Fatalf("distilled %d memories, want 1", len(memories))
	}
	if memories[0].Kind != database.MemoryKindException {
		t.Errorf("kind = %q, want exception", memories[0].Kind)
	}
}

func TestDistillEmptyThread(t *testing.T) {
	store := newFakeCopilotStore()
	thread := seedThread(store)
	a := testAdvisor(store, &fakeNarrator{})

	memories, err := a.Distill(context.Background(), copilotUser(), thread.ID)
	if err != nil {
		t.Fatalf("Distill failed: %v", err)
	}
	if len(memories) != 0 {
		t.Errorf("empty thread distilled %d memories", len(memories))
	}
	if len(store.saved) != 0 {
		t.Error("nothing should be persisted for an empty thread")
	}
}
