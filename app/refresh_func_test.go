package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeBroadcaster struct {
	events []string
}

func (f *fakeBroadcaster) Broadcast(event string, payload interface{}) {
	f.events = append(f.events, event)
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(event, zoneID, message string, detail interface{}) {
	f.events = append(f.events, event)
}

func TestRefreshFuncAnnouncesCleanRun(t *testing.T) {
	c := newTestCoordinator(&fakeFreshness{}, &fakeLocker{}, &fakeInsightJob{}, &fakeRecommendationJob{})
	broker := &fakeBroadcaster{}
	hooks := &fakeNotifier{}
	fn := newRefreshFunc(c, broker, hooks)

	result, err := fn(context.Background(), []string{"z-110"}, false)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	report, ok := result.(*RefreshReport)
	if !ok || !report.Ran {
		t.Fatalf("expected a ran report, got %v", result)
	}
	if len(broker.events) != 1 || broker.events[0] != "refresh.completed" {
		t.Errorf("broadcasts = %v, want one refresh.completed", broker.events)
	}
	if len(hooks.events) != 1 || hooks.events[0] != "refresh.completed" {
		t.Errorf("webhook events = %v, want one refresh.completed", hooks.events)
	}
}

func TestRefreshFuncSilentOnForcedFailure(t *testing.T) {
	insights := &fakeInsightJob{err: errors.New("query timeout")}
	c := newTestCoordinator(&fakeFreshness{}, &fakeLocker{}, insights, &fakeRecommendationJob{})
	broker := &fakeBroadcaster{}
	hooks := &fakeNotifier{}
	fn := newRefreshFunc(c, broker, hooks)

	result, err := fn(context.Background(), []string{"z-110"}, true)
	if err == nil {
		t.Fatal("forced refresh with a failed job must return the error")
	}
	if result == nil {
		t.Fatal("report should still be returned alongside the error")
	}
	if len(broker.events) != 0 {
		t.Errorf("no completion broadcast for a failed run, got %v", broker.events)
	}
	if len(hooks.events) != 0 {
		t.Errorf("no completion webhook for a failed run, got %v", hooks.events)
	}
}

func TestRefreshFuncSilentOnPartialRun(t *testing.T) {
	// Non-forced refresh swallows the job failure; the run still must not be
	// announced as completed
	insights := &fakeInsightJob{err: errors.New("query timeout")}
	c := newTestCoordinator(&fakeFreshness{}, &fakeLocker{}, insights, &fakeRecommendationJob{})
	broker := &fakeBroadcaster{}
	hooks := &fakeNotifier{}
	fn := newRefreshFunc(c, broker, hooks)

	result, err := fn(context.Background(), []string{"z-110"}, false)
	if err != nil {
		t.Fatalf("non-forced refresh swallows job failures: %v", err)
	}
	report := result.(*RefreshReport)
	if !report.Ran || len(report.JobErrors) == 0 {
		t.Fatalf("expected a partial run report, got %+v", report)
	}
	if len(broker.events) != 0 || len(hooks.events) != 0 {
		t.Errorf("partial run must not announce completion: broker=%v hooks=%v", broker.events, hooks.events)
	}
}

func TestRefreshFuncSilentWhenSkipped(t *testing.T) {
	today := refreshNow.Add(-time.Hour)
	store := &fakeFreshness{insightAt: timePtr(today), recAt: timePtr(today)}
	c := newTestCoordinator(store, &fakeLocker{}, &fakeInsightJob{}, &fakeRecommendationJob{})
	broker := &fakeBroadcaster{}
	hooks := &fakeNotifier{}
	fn := newRefreshFunc(c, broker, hooks)

	result, err := fn(context.Background(), []string{"z-110"}, false)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if result.(*RefreshReport).Ran {
		t.Fatal("fresh data should skip the run")
	}
	if len(broker.events) != 0 || len(hooks.events) != 0 {
		t.Error("skipped refresh must not broadcast")
	}
}
