package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/engram/internal/storage"
	"github.com/scrypster/engram/pkg/types"
)

func TestEventRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	ev := &types.Event{
		ID:         "ev1",
		AgentID:    "default",
		EventType:  types.EventTypeDecision,
		Content:    "Chose SQLite for the relational store",
		Importance: 0.8,
		Entities:   []string{"SQLite"},
		Metadata:   map[string]interface{}{"category": "architecture"},
		CreatedAt:  created,
	}
	mustInsertEvent(t, store, ev)

	got, err := store.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.AgentID != "default" || got.EventType != types.EventTypeDecision {
		t.Errorf("got %+v", got)
	}
	if got.Importance != 0.8 {
		t.Errorf("Importance: got %v, want 0.8", got.Importance)
	}
	if len(got.Entities) != 1 || got.Entities[0] != "SQLite" {
		t.Errorf("Entities: got %v", got.Entities)
	}
	if got.Metadata["category"] != "architecture" {
		t.Errorf("Metadata: got %v", got.Metadata)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt: got %v, want %v", got.CreatedAt, created)
	}
	if got.AccessedAt != nil || got.AccessCount != 0 {
		t.Errorf("fresh event already accessed: %+v", got)
	}
}

func TestGetEventNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetEvent(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetEvent(nope): got %v, want ErrNotFound", err)
	}
}

func TestEventsByIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustInsertEvent(t, store, testEvent("a"))
	mustInsertEvent(t, store, testEvent("b"))

	// Empty input short-circuits without a query.
	empty, err := store.EventsByIDs(ctx, nil)
	if err != nil {
		t.Fatalf("EventsByIDs(nil) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("EventsByIDs(nil): got %d entries", len(empty))
	}

	got, err := store.EventsByIDs(ctx, []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("EventsByIDs() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("EventsByIDs(): got %d entries, want 2", len(got))
	}
	if got["a"] == nil || got["b"] == nil {
		t.Errorf("EventsByIDs(): missing expected keys: %v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Error("EventsByIDs(): unexpected entry for missing id")
	}
}

func TestSearchEventsFTS(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := testEvent("f1")
	ev.Content = "Deployed the billing service to production"
	mustInsertEvent(t, store, ev)

	ev = testEvent("f2")
	ev.Content = "Lunch with the platform team"
	mustInsertEvent(t, store, ev)

	got, err := store.SearchEventsFTS(ctx, "billing", 10)
	if err != nil {
		t.Fatalf("SearchEventsFTS() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "f1" {
		t.Errorf("SearchEventsFTS(billing): got %v", eventIDs(got))
	}

	// The delete trigger must keep the index in sync.
	if err := store.DeleteEvent(ctx, "f1"); err != nil {
		t.Fatalf("DeleteEvent() failed: %v", err)
	}
	got, err = store.SearchEventsFTS(ctx, "billing", 10)
	if err != nil {
		t.Fatalf("SearchEventsFTS() after delete failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SearchEventsFTS() after delete: got %v", eventIDs(got))
	}
}

func TestSearchEventsFTSFailsSoft(t *testing.T) {
	store := newTestStore(t)

	// An unbalanced quote is a MATCH syntax error; it must surface as an
	// empty result, not an error.
	got, err := store.SearchEventsFTS(context.Background(), `"unbalanced`, 10)
	if err != nil {
		t.Fatalf("SearchEventsFTS() on malformed query: got error %v", err)
	}
	if len(got) != 0 {
		t.Errorf("SearchEventsFTS() on malformed query: got %v", eventIDs(got))
	}
}

func TestTimeline(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []types.EventType{types.EventTypeMessage, types.EventTypeAction, types.EventTypeMessage} {
		ev := eventAt(string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		ev.EventType = kind
		mustInsertEvent(t, store, ev)
	}
	other := eventAt("other", base)
	other.AgentID = "someone-else"
	mustInsertEvent(t, store, other)

	got, err := store.Timeline(ctx, storage.TimelineOptions{AgentID: "default"})
	if err != nil {
		t.Fatalf("Timeline() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Timeline(): got %d events, want 3", len(got))
	}
	// Newest first.
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("Timeline() order: got %v", eventIDs(got))
	}

	got, err = store.Timeline(ctx, storage.TimelineOptions{AgentID: "default", EventType: types.EventTypeAction})
	if err != nil {
		t.Fatalf("Timeline() with type filter failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("Timeline(action): got %v", eventIDs(got))
	}

	start := base.Add(30 * time.Minute)
	end := base.Add(90 * time.Minute)
	got, err = store.Timeline(ctx, storage.TimelineOptions{AgentID: "default", Start: &start, End: &end})
	if err != nil {
		t.Fatalf("Timeline() with window failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Errorf("Timeline(window): got %v", eventIDs(got))
	}

	got, err = store.Timeline(ctx, storage.TimelineOptions{AgentID: "default", Limit: 2})
	if err != nil {
		t.Fatalf("Timeline() with limit failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("Timeline(limit=2): got %v", eventIDs(got))
	}
}

func TestTouchEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustInsertEvent(t, store, testEvent("a"))

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	if err := store.TouchEvents(ctx, []string{"a"}, now); err != nil {
		t.Fatalf("TouchEvents() failed: %v", err)
	}
	if err := store.TouchEvents(ctx, nil, now); err != nil {
		t.Fatalf("TouchEvents(nil) failed: %v", err)
	}

	got, err := store.GetEvent(ctx, "a")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount: got %d, want 1", got.AccessCount)
	}
	if got.AccessedAt == nil || !got.AccessedAt.Equal(now) {
		t.Errorf("AccessedAt: got %v, want %v", got.AccessedAt, now)
	}
}

func TestDeleteEventNotFound(t *testing.T) {
	store := newTestStore(t)

	if err := store.DeleteEvent(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteEvent(nope): got %v, want ErrNotFound", err)
	}
}

func TestUnreflectedEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	mustInsertEvent(t, store, eventAt("e1", base))
	mustInsertEvent(t, store, eventAt("e2", base.Add(time.Hour)))
	mustInsertEvent(t, store, eventAt("e3", base.Add(2*time.Hour)))

	// No watermark: everything is unreflected, newest first.
	got, err := store.UnreflectedEvents(ctx, "default", 0)
	if err != nil {
		t.Fatalf("UnreflectedEvents() failed: %v", err)
	}
	if len(got) != 3 || got[0].ID != "e3" {
		t.Errorf("UnreflectedEvents(): got %v", eventIDs(got))
	}

	// The watermark is exclusive: an event created exactly at the watermark
	// is already reflected.
	key := storage.StateLastReflectedAtPrefix + "default"
	if err := store.SetState(ctx, key, formatTS(base.Add(time.Hour))); err != nil {
		t.Fatalf("SetState() failed: %v", err)
	}
	got, err = store.UnreflectedEvents(ctx, "default", 0)
	if err != nil {
		t.Fatalf("UnreflectedEvents() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e3" {
		t.Errorf("UnreflectedEvents() after watermark: got %v", eventIDs(got))
	}

	got, err = store.UnreflectedEvents(ctx, "someone-else", 0)
	if err != nil {
		t.Fatalf("UnreflectedEvents() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("UnreflectedEvents(someone-else): got %v", eventIDs(got))
	}
}

func eventIDs(events []*types.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}
