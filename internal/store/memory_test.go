package store

import (
	"context"
	"testing"

	"faultline/internal/schema"
)

func TestMemoryLatestFrame(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, ok, _ := m.LatestFrame(ctx, "conv-1"); ok {
		t.Fatalf("empty store must report no frame")
	}
	_ = m.SaveFrame(ctx, &schema.IncidentFrame{FrameID: "f1", ConversationID: "conv-1"})
	_ = m.SaveFrame(ctx, &schema.IncidentFrame{FrameID: "f2", ConversationID: "conv-1"})

	frame, ok, err := m.LatestFrame(ctx, "conv-1")
	if err != nil || !ok {
		t.Fatalf("expected latest frame, got ok=%v err=%v", ok, err)
	}
	if frame.FrameID != "f2" {
		t.Fatalf("expected most recent frame, got %s", frame.FrameID)
	}
}

func TestMemoryRecentEventsWindow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		_ = m.SaveEvent(ctx, TurnEvent{ConversationID: "conv-1", RequestID: "r", Endpoint: "triage", Summary: "turn"})
	}
	events, err := m.RecentEvents(ctx, "conv-1", 5)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected bounded window of 5, got %d", len(events))
	}
}

func TestMemorySaveInputReturnsID(t *testing.T) {
	m := NewMemory()
	id, err := m.SaveInput(context.Background(), "conv-1", "req-1", "Error: boom")
	if err != nil || id == "" {
		t.Fatalf("expected input id, got %q err=%v", id, err)
	}
}
