package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"faultline/internal/schema"
)

// Memory is the in-process Store used for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	inputs  map[string]storedInput
	frames  map[string][]*schema.IncidentFrame
	answers map[string]*schema.CanonicalResponse
	events  map[string][]TurnEvent
}

func NewMemory() *Memory {
	return &Memory{
		inputs:  map[string]storedInput{},
		frames:  map[string][]*schema.IncidentFrame{},
		answers: map[string]*schema.CanonicalResponse{},
		events:  map[string][]TurnEvent{},
	}
}

type storedInput struct {
	conversationID string
	requestID      string
	rawText        string
}

func (m *Memory) SaveInput(_ context.Context, conversationID, requestID, rawText string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inputID := uuid.NewString()
	m.inputs[inputID] = storedInput{conversationID: conversationID, requestID: requestID, rawText: rawText}
	return inputID, nil
}

func (m *Memory) SaveFrame(_ context.Context, frame *schema.IncidentFrame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[frame.ConversationID] = append(m.frames[frame.ConversationID], frame)
	return nil
}

func (m *Memory) SaveResponse(_ context.Context, resp *schema.CanonicalResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[resp.RequestID] = resp
	return nil
}

func (m *Memory) SaveEvent(_ context.Context, event TurnEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ConversationID] = append(m.events[event.ConversationID], event)
	return nil
}

func (m *Memory) LatestFrame(_ context.Context, conversationID string) (*schema.IncidentFrame, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	frames := m.frames[conversationID]
	if len(frames) == 0 {
		return nil, false, nil
	}
	return frames[len(frames)-1], true, nil
}

func (m *Memory) RecentEvents(_ context.Context, conversationID string, limit int) ([]TurnEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[conversationID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]TurnEvent, len(events))
	copy(out, events)
	return out, nil
}
