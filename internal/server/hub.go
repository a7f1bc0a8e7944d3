package server

import (
	"sync"
	"time"
)

// TurnNotice is the event pushed to watchers after each completed turn.
type TurnNotice struct {
	ConversationID string    `json:"conversation_id"`
	RequestID      string    `json:"request_id"`
	Endpoint       string    `json:"endpoint"`
	Summary        string    `json:"summary"`
	Timestamp      time.Time `json:"timestamp"`
}

// Hub fans turn notices out to websocket subscribers. Slow subscribers lose
// events rather than block the pipeline.
type Hub struct {
	mu   sync.RWMutex
	next int
	subs map[int]subscription
}

type subscription struct {
	conversationID string // empty subscribes to every conversation
	ch             chan TurnNotice
}

func NewHub() *Hub {
	return &Hub{subs: map[int]subscription{}}
}

// Subscribe registers a watcher. The returned cancel func must be called
// when the watcher goes away.
func (h *Hub) Subscribe(conversationID string) (<-chan TurnNotice, func()) {
	ch := make(chan TurnNotice, 32)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscription{conversationID: conversationID, ch: ch}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

func (h *Hub) Publish(n TurnNotice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if sub.conversationID != "" && sub.conversationID != n.ConversationID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
		}
	}
}
