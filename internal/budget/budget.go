// Package budget enforces a windowed token budget per user. It makes the
// allow/deny decision that gates whether a pipeline turn runs at all.
package budget

import (
	"sync"
	"time"
)

// Decision is the outcome of one enforcement check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Time
}

// Enforcer counts estimated tokens per fixed window. Disabled enforcers
// always allow.
type Enforcer struct {
	enabled    bool
	tokenLimit int
	window     time.Duration
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]*usageWindow
}

type usageWindow struct {
	start  time.Time
	tokens int
}

type Option func(*Enforcer)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// NewEnforcer builds an enforcer allowing tokenLimit estimated tokens per
// window. A non-positive limit disables enforcement.
func NewEnforcer(tokenLimit int, window time.Duration, opts ...Option) *Enforcer {
	if window <= 0 {
		window = 15 * time.Minute
	}
	e := &Enforcer{
		enabled:    tokenLimit > 0,
		tokenLimit: tokenLimit,
		window:     window,
		now:        time.Now,
		windows:    map[string]*usageWindow{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enforce reserves estimatedTokens for userID in the current window. The
// reservation is optimistic: a denied turn does not consume budget.
func (e *Enforcer) Enforce(userID string, estimatedTokens int) Decision {
	if !e.enabled {
		return Decision{Allowed: true}
	}
	now := e.now()
	windowStart := now.Truncate(e.window)

	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.windows[userID]
	if w == nil || !w.start.Equal(windowStart) {
		w = &usageWindow{start: windowStart}
		e.windows[userID] = w
	}
	if w.tokens+estimatedTokens > e.tokenLimit {
		return Decision{Allowed: false, RetryAfter: windowStart.Add(e.window)}
	}
	w.tokens += estimatedTokens
	return Decision{Allowed: true}
}
