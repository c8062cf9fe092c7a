// Package broadcast fans dispatched reflexes out to live subscribers, such
// as websocket clients watching an instrument.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const defaultSubscriberBuffer = 64

// Hub is an output.Output that copies every reflex to each subscriber. A
// subscriber that falls behind loses reflexes rather than slowing the
// engine down.
type Hub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[chan model.AgentReflex]struct{}
	closed bool

	dropped atomic.Int64
}

// New creates a Hub whose subscribers buffer up to buffer reflexes.
// buffer <= 0 uses a default of 64.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[chan model.AgentReflex]struct{})}
}

// Subscribe returns a channel of reflexes and a function that cancels the
// subscription. The channel is closed on cancel or when the Hub closes.
func (h *Hub) Subscribe() (<-chan model.AgentReflex, func()) {
	ch := make(chan model.AgentReflex, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Write delivers reflex to every subscriber without blocking.
func (h *Hub) Write(_ context.Context, reflex model.AgentReflex) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- reflex.Clone():
		default:
			n := h.dropped.Add(1)
			slog.Warn("broadcast subscriber too slow, dropping reflex", "action", reflex.Action, "dropped_total", n)
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	clear(h.subs)
	return nil
}
