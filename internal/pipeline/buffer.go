package pipeline

import (
	"sync"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/engine/dedup"
	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// streamBuffer accumulates reflexes and releases deduplicated batches on a timer.
type streamBuffer struct {
	dedup   *dedup.Deduplicator
	window  time.Duration
	maxSize int // 0 means unlimited

	mu      sync.Mutex
	pending []model.AgentReflex
	timer   *time.Timer
}

func newStreamBuffer(d *dedup.Deduplicator, window time.Duration, maxSize int) *streamBuffer {
	return &streamBuffer{
		dedup:   d,
		window:  window,
		maxSize: maxSize,
	}
}

// add appends a reflex. The first reflex of a batch starts the flush timer.
// Returns true if the buffer is full and needs flushing.
func (b *streamBuffer) add(r model.AgentReflex) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, r)
	if len(b.pending) == 1 {
		b.timer = time.NewTimer(b.window)
	}
	return b.maxSize > 0 && len(b.pending) >= b.maxSize
}

// flushCh returns the timer's channel, or nil if no timer is active.
func (b *streamBuffer) flushCh() <-chan time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// flush empties the buffer and returns its reflexes deduplicated.
func (b *streamBuffer) flush() []model.AgentReflex {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return b.dedup.DeduplicateBatch(pending)
}
