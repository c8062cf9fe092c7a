// Package outputtest provides an in-memory output.Output for tests.
package outputtest

import (
	"context"
	"sync"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// Recorder records every written reflex. Set Err to make Write and Close
// fail, Delay to slow Write down.
type Recorder struct {
	Err   error
	Delay time.Duration

	mu       sync.Mutex
	reflexes []model.AgentReflex
	closed   bool
}

func (r *Recorder) Write(_ context.Context, reflex model.AgentReflex) error {
	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}
	r.mu.Lock()
	r.reflexes = append(r.reflexes, reflex)
	r.mu.Unlock()
	return r.Err
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.Err
}

// Reflexes returns a copy of everything written so far.
func (r *Recorder) Reflexes() []model.AgentReflex {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AgentReflex(nil), r.reflexes...)
}

// Len returns the number of reflexes written.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reflexes)
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
