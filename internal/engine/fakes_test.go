package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

type storeCall struct {
	text string
	k    int
}

// fakeStore records queries and returns canned SOPs. delays[i] is applied
// to the i-th call; delay applies to every call without an entry.
type fakeStore struct {
	mu        sync.Mutex
	sops      []model.SOPDocument
	err       error
	delay     time.Duration
	delays    []time.Duration
	panicWith any
	calls     []storeCall
}

func (f *fakeStore) Query(text string, k int) ([]model.SOPDocument, error) {
	f.mu.Lock()
	n := len(f.calls)
	f.calls = append(f.calls, storeCall{text: text, k: k})
	delay := f.delay
	if n < len(f.delays) {
		delay = f.delays[n]
	}
	sops, err, p := f.sops, f.err, f.panicWith
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if p != nil {
		panic(p)
	}
	if err != nil {
		return nil, err
	}
	return sops, nil
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeStore) call(i int) storeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeActuator struct {
	mu       sync.Mutex
	reflexes []model.AgentReflex
	delay    time.Duration
	err      error
}

func (a *fakeActuator) Write(_ context.Context, r model.AgentReflex) error {
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reflexes = append(a.reflexes, r)
	return a.err
}

func (a *fakeActuator) written() []model.AgentReflex {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.AgentReflex(nil), a.reflexes...)
}

func newTestEngine(t *testing.T, store Store, opts ...Option) *Engine {
	t.Helper()
	e, err := New(store, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func errorEvent(id, msg string) model.LogEvent {
	return model.LogEvent{
		ID:        id,
		Timestamp: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Level:     model.LevelError,
		Source:    "LiquidHandler-01",
		Message:   msg,
	}
}

func vacuumSOP() model.SOPDocument {
	return model.SOPDocument{
		ID:      "SOP-104",
		Title:   "Vacuum Pressure Low Handling",
		Content: "If the vacuum pressure is low during aspiration, retry the aspiration at 50% speed.",
		AssociatedReflex: &model.AgentReflex{
			Action:     model.ActionRetry,
			Parameters: model.Params{"speed_factor": model.Number(0.5)},
			Reasoning:  "Retry aspiration at lower speed to clear clog.",
		},
	}
}
