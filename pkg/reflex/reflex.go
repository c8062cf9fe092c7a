package reflex

import (
	"context"
	"errors"
	"fmt"

	"github.com/CoReason-AI/coreason-signal/internal/engine"
	"github.com/CoReason-AI/coreason-signal/internal/sop"
	"github.com/CoReason-AI/coreason-signal/internal/sop/embedder"
)

// Agent couples an SOP store with a reflex engine.
type Agent struct {
	engine   *engine.Engine
	store    *sop.LocalStore
	embedder embedder.Embedder
}

// New creates an Agent: it loads the embedder, opens the SOP store, seeds
// any configured library and starts the engine worker.
func New(opts ...Option) (*Agent, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	modelPath, vocabPath := resolvePaths(o)
	emb, err := embedder.New(embedder.Config{ModelPath: modelPath, VocabPath: vocabPath, Dim: o.dim})
	if err != nil {
		return nil, fmt.Errorf("reflex: %w", err)
	}

	store, err := sop.Open(o.storePath, emb)
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("reflex: %w", err)
	}
	if len(o.library) > 0 {
		if err := store.Add(context.Background(), o.library); err != nil {
			store.Close()
			emb.Close()
			return nil, fmt.Errorf("reflex: seed library: %w", err)
		}
	}

	var engOpts []engine.Option
	if o.timeout > 0 {
		engOpts = append(engOpts, engine.WithTimeout(o.timeout))
	}
	if len(o.levels) > 0 {
		engOpts = append(engOpts, engine.WithActionableLevels(o.levels...))
	}
	if o.actuator != nil {
		engOpts = append(engOpts, engine.WithActuator(o.actuator))
	}
	eng, err := engine.New(store, engOpts...)
	if err != nil {
		store.Close()
		emb.Close()
		return nil, fmt.Errorf("reflex: %w", err)
	}

	return &Agent{engine: eng, store: store, embedder: emb}, nil
}

// Decide returns the reflex for ev, or nil when no action applies. It
// returns a PAUSE reflex if no decision is made before the deadline.
func (a *Agent) Decide(ctx context.Context, ev Event) (*Reflex, error) {
	return a.engine.Decide(ctx, ev)
}

// Trigger executes r on the Agent's actuator asynchronously.
func (a *Agent) Trigger(r Reflex) error {
	return a.engine.Trigger(r)
}

// Ingest adds or replaces SOPs by ID.
func (a *Agent) Ingest(ctx context.Context, docs []SOP) error {
	return a.store.Add(ctx, docs)
}

// Count returns the number of stored SOPs.
func (a *Agent) Count() int {
	return a.store.Count()
}

// Close stops the engine and releases the store and embedder.
// Must be called when the Agent is no longer needed.
func (a *Agent) Close() error {
	return errors.Join(a.engine.Close(), a.store.Close(), a.embedder.Close())
}
