package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const (
	DefaultTimeout   = 200 * time.Millisecond
	DefaultQueueSize = 64
)

var (
	// ErrNilStore is returned by New when no SOP store is supplied.
	ErrNilStore = errors.New("engine: nil sop store")
	// ErrInvalidEvent is returned by Decide for events that break the
	// caller contract (nil context, missing ID).
	ErrInvalidEvent = errors.New("engine: invalid log event")
	// ErrInvalidReflex is returned by Trigger for reflexes without an action
	// or reasoning.
	ErrInvalidReflex = errors.New("engine: invalid reflex")
)

// Store is the SOP knowledge base consulted by the engine. Query returns at
// most k documents, best match first, and must not retain text.
type Store interface {
	Query(text string, k int) ([]model.SOPDocument, error)
}

// Actuator carries out a triggered reflex.
type Actuator interface {
	Write(ctx context.Context, reflex model.AgentReflex) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the decision deadline. Default: 200ms.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithQueueSize sets how many jobs may wait behind the running one before
// submissions are rejected. Default: 64.
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

// WithActuator sets where triggered reflexes are dispatched. Without one,
// triggers are only logged.
func WithActuator(a Actuator) Option {
	return func(e *Engine) { e.actuator = a }
}

// WithActionableLevels sets which event levels may produce a reflex.
// Default: ERROR only.
func WithActionableLevels(levels ...model.Level) Option {
	return func(e *Engine) { e.levels = levels }
}

// Engine is the reflex arc: it turns instrument error events into actions
// using the best-matching SOP, under a hard decision deadline.
//
// All decisions and triggers for one Engine run serially on a single
// worker goroutine. Decide callers block only on their own deadline. When
// the deadline passes, the caller gets a PAUSE reflex and the decision
// keeps running in the background; it is orphaned, not cancelled, and the
// worker frees up only when the store query returns.
type Engine struct {
	timeout   time.Duration
	queueSize int
	levels    []model.Level
	actuator  Actuator

	decider  *decider
	watchdog *watchdog
}

// New creates an Engine over store and starts its worker.
func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	e := &Engine{
		timeout:   DefaultTimeout,
		queueSize: DefaultQueueSize,
		levels:    []model.Level{model.LevelError},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.timeout <= 0 {
		return nil, fmt.Errorf("engine: timeout must be positive, got %v", e.timeout)
	}
	if e.queueSize <= 0 {
		return nil, fmt.Errorf("engine: queue size must be positive, got %d", e.queueSize)
	}

	e.decider = newDecider(store, e.levels)
	e.watchdog = newWatchdog(e.timeout, e.queueSize)
	return e, nil
}

// Decide returns the reflex for event, or nil when no action applies or no
// decision could be made. It returns within the decision timeout plus
// scheduling overhead; if the deadline passes first the result is a PAUSE
// reflex. Errors are returned only for contract violations and for ctx
// being cancelled by the caller.
func (e *Engine) Decide(ctx context.Context, event model.LogEvent) (*model.AgentReflex, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidEvent)
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}

	query, ok := e.decider.prepare(event)
	if !ok {
		return nil, nil
	}

	st, reflex, err := e.watchdog.await(ctx, "decide:"+event.ID, func() *model.AgentReflex {
		return e.decider.lookup(event, query)
	})
	switch st {
	case stateCompleted:
		return reflex, nil
	case stateTimedOut:
		slog.Warn("decision deadline exceeded, failing safe",
			"event_id", event.ID, "timeout", e.timeout, "pending", e.watchdog.pending())
		return watchdogPause(event.ID, e.timeout), nil
	case stateCancelled:
		return nil, err
	default:
		slog.Error("decision unavailable", "event_id", event.ID, "state", st.String(), "error", err)
		return nil, nil
	}
}

// Trigger executes an operator-supplied reflex asynchronously on the engine
// worker, without the decision deadline. It never blocks; execution and
// submission failures are logged.
func (e *Engine) Trigger(reflex model.AgentReflex) error {
	if err := reflex.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReflex, err)
	}
	r := reflex.Clone()
	err := e.watchdog.submit(job{
		name: "trigger:" + string(r.Action),
		run: func() *model.AgentReflex {
			e.execute(r)
			return nil
		},
	})
	if err != nil {
		slog.Error("reflex trigger rejected", "action", r.Action, "error", err)
	}
	return nil
}

func (e *Engine) execute(r model.AgentReflex) {
	if e.actuator == nil {
		slog.Info("reflex triggered", "action", r.Action, "reasoning", r.Reasoning)
		return
	}
	if err := e.actuator.Write(context.Background(), r); err != nil {
		slog.Error("reflex execution failed", "action", r.Action, "error", err)
	}
}

// Timeout returns the configured decision deadline.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Pending returns the number of jobs waiting behind the running one.
func (e *Engine) Pending() int { return e.watchdog.pending() }

// Close stops accepting work and waits for queued jobs to finish, up to a
// bounded drain timeout. Decide after Close returns nil.
func (e *Engine) Close() error {
	e.watchdog.close()
	return nil
}
