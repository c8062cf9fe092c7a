// Package pipeline feeds instrument log events from a connector through the
// reflex engine and dispatches the resulting reflexes to an actuator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CoReason-AI/coreason-signal/internal/connector"
	"github.com/CoReason-AI/coreason-signal/internal/engine/dedup"
	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/output"
)

// Decider turns one log event into at most one reflex. *engine.Engine
// satisfies it.
type Decider interface {
	Decide(ctx context.Context, event model.LogEvent) (*model.AgentReflex, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDedup enables reflex deduplication. Reflexes are buffered for window
// and collapsed by d before dispatch.
func WithDedup(d *dedup.Deduplicator, window time.Duration) Option {
	return func(p *Pipeline) {
		p.dedup = d
		p.window = window
	}
}

// WithMaxBuffer caps the dedup buffer; reaching it forces an early flush.
// 0 means unlimited.
func WithMaxBuffer(n int) Option {
	return func(p *Pipeline) { p.maxBuffer = n }
}

// Stats counts what a pipeline has seen since it was created.
type Stats struct {
	Events     int64 `json:"events"`
	Skipped    int64 `json:"skipped"`
	Dispatched int64 `json:"dispatched"`
	Failed     int64 `json:"failed"`
}

// Pipeline connects a connector, a decider, and an actuator output.
type Pipeline struct {
	connector connector.Connector
	decider   Decider
	output    output.Output

	dedup     *dedup.Deduplicator
	window    time.Duration
	maxBuffer int

	events      atomic.Int64
	skippedLogs atomic.Int64
	dispatched  atomic.Int64
	failed      atomic.Int64
}

// New creates a Pipeline from the given components.
func New(conn connector.Connector, dec Decider, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		connector: conn,
		decider:   dec,
		output:    out,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stream decides events as they arrive and dispatches their reflexes.
// Blocks until the context is cancelled or the connector's channel closes.
func (p *Pipeline) Stream(ctx context.Context, cfg connector.Config) error {
	ch, err := p.connector.Stream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline stream: %w", err)
	}
	if p.dedup != nil {
		return p.streamWithDedup(ctx, ch)
	}
	return p.streamDirect(ctx, ch)
}

func (p *Pipeline) streamDirect(ctx context.Context, ch <-chan model.LogEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if r, ok := p.decide(ctx, ev); ok {
				p.dispatch(ctx, r)
			}
		}
	}
}

func (p *Pipeline) streamWithDedup(ctx context.Context, ch <-chan model.LogEvent) error {
	buf := newStreamBuffer(p.dedup, p.window, p.maxBuffer)
	for {
		select {
		case <-ctx.Done():
			// Reflexes already decided are still dispatched.
			for _, r := range buf.flush() {
				p.dispatch(context.WithoutCancel(ctx), r)
			}
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				for _, r := range buf.flush() {
					p.dispatch(ctx, r)
				}
				return nil
			}
			r, ok := p.decide(ctx, ev)
			if !ok {
				continue
			}
			if buf.add(r) {
				for _, r := range buf.flush() {
					p.dispatch(ctx, r)
				}
			}
		case <-buf.flushCh():
			for _, r := range buf.flush() {
				p.dispatch(ctx, r)
			}
		}
	}
}

// Query decides a bounded set of historical events in one shot.
func (p *Pipeline) Query(ctx context.Context, cfg connector.Config, params connector.QueryParams) error {
	events, err := p.connector.Query(ctx, cfg, params)
	if err != nil {
		return fmt.Errorf("pipeline query: %w", err)
	}

	var reflexes []model.AgentReflex
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r, ok := p.decide(ctx, ev); ok {
			reflexes = append(reflexes, r)
		}
	}
	if p.dedup != nil {
		reflexes = p.dedup.DeduplicateBatch(reflexes)
	}
	for _, r := range reflexes {
		p.dispatch(ctx, r)
	}
	return nil
}

// decide runs one event through the decider. Events without an ID get one.
// The reflex is stamped with the event's id and source.
// Decider errors skip the event instead of stopping the stream.
func (p *Pipeline) decide(ctx context.Context, ev model.LogEvent) (model.AgentReflex, bool) {
	p.events.Add(1)
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	r, err := p.decider.Decide(ctx, ev)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.skippedLogs.Add(1)
			slog.Warn("skipping event", "event_id", ev.ID, "error", err)
		}
		return model.AgentReflex{}, false
	}
	if r == nil {
		return model.AgentReflex{}, false
	}

	out := r.Clone()
	if out.Parameters == nil {
		out.Parameters = model.Params{}
	}
	if _, ok := out.Parameters["event_id"]; !ok {
		out.Parameters["event_id"] = model.String(ev.ID)
	}
	if _, ok := out.Parameters["source"]; !ok && ev.Source != "" {
		out.Parameters["source"] = model.String(ev.Source)
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	return out, true
}

// dispatch hands a reflex to the actuator. Failures are counted and logged,
// never returned.
func (p *Pipeline) dispatch(ctx context.Context, r model.AgentReflex) {
	if err := p.output.Write(ctx, r); err != nil {
		p.failed.Add(1)
		slog.Error("reflex dispatch failed", "action", r.Action, "event_id", r.Parameters.Get("event_id"), "error", err)
		return
	}
	p.dispatched.Add(1)
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Events:     p.events.Load(),
		Skipped:    p.skippedLogs.Load(),
		Dispatched: p.dispatched.Load(),
		Failed:     p.failed.Load(),
	}
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	if n := p.skippedLogs.Load(); n > 0 {
		slog.Warn("events skipped during decision", "count", n)
	}
	return p.output.Close()
}
