// Package multi delivers each reflex to several actuators at once.
package multi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/output"
)

// Target is an actuator with the name used in its error messages.
type Target struct {
	Name   string
	Output output.Output
}

// Multi writes every reflex to all of its targets concurrently, so a slow
// actuator (a LIMS webhook, say) does not hold back the others. Write
// returns once every target has answered.
type Multi struct {
	targets []Target
}

// New creates a Multi over outputs, named by position.
func New(outputs ...output.Output) *Multi {
	targets := make([]Target, 0, len(outputs))
	for i, o := range outputs {
		targets = append(targets, Target{Name: fmt.Sprintf("output %d", i), Output: o})
	}
	return NewNamed(targets...)
}

// NewNamed creates a Multi over named targets. Targets with a nil Output
// are dropped.
func NewNamed(targets ...Target) *Multi {
	m := &Multi{}
	for _, t := range targets {
		if t.Output != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Write delivers reflex to every target. Failures are wrapped with the
// target name and joined in target order.
func (m *Multi) Write(ctx context.Context, reflex model.AgentReflex) error {
	if len(m.targets) == 1 {
		return m.wrap(0, m.targets[0].Output.Write(ctx, reflex))
	}

	errs := make([]error, len(m.targets))
	var wg sync.WaitGroup
	for i, t := range m.targets {
		wg.Add(1)
		go func(i int, o output.Output) {
			defer wg.Done()
			errs[i] = m.wrap(i, o.Write(ctx, reflex.Clone()))
		}(i, t.Output)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close closes targets in reverse order and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for i := len(m.targets) - 1; i >= 0; i-- {
		errs = append(errs, m.wrap(i, m.targets[i].Output.Close()))
	}
	return errors.Join(errs...)
}

func (m *Multi) wrap(i int, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", m.targets[i].Name, err)
}
