package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
	"github.com/CoReason-AI/coreason-signal/internal/output"
)

const (
	defaultBufferSize   = 256
	defaultDrainTimeout = 5 * time.Second
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async output: closed")

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 256.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output's Write fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write drop the reflex instead of blocking when the
// buffer is full.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// Async moves actuator latency off the caller: Write enqueues and a single
// goroutine delivers to the wrapped output in order.
type Async struct {
	inner      output.Output
	ch         chan model.AgentReflex
	done       chan struct{}
	errFunc    func(error)
	bufSize    int
	dropOnFull bool

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

// New wraps inner and starts the delivery goroutine.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:   inner,
		bufSize: defaultBufferSize,
		errFunc: func(err error) { slog.Warn("async output write error", "error", err) },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan model.AgentReflex, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write enqueues reflex. It blocks while the buffer is full unless
// WithDropOnFull is set, or until ctx is done.
func (a *Async) Write(ctx context.Context, reflex model.AgentReflex) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	if a.dropOnFull {
		select {
		case a.ch <- reflex:
		default:
			slog.Warn("async output buffer full, dropping reflex", "action", reflex.Action)
		}
		return nil
	}
	select {
	case a.ch <- reflex:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting reflexes, waits (bounded) for queued ones to be
// delivered, then closes the inner output.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()

		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			slog.Warn("async output drain timed out")
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for reflex := range a.ch {
		if err := a.inner.Write(context.Background(), reflex); err != nil {
			a.errFunc(err)
		}
	}
}
