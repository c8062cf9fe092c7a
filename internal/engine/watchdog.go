package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const defaultDrainTimeout = 5 * time.Second

var (
	errClosed    = errors.New("reflex worker is closed")
	errQueueFull = errors.New("reflex worker queue is full")
	errCrashed   = errors.New("decision logic crashed")
)

// state is the terminal state of one submitted job, as seen by its caller.
type state int

const (
	stateCompleted state = iota
	stateTimedOut
	stateCrashed
	stateRejected
	stateCancelled
)

func (s state) String() string {
	switch s {
	case stateCompleted:
		return "completed"
	case stateTimedOut:
		return "timed_out"
	case stateCrashed:
		return "crashed"
	case stateRejected:
		return "rejected"
	case stateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type outcome struct {
	reflex *model.AgentReflex
	err    error // set when the job panicked
}

// job is one unit of work for the worker. result is nil for
// fire-and-forget jobs and buffered (cap 1) otherwise, so the worker never
// blocks on a caller that has already given up.
type job struct {
	name   string
	run    func() *model.AgentReflex
	result chan outcome
}

// watchdog runs jobs one at a time, in submission order, on a single
// long-lived goroutine. Callers wait on their own deadline; a job that
// outlives its caller's deadline is not interrupted and keeps the worker
// busy until it returns.
type watchdog struct {
	timeout time.Duration
	drain   time.Duration
	queue   chan job
	done    chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func newWatchdog(timeout time.Duration, queueSize int) *watchdog {
	w := &watchdog{
		timeout: timeout,
		drain:   defaultDrainTimeout,
		queue:   make(chan job, queueSize),
		done:    make(chan struct{}),
	}
	go w.work()
	return w
}

// work drains the queue until it is closed.
func (w *watchdog) work() {
	defer close(w.done)
	for j := range w.queue {
		out := runJob(j.run)
		if j.result != nil {
			j.result <- out
			continue
		}
		if out.err != nil {
			slog.Error("background reflex job failed", "job", j.name, "error", out.err)
		}
	}
}

func runJob(fn func() *model.AgentReflex) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%w: %v", errCrashed, r)}
		}
	}()
	return outcome{reflex: fn()}
}

// submit enqueues without blocking.
func (w *watchdog) submit(j job) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return errClosed
	}
	select {
	case w.queue <- j:
		return nil
	default:
		return errQueueFull
	}
}

// await submits fn and waits for its result until the timeout, measured
// from submission, or until ctx is done.
func (w *watchdog) await(ctx context.Context, name string, fn func() *model.AgentReflex) (state, *model.AgentReflex, error) {
	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	j := job{name: name, run: fn, result: make(chan outcome, 1)}
	if err := w.submit(j); err != nil {
		return stateRejected, nil, err
	}

	select {
	case out := <-j.result:
		if out.err != nil {
			return stateCrashed, nil, out.err
		}
		return stateCompleted, out.reflex, nil
	case <-timer.C:
		return stateTimedOut, nil, nil
	case <-ctx.Done():
		return stateCancelled, nil, ctx.Err()
	}
}

// pending reports how many jobs are queued behind the running one.
func (w *watchdog) pending() int {
	return len(w.queue)
}

// close stops accepting jobs and waits (bounded) for queued ones to finish.
func (w *watchdog) close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		close(w.queue)
		w.mu.Unlock()

		select {
		case <-w.done:
		case <-time.After(w.drain):
			slog.Warn("reflex worker drain timed out", "drain_timeout", w.drain)
		}
	})
}
