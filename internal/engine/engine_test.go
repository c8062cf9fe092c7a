package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

func TestNewRejectsNilStore(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestNewRejectsBadLimits(t *testing.T) {
	_, err := New(&fakeStore{}, WithTimeout(0))
	assert.Error(t, err)
	_, err = New(&fakeStore{}, WithQueueSize(0))
	assert.Error(t, err)
}

func TestDecideIgnoresNonErrorLevels(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}}
	e := newTestEngine(t, store)

	for _, lvl := range []model.Level{model.LevelDebug, model.LevelInfo, model.LevelWarning, model.LevelCritical} {
		ev := errorEvent("evt-"+string(lvl), "Everything is fine")
		ev.Level = lvl
		got, err := e.Decide(context.Background(), ev)
		require.NoError(t, err)
		assert.Nil(t, got, "level %s", lvl)
	}
	assert.Equal(t, 0, store.callCount(), "store must not be queried for non-error events")
}

func TestDecideIgnoresBlankMessage(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}}
	e := newTestEngine(t, store)

	for _, msg := range []string{"", "   ", "\t\n "} {
		got, err := e.Decide(context.Background(), errorEvent("evt-blank", msg))
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	assert.Equal(t, 0, store.callCount())
}

func TestDecideQueriesTopOneWithTrimmedMessage(t *testing.T) {
	second := model.SOPDocument{
		ID:               "SOP-900",
		Title:            "Unrelated",
		Content:          "Abort the run.",
		AssociatedReflex: &model.AgentReflex{Action: model.ActionAbort, Reasoning: "stop"},
	}
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP(), second}}
	e := newTestEngine(t, store)

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "  ERR_VACUUM_LOW during aspiration \n"))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ActionRetry, got.Action, "only the first SOP is used")
	require.Equal(t, 1, store.callCount())
	assert.Equal(t, storeCall{text: "ERR_VACUUM_LOW during aspiration", k: 1}, store.call(0))
}

func TestDecidePassesAssociatedReflexThrough(t *testing.T) {
	sop := vacuumSOP()
	store := &fakeStore{sops: []model.SOPDocument{sop}}
	e := newTestEngine(t, store)

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "The instrument reported low vacuum pressure."))
	require.NoError(t, err)
	require.NotNil(t, got)

	if diff := cmp.Diff(*sop.AssociatedReflex, *got, cmp.AllowUnexported(model.Value{})); diff != "" {
		t.Errorf("reflex mismatch (-want +got):\n%s", diff)
	}

	// The returned reflex must not alias the stored SOP.
	got.Parameters["speed_factor"] = model.Number(1)
	assert.Equal(t, "0.5", sop.AssociatedReflex.Parameters.Get("speed_factor"))
}

func TestDecideSynthesizesNotifyDefault(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{{
		ID:       "SOP-Minimal",
		Title:    "Minimal Info",
		Content:  "Something happened.",
		Metadata: map[string]string{"suggested_action": "RETRY"},
	}}}
	e := newTestEngine(t, store)

	got, err := e.Decide(context.Background(), errorEvent("evt-partial", "Vibration detected"))
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, model.ActionNotify, got.Action, "metadata suggestions are not interpreted")
	assert.Equal(t, "SOP-Minimal", got.Parameters.Get("sop_id"))
	assert.Equal(t, "evt-partial", got.Parameters.Get("event_id"))
	assert.Contains(t, got.Reasoning, "no specific reflex defined")
	assert.NotEmpty(t, got.ID)
}

func TestDecideFillsMissingReasoning(t *testing.T) {
	sop := vacuumSOP()
	sop.AssociatedReflex.Reasoning = ""
	e := newTestEngine(t, &fakeStore{sops: []model.SOPDocument{sop}})

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "vacuum low"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Prescribed by SOP SOP-104", got.Reasoning)
}

func TestDecideNoMatch(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store)

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "Unknown error"))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, storeCall{text: "Unknown error", k: 1}, store.call(0))
}

func TestDecideAbsorbsStoreFailure(t *testing.T) {
	e := newTestEngine(t, &fakeStore{err: errors.New("backend unavailable")})

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "Speed error"))
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecideRecoversFromCrash(t *testing.T) {
	store := &fakeStore{panicWith: "nil pointer in store client"}
	e := newTestEngine(t, store)

	got, err := e.Decide(context.Background(), errorEvent("evt-crash", "Mixer speed error"))
	assert.NoError(t, err)
	assert.Nil(t, got, "a crash is not escalated to PAUSE")

	// The worker survives the panic.
	store.mu.Lock()
	store.panicWith = nil
	store.sops = []model.SOPDocument{vacuumSOP()}
	store.mu.Unlock()

	got, err = e.Decide(context.Background(), errorEvent("evt-after", "vacuum low"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ActionRetry, got.Action)
}

func TestDecideWatchdogTimeout(t *testing.T) {
	const timeout = 100 * time.Millisecond
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}, delay: 400 * time.Millisecond}
	e := newTestEngine(t, store, WithTimeout(timeout))

	start := time.Now()
	got, err := e.Decide(context.Background(), errorEvent("evt-slow", "vacuum low"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ActionPause, got.Action)
	assert.Equal(t, "evt-slow", got.Parameters.Get("event_id"))
	assert.Contains(t, got.Reasoning, "Watchdog Timeout > 100ms")
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+100*time.Millisecond)
}

func TestDecideThunderingHerd(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}, delay: 600 * time.Millisecond}
	e := newTestEngine(t, store, WithTimeout(time.Second))

	const callers = 3
	results := make([]*model.AgentReflex, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.Decide(context.Background(), errorEvent("evt-"+string(rune('a'+i)), "vacuum low"))
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	var succeeded, paused int
	for _, r := range results {
		require.NotNil(t, r)
		switch r.Action {
		case model.ActionRetry:
			succeeded++
		case model.ActionPause:
			paused++
			assert.True(t, strings.HasPrefix(r.Reasoning, "Watchdog Timeout"))
		}
	}
	assert.Equal(t, 1, succeeded, "only the first queued decision fits the deadline")
	assert.Equal(t, 2, paused)
}

func TestDecideRecoversAfterCongestion(t *testing.T) {
	store := &fakeStore{
		sops:   []model.SOPDocument{vacuumSOP()},
		delays: []time.Duration{300 * time.Millisecond},
		delay:  10 * time.Millisecond,
	}
	e := newTestEngine(t, store, WithTimeout(200*time.Millisecond))

	first, err := e.Decide(context.Background(), errorEvent("evt-1", "vacuum low"))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, model.ActionPause, first.Action)

	// Let the orphaned decision finish and free the worker.
	time.Sleep(200 * time.Millisecond)

	second, err := e.Decide(context.Background(), errorEvent("evt-2", "vacuum low"))
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, model.ActionRetry, second.Action)
}

func TestDecideIsIdempotent(t *testing.T) {
	for _, sops := range [][]model.SOPDocument{
		{vacuumSOP()},
		{{ID: "SOP-Generic", Title: "Generic", Content: "Call supervisor."}},
		nil,
	} {
		e := newTestEngine(t, &fakeStore{sops: sops})
		ev := errorEvent("evt-same", "Generic failure")

		first, err := e.Decide(context.Background(), ev)
		require.NoError(t, err)
		second, err := e.Decide(context.Background(), ev)
		require.NoError(t, err)

		if diff := cmp.Diff(first, second, cmp.AllowUnexported(model.Value{})); diff != "" {
			t.Errorf("repeated decision differs (-first +second):\n%s", diff)
		}
	}
}

func TestDecidePassesUnicodeVerbatim(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(t, store)

	msg := "🔥 Engine Overheat Error: 溫度过高 (Temperature too high)"
	_, err := e.Decide(context.Background(), errorEvent("evt-unicode", msg))
	require.NoError(t, err)
	assert.Equal(t, msg, store.call(0).text)
}

func TestDecideContractViolations(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})

	var nilCtx context.Context
	_, err := e.Decide(nilCtx, errorEvent("evt-1", "x"))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = e.Decide(context.Background(), errorEvent(" ", "x"))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDecideHonoursCallerCancellation(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}, delay: 200 * time.Millisecond}
	e := newTestEngine(t, store, WithTimeout(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := e.Decide(ctx, errorEvent("evt-1", "vacuum low"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, got)
}

func TestDecideRejectedWhenQueueFull(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}, delay: 300 * time.Millisecond}
	e := newTestEngine(t, store, WithTimeout(100*time.Millisecond), WithQueueSize(1))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.Decide(context.Background(), errorEvent("evt-running", "vacuum low"))
	}()
	require.Eventually(t, func() bool { return store.callCount() == 1 }, time.Second, 5*time.Millisecond)

	go func() {
		defer wg.Done()
		e.Decide(context.Background(), errorEvent("evt-queued", "vacuum low"))
	}()
	require.Eventually(t, func() bool { return e.Pending() == 1 }, time.Second, 5*time.Millisecond)

	got, err := e.Decide(context.Background(), errorEvent("evt-rejected", "vacuum low"))
	assert.NoError(t, err)
	assert.Nil(t, got, "rejected submissions yield no decision")
	wg.Wait()
}

func TestDecideAfterClose(t *testing.T) {
	e, err := New(&fakeStore{sops: []model.SOPDocument{vacuumSOP()}})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close(), "Close is idempotent")

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "vacuum low"))
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestCustomActionableLevels(t *testing.T) {
	store := &fakeStore{sops: []model.SOPDocument{vacuumSOP()}}
	e := newTestEngine(t, store, WithActionableLevels(model.LevelError, model.LevelCritical))

	ev := errorEvent("evt-crit", "vacuum low")
	ev.Level = model.LevelCritical
	got, err := e.Decide(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ActionRetry, got.Action)
}

func TestTriggerDispatchesToActuator(t *testing.T) {
	act := &fakeActuator{}
	e := newTestEngine(t, &fakeStore{}, WithActuator(act))

	reflex := model.AgentReflex{
		Action:     "Aspirate",
		Parameters: model.Params{"speed": model.Number(0.5)},
		Reasoning:  "Operator override",
	}
	require.NoError(t, e.Trigger(reflex))

	require.Eventually(t, func() bool { return len(act.written()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.Action("Aspirate"), act.written()[0].Action)
	assert.Equal(t, "0.5", act.written()[0].Parameters.Get("speed"))
}

func TestTriggerDoesNotBlock(t *testing.T) {
	act := &fakeActuator{delay: 300 * time.Millisecond}
	e := newTestEngine(t, &fakeStore{}, WithActuator(act), WithTimeout(50*time.Millisecond))

	start := time.Now()
	require.NoError(t, e.Trigger(model.AgentReflex{Action: model.ActionPause, Reasoning: "stop"}))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestTriggerRejectsInvalidReflex(t *testing.T) {
	e := newTestEngine(t, &fakeStore{})

	assert.ErrorIs(t, e.Trigger(model.AgentReflex{Reasoning: "no action"}), ErrInvalidReflex)
	assert.ErrorIs(t, e.Trigger(model.AgentReflex{Action: model.ActionAbort}), ErrInvalidReflex)
}

func TestTriggerFailureDoesNotAffectDecisions(t *testing.T) {
	act := &fakeActuator{err: errors.New("instrument offline")}
	e := newTestEngine(t, &fakeStore{sops: []model.SOPDocument{vacuumSOP()}}, WithActuator(act))

	require.NoError(t, e.Trigger(model.AgentReflex{Action: model.ActionAbort, Reasoning: "stop"}))

	got, err := e.Decide(context.Background(), errorEvent("evt-1", "vacuum low"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.ActionRetry, got.Action)
	assert.Len(t, act.written(), 1, "trigger ran before the queued decision")
}

func TestTriggerAfterCloseIsDropped(t *testing.T) {
	act := &fakeActuator{}
	e, err := New(&fakeStore{}, WithActuator(act))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	assert.NoError(t, e.Trigger(model.AgentReflex{Action: model.ActionPause, Reasoning: "stop"}))
	assert.Empty(t, act.written())
}
