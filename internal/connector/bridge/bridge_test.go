package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CoReason-AI/coreason-signal/internal/connector"
	"github.com/CoReason-AI/coreason-signal/internal/connector/httpclient"
	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// fakeBridge serves a growing event log with integer cursors.
type fakeBridge struct {
	mu     sync.Mutex
	events []model.LogEvent
	page   int
	fail   bool
}

func (b *fakeBridge) append(evs ...model.LogEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evs...)
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r.URL.Path != "/events" {
		http.NotFound(w, r)
		return
	}
	if b.fail {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	start, _ := strconv.Atoi(r.URL.Query().Get("cursor"))
	end := min(start+b.page, len(b.events))
	resp := eventsResponse{Events: b.events[start:end]}
	if end > start {
		resp.NextCursor = strconv.Itoa(end)
	}
	json.NewEncoder(w).Encode(resp)
}

func event(i int) model.LogEvent {
	return model.LogEvent{
		ID:        fmt.Sprintf("evt-%d", i),
		Timestamp: time.Date(2026, 3, 2, 9, 0, i, 0, time.UTC),
		Level:     model.LevelError,
		Source:    "hamilton-01",
		Message:   "Pressure drop in Channel 1",
	}
}

func TestQueryPaginates(t *testing.T) {
	b := &fakeBridge{page: 2}
	for i := 0; i < 5; i++ {
		b.append(event(i))
	}
	srv := httptest.NewServer(b)
	defer srv.Close()

	c := &Connector{}
	got, err := c.Query(context.Background(), connector.Config{Endpoint: srv.URL}, connector.QueryParams{})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "evt-4", got[4].ID)

	limited, err := c.Query(context.Background(), connector.Config{Endpoint: srv.URL}, connector.QueryParams{
		Start: event(1).Timestamp,
		Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "evt-1", limited[0].ID)
}

func TestQueryError(t *testing.T) {
	srv := httptest.NewServer(&fakeBridge{fail: true})
	defer srv.Close()

	_, err := (&Connector{}).Query(context.Background(), connector.Config{Endpoint: srv.URL}, connector.QueryParams{})
	assert.Error(t, err)
}

func TestStreamPollsForNewEvents(t *testing.T) {
	b := &fakeBridge{page: 10}
	b.append(event(0), event(1))
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &Connector{Options: []httpclient.Option{httpclient.WithBackoff(time.Millisecond)}}
	ch, err := c.Stream(ctx, connector.Config{
		Endpoint: srv.URL,
		Extra:    map[string]string{"poll_interval": "20ms"},
	})
	require.NoError(t, err)

	assert.Equal(t, "evt-0", (<-ch).ID)
	assert.Equal(t, "evt-1", (<-ch).ID)

	b.append(event(2))
	select {
	case ev := <-ch:
		assert.Equal(t, "evt-2", ev.ID, "events already delivered must not repeat")
	case <-time.After(2 * time.Second):
		t.Fatal("new event was not polled")
	}

	cancel()
	for range ch {
	}
}

func TestStreamConfigErrors(t *testing.T) {
	c := &Connector{}
	_, err := c.Stream(context.Background(), connector.Config{})
	assert.Error(t, err)

	_, err = c.Stream(context.Background(), connector.Config{
		Endpoint: "http://bridge.local",
		Extra:    map[string]string{"poll_interval": "soon"},
	})
	assert.Error(t, err)
}
