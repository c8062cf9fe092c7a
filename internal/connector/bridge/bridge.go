// Package bridge polls an instrument bridge (the SiLA 2 / serial gateway
// sidecar) for log events over its REST API.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/connector"
	"github.com/CoReason-AI/coreason-signal/internal/connector/httpclient"
	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const (
	eventsPath          = "/events"
	defaultPollInterval = time.Second
	pageSize            = 100
)

func init() {
	connector.Register("bridge", func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements connector.Connector for the bridge API:
//
//	GET {endpoint}/events?cursor=C&limit=N -> {"events": [...], "next_cursor": "C'"}
//
// An empty next_cursor means the bridge has nothing newer.
type Connector struct {
	// Options are passed to the HTTP client; tests shorten retry backoff.
	Options []httpclient.Option
}

type eventsResponse struct {
	Events     []model.LogEvent `json:"events"`
	NextCursor string           `json:"next_cursor"`
}

func (c *Connector) client(cfg connector.Config) (*httpclient.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("bridge connector: endpoint is required")
	}
	return httpclient.New(cfg.Endpoint, cfg.APIKey, c.Options...), nil
}

func (c *Connector) Query(ctx context.Context, cfg connector.Config, params connector.QueryParams) ([]model.LogEvent, error) {
	client, err := c.client(cfg)
	if err != nil {
		return nil, err
	}

	var results []model.LogEvent
	cursor := ""
	for {
		resp, err := fetch(ctx, client, cursor)
		if err != nil {
			return nil, fmt.Errorf("bridge connector: %w", err)
		}
		for _, ev := range resp.Events {
			if !params.Match(ev) {
				continue
			}
			results = append(results, ev)
			if params.Limit > 0 && len(results) >= params.Limit {
				return results, nil
			}
		}
		if resp.NextCursor == "" || resp.NextCursor == cursor {
			return results, nil
		}
		cursor = resp.NextCursor
	}
}

func (c *Connector) Stream(ctx context.Context, cfg connector.Config) (<-chan model.LogEvent, error) {
	client, err := c.client(cfg)
	if err != nil {
		return nil, err
	}
	interval := defaultPollInterval
	if raw := cfg.Extra["poll_interval"]; raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("bridge connector: invalid poll_interval %q", raw)
		}
		interval = d
	}

	ch := make(chan model.LogEvent, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cursor := cfg.Extra["cursor"]
		for {
			cursor = poll(ctx, client, cursor, ch)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch, nil
}

// poll drains every page available now and returns the cursor to resume from.
func poll(ctx context.Context, client *httpclient.Client, cursor string, ch chan<- model.LogEvent) string {
	for {
		resp, err := fetch(ctx, client, cursor)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("poll error", "connector", "bridge", "error", err)
			}
			return cursor
		}
		for _, ev := range resp.Events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return cursor
			}
		}
		if resp.NextCursor == "" || resp.NextCursor == cursor {
			return cursor
		}
		cursor = resp.NextCursor
	}
}

func fetch(ctx context.Context, client *httpclient.Client, cursor string) (eventsResponse, error) {
	q := url.Values{"limit": {strconv.Itoa(pageSize)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp eventsResponse
	err := client.GetJSON(ctx, eventsPath, q, &resp)
	return resp, err
}
