// Package ndjson reads instrument log events from newline-delimited JSON,
// one LogEvent per line, from a file or stdin.
package ndjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/CoReason-AI/coreason-signal/internal/connector"
	"github.com/CoReason-AI/coreason-signal/internal/model"
)

const maxLineSize = 1 << 20

func init() {
	connector.Register("ndjson", func() connector.Connector {
		return &Connector{}
	})
}

// Connector implements connector.Connector over NDJSON. Endpoint is a file
// path; "" or "-" reads Stdin (os.Stdin when nil). Blank lines and lines
// starting with '#' are ignored; malformed lines are logged and skipped.
type Connector struct {
	Stdin io.Reader
}

func (c *Connector) open(cfg connector.Config) (io.ReadCloser, error) {
	if cfg.Endpoint == "" || cfg.Endpoint == "-" {
		if c.Stdin != nil {
			return io.NopCloser(c.Stdin), nil
		}
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("ndjson connector: %w", err)
	}
	return f, nil
}

func (c *Connector) Stream(ctx context.Context, cfg connector.Config) (<-chan model.LogEvent, error) {
	r, err := c.open(cfg)
	if err != nil {
		return nil, err
	}
	ch := make(chan model.LogEvent, 64)
	go func() {
		defer close(ch)
		defer r.Close()
		err := scan(r, func(ev model.LogEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		})
		if err != nil {
			slog.Error("ndjson read failed", "endpoint", cfg.Endpoint, "error", err)
		}
	}()
	return ch, nil
}

func (c *Connector) Query(_ context.Context, cfg connector.Config, params connector.QueryParams) ([]model.LogEvent, error) {
	r, err := c.open(cfg)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []model.LogEvent
	err = scan(r, func(ev model.LogEvent) bool {
		if params.Match(ev) {
			out = append(out, ev)
		}
		return params.Limit <= 0 || len(out) < params.Limit
	})
	if err != nil {
		return nil, fmt.Errorf("ndjson connector: %w", err)
	}
	return out, nil
}

// scan decodes r line by line and calls emit until it returns false.
func scan(r io.Reader, emit func(model.LogEvent) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := Decode([]byte(text))
		if err != nil {
			slog.Warn("skipping malformed event", "line", line, "error", err)
			continue
		}
		if !emit(ev) {
			return nil
		}
	}
	return sc.Err()
}

// Decode parses one JSON LogEvent. Level names are case-insensitive and
// normalized to their canonical form.
func Decode(data []byte) (model.LogEvent, error) {
	var ev model.LogEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.LogEvent{}, err
	}
	if ev.Level != "" {
		lvl, err := model.ParseLevel(string(ev.Level))
		if err != nil {
			return model.LogEvent{}, err
		}
		ev.Level = lvl
	}
	return ev, nil
}
