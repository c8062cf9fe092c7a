// Package dedup collapses repeated reflexes before they reach actuators, so
// a burst of identical instrument errors produces one dispatched action.
package dedup

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// Config controls deduplication behavior.
type Config struct {
	Window time.Duration // grouping window measured from the first reflex of a group
}

// Deduplicator collapses identical reflexes within a time window.
type Deduplicator struct {
	cfg Config
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

// group accumulates reflexes with the same dedup key.
type group struct {
	reflex   model.AgentReflex
	count    int
	firstTS  time.Time
	latestTS time.Time
}

// Key identifies reflexes that prescribe the same action with the same
// parameters. event_id and count are excluded, so repeats of one condition
// from one source collapse while reflexes aimed at different instruments
// (the pipeline records a "source" parameter) or with different parameters
// stay apart.
func Key(r model.AgentReflex) string {
	keys := make([]string, 0, len(r.Parameters))
	for k := range r.Parameters {
		if k == "event_id" || k == "count" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(r.Action))
	for _, k := range keys {
		v := r.Parameters[k]
		fmt.Fprintf(&b, "|%s=%d:%s", k, v.Kind(), v.String())
	}
	return b.String()
}

// DeduplicateBatch collapses reflexes with the same Key within Window of the
// first one in their group. Returns reflexes in first-occurrence order.
// Merged reflexes get a "count" parameter and a reasoning suffix.
func (d *Deduplicator) DeduplicateBatch(reflexes []model.AgentReflex) []model.AgentReflex {
	if len(reflexes) == 0 {
		return nil
	}

	var order []*group
	open := make(map[string]*group)

	for _, r := range reflexes {
		key := Key(r)

		g, exists := open[key]
		if exists && r.Timestamp.Sub(g.firstTS) <= d.cfg.Window {
			g.count++
			if r.Timestamp.After(g.latestTS) {
				g.latestTS = r.Timestamp
			}
			continue
		}

		// New group: either new key or outside window.
		g = &group{
			reflex:   r.Clone(),
			count:    1,
			firstTS:  r.Timestamp,
			latestTS: r.Timestamp,
		}
		open[key] = g
		order = append(order, g)
	}

	result := make([]model.AgentReflex, 0, len(order))
	for _, g := range order {
		r := g.reflex
		if g.count > 1 {
			if r.Parameters == nil {
				r.Parameters = model.Params{}
			}
			r.Parameters["count"] = model.Number(float64(g.count))
			dur := g.latestTS.Sub(g.firstTS)
			r.Reasoning = fmt.Sprintf("%s (x%d in %s)", r.Reasoning, g.count, formatDuration(dur))
		}
		result = append(result, r)
	}
	return result
}

// formatDuration produces a human-readable short duration string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
