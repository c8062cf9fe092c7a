// Package connector defines sources of instrument log events.
package connector

import (
	"context"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// Connector is a source of instrument log events.
type Connector interface {
	// Stream delivers events as they arrive until the source is exhausted
	// or ctx is done, then closes the channel.
	Stream(ctx context.Context, cfg Config) (<-chan model.LogEvent, error)

	// Query fetches a batch of recorded events matching params.
	Query(ctx context.Context, cfg Config, params QueryParams) ([]model.LogEvent, error)
}

// Config holds source-specific connection settings.
type Config struct {
	Provider string
	APIKey   string
	Endpoint string            // file path, "-" for stdin, or a base URL
	Extra    map[string]string // provider-specific, e.g. poll_interval
}

// QueryParams filters recorded events. Zero values do not filter.
type QueryParams struct {
	Start time.Time
	End   time.Time
	Limit int
}

// Match reports whether ev passes the time window.
func (p QueryParams) Match(ev model.LogEvent) bool {
	if !p.Start.IsZero() && ev.Timestamp.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && !ev.Timestamp.Before(p.End) {
		return false
	}
	return true
}
