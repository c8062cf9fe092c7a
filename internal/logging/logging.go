// Package logging configures the process-wide slog logger. Diagnostics
// always go to stderr; stdout is reserved for the reflex stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init creates and sets the package-level default slog logger.
// When outputIsStdout is true, uses JSONHandler on stderr so diagnostics
// stay machine-readable next to the NDJSON reflex stream. Otherwise uses
// TextHandler on stderr.
func Init(outputIsStdout bool, level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, outputIsStdout, level)))
}

// NewHandler returns the handler Init would install, writing to w.
func NewHandler(w io.Writer, json bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a string ("debug", "info", "warn", "error") to slog.Level.
// Unknown strings default to LevelInfo.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns the default logger tagged with a subsystem name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}
