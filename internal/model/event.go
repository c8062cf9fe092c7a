package model

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of an instrument log event.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Levels lists every known level in ascending severity.
var Levels = []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}

// ParseLevel converts a case-insensitive level name to a Level.
// "WARN" is accepted as an alias for WARNING.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return "", fmt.Errorf("unknown level %q", s)
	}
}

// LogEvent is an observed instrument condition, produced by the instrument
// bridge or the CLI and consumed once by the reflex engine.
type LogEvent struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Level       Level             `json:"level"`
	Source      string            `json:"source"`
	Message     string            `json:"message"`
	ErrorCode   string            `json:"raw_code,omitempty"`     // vendor code, e.g. ERR_VACUUM_LOW
	ContextData map[string]string `json:"context_data,omitempty"` // opaque to the engine
}
