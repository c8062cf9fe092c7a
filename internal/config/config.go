// Package config loads coreason-signal settings from SIGNAL_* environment
// variables. CLI flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CoReason-AI/coreason-signal/internal/model"
)

// Config holds all coreason-signal configuration.
type Config struct {
	LogLevel  string
	Connector ConnectorConfig
	Engine    EngineConfig
	Store     StoreConfig
	API       APIConfig
	Output    OutputConfig
}

// ConnectorConfig selects where log events come from.
type ConnectorConfig struct {
	Provider string // "ndjson" or "bridge"
	APIKey   string
	Endpoint string
	Extra    map[string]string
}

// EngineConfig holds reflex engine settings.
type EngineConfig struct {
	Timeout          time.Duration
	QueueSize        int
	ActionableLevels []string
	DedupWindow      time.Duration // 0 disables dedup
}

// StoreConfig holds SOP store and embedder settings.
type StoreConfig struct {
	Path      string // SQLite file or "memory://"
	ModelPath string // empty selects the hashing embedder
	VocabPath string
	Dim       int
	Library   string // YAML SOP library seeded at startup
	Watch     bool
}

// APIConfig holds admin API settings.
type APIConfig struct {
	Addr            string
	DeviceID        string
	AllowedReflexes []string // empty allows any action
}

// OutputConfig holds actuator settings.
type OutputConfig struct {
	Targets     []string // stdout, file, webhook
	Pretty      bool
	FilePath    string
	FileMaxSize int64
	FileSync    bool // fsync the file actuator after every reflex
	WebhookURL  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		LogLevel: getenv("SIGNAL_LOG_LEVEL", "info"),
		Connector: ConnectorConfig{
			Provider: getenv("SIGNAL_CONNECTOR", "ndjson"),
			APIKey:   os.Getenv("SIGNAL_CONNECTOR_API_KEY"),
			Endpoint: os.Getenv("SIGNAL_CONNECTOR_ENDPOINT"),
			Extra:    loadConnectorExtra(),
		},
		Engine: EngineConfig{
			Timeout:          getenvSeconds("SIGNAL_REFLEX_TIMEOUT", 200*time.Millisecond),
			QueueSize:        getenvInt("SIGNAL_REFLEX_QUEUE_SIZE", 64),
			ActionableLevels: getenvList("SIGNAL_ACTIONABLE_LEVELS", []string{"ERROR"}),
			DedupWindow:      getenvDuration("SIGNAL_DEDUP_WINDOW", 0),
		},
		Store: StoreConfig{
			Path:      getenv("SIGNAL_VECTOR_STORE_PATH", "memory://"),
			ModelPath: os.Getenv("SIGNAL_EMBEDDING_MODEL"),
			VocabPath: os.Getenv("SIGNAL_EMBEDDING_VOCAB"),
			Dim:       getenvInt("SIGNAL_EMBEDDING_DIM", 384),
			Library:   os.Getenv("SIGNAL_SOP_LIBRARY"),
			Watch:     getenvBool("SIGNAL_SOP_WATCH", false),
		},
		API: APIConfig{
			Addr:            getenv("SIGNAL_API_ADDR", ":8080"),
			DeviceID:        getenv("SIGNAL_DEVICE_ID", "Coreason-Edge-Gateway"),
			AllowedReflexes: getenvList("SIGNAL_ALLOWED_REFLEXES", nil),
		},
		Output: OutputConfig{
			Targets:     getenvList("SIGNAL_OUTPUT", []string{"stdout"}),
			Pretty:      getenvBool("SIGNAL_OUTPUT_PRETTY", false),
			FilePath:    getenv("SIGNAL_OUTPUT_FILE", "signal-reflexes.ndjson"),
			FileMaxSize: int64(getenvInt("SIGNAL_OUTPUT_FILE_MAX_SIZE", 0)),
			FileSync:    getenvBool("SIGNAL_OUTPUT_FILE_SYNC", false),
			WebhookURL:  os.Getenv("SIGNAL_WEBHOOK_URL"),
		},
	}
}

// Levels parses ActionableLevels.
func (c EngineConfig) Levels() ([]model.Level, error) {
	levels := make([]model.Level, 0, len(c.ActionableLevels))
	for _, s := range c.ActionableLevels {
		l, err := model.ParseLevel(s)
		if err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// Device describes the gateway itself for manual trigger checks.
func (c APIConfig) Device() model.DeviceDefinition {
	return model.DeviceDefinition{
		ID:              c.DeviceID,
		DriverType:      "Gateway",
		AllowedReflexes: c.AllowedReflexes,
	}
}

// Validate checks the loaded configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error

	if c.Engine.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("reflex timeout must be positive, got %v", c.Engine.Timeout))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("reflex queue size must be positive, got %d", c.Engine.QueueSize))
	}
	if c.Engine.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("dedup window must not be negative, got %v", c.Engine.DedupWindow))
	}
	if len(c.Engine.ActionableLevels) == 0 {
		errs = append(errs, errors.New("at least one actionable level is required"))
	}
	if _, err := c.Engine.Levels(); err != nil {
		errs = append(errs, fmt.Errorf("actionable levels: %w", err))
	}
	if c.Store.ModelPath == "" && c.Store.Dim <= 0 {
		errs = append(errs, fmt.Errorf("embedding dim must be positive, got %d", c.Store.Dim))
	}
	if c.Store.Watch && c.Store.Library == "" {
		errs = append(errs, errors.New("SOP watch requires a library path"))
	}
	for _, t := range c.Output.Targets {
		switch t {
		case "stdout", "file":
		case "webhook":
			if c.Output.WebhookURL == "" {
				errs = append(errs, errors.New("webhook output requires SIGNAL_WEBHOOK_URL"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown output %q", t))
		}
	}
	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConnectorExtra reads provider-specific env vars into an Extra map.
func loadConnectorExtra() map[string]string {
	vars := []struct {
		envVar   string
		extraKey string
	}{
		{"SIGNAL_POLL_INTERVAL", "poll_interval"},
		{"SIGNAL_BRIDGE_CURSOR", "cursor"},
	}

	var m map[string]string
	for _, v := range vars {
		if val := os.Getenv(v.envVar); val != "" {
			if m == nil {
				m = make(map[string]string)
			}
			m[v.extraKey] = val
		}
	}
	return m
}

// getenvSeconds reads a float number of seconds.
func getenvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(f * float64(time.Second))
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getenvList reads a comma-separated list, trimming blanks.
func getenvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
