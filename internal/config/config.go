// Package config reads steward settings from the environment
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/retry"
)

// Pending plan backends
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds every setting the commands need
type Config struct {
	StatePath string
	Location  *time.Location

	PlannerURL   string
	PlannerModel string

	PreviewMail   bool
	BridgeTimeout time.Duration
	Retry         retry.Config
	LookbackDays  int
	LookaheadDays int

	MetricsAddr string

	DiscordToken     string
	DiscordChannelID string
	DiscordOwnerID   string

	GoogleTokensFile      string
	GoogleAccessToken     string
	GoogleCredentialsFile string
	GoogleSubject         string

	VocabularyFile string
	PendingBackend string
	// MCPConfigFile lists external MCP servers that confirmed
	// external actions can run on
	MCPConfigFile string
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset. Callers load .env first.
func FromEnv() (*Config, error) {
	engine := dispatch.DefaultConfig()
	cfg := &Config{
		StatePath:             getenv("STATE_PATH", "state"),
		PlannerURL:            os.Getenv("PLANNER_URL"),
		PlannerModel:          os.Getenv("PLANNER_MODEL"),
		MetricsAddr:           os.Getenv("METRICS_ADDR"),
		DiscordToken:          os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID:      os.Getenv("DISCORD_CHANNEL_ID"),
		DiscordOwnerID:        os.Getenv("DISCORD_OWNER_ID"),
		GoogleTokensFile:      os.Getenv("GOOGLE_TOKENS_FILE"),
		GoogleAccessToken:     os.Getenv("GOOGLE_ACCESS_TOKEN"),
		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		GoogleSubject:         os.Getenv("GOOGLE_SUBJECT"),
		VocabularyFile:        os.Getenv("VOCABULARY_FILE"),
		PendingBackend:        strings.ToLower(getenv("PENDING_BACKEND", BackendSQLite)),
		MCPConfigFile:         os.Getenv("MCP_CONFIG"),
		Retry:                 engine.Retry,
		LookbackDays:          engine.LookbackDays,
		LookaheadDays:         engine.LookaheadDays,
		BridgeTimeout:         10 * time.Minute,
	}

	var err error
	tz := getenv("TIMEZONE", "Local")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	if cfg.PreviewMail, err = boolEnv("PREVIEW_MAIL", false); err != nil {
		return nil, err
	}
	if cfg.BridgeTimeout, err = durationEnv("BRIDGE_TIMEOUT", cfg.BridgeTimeout); err != nil {
		return nil, err
	}
	if cfg.Retry.BaseDelay, err = durationEnv("RETRY_BASE_DELAY", cfg.Retry.BaseDelay); err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts, err = intEnv("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts); err != nil {
		return nil, err
	}
	if cfg.LookbackDays, err = intEnv("LOOKBACK_DAYS", cfg.LookbackDays); err != nil {
		return nil, err
	}
	if cfg.LookaheadDays, err = intEnv("LOOKAHEAD_DAYS", cfg.LookaheadDays); err != nil {
		return nil, err
	}

	switch cfg.PendingBackend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return nil, fmt.Errorf("PENDING_BACKEND: unknown backend %q", cfg.PendingBackend)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return cfg, nil
}

// Engine returns the dispatch settings
func (c *Config) Engine() dispatch.Config {
	engine := dispatch.DefaultConfig()
	engine.Location = c.Location
	engine.PreviewMail = c.PreviewMail
	engine.Retry = c.Retry
	engine.LookbackDays = c.LookbackDays
	engine.LookaheadDays = c.LookaheadDays
	return engine
}

// Path joins name onto the state directory
func (c *Config) Path(name string) string {
	return filepath.Join(c.StatePath, name)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// durationEnv accepts Go durations ("90s") or bare seconds ("90")
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
