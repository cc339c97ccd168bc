package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	YouTube YouTubeConfig `toml:"youtube"`
	Cache   CacheConfig   `toml:"cache"`
	Quota   QuotaConfig   `toml:"quota"`
	History HistoryConfig `toml:"history"`
	Journal JournalConfig `toml:"journal"`
}

// YouTubeConfig contains YouTube Data API settings.
type YouTubeConfig struct {
	TokenFile      string  `toml:"token_file"`       // OAuth token JSON written by an external auth flow
	BaseURL        string  `toml:"base_url"`         // API base URL, override for testing
	PageSize       int     `toml:"page_size"`        // Results per page, max 50
	ReadRetries    int     `toml:"read_retries"`     // Max transparent retries for idempotent reads
	RetryPerSecond float64 `toml:"retry_per_second"` // Pacing for retried reads
}

// CacheConfig contains local cache settings.
type CacheConfig struct {
	Path       string `toml:"path"`        // SQLite database path, ":memory:" for tests
	TTLSeconds int    `toml:"ttl_seconds"` // Record freshness window
	MaxRecords int    `toml:"max_records"` // Size cap before LRU eviction
}

// QuotaConfig contains daily quota budget settings.
type QuotaConfig struct {
	DailyBudget int `toml:"daily_budget"` // Units per ledger day
	ResetHour   int `toml:"reset_hour"`   // UTC hour at which the ledger day rolls over
}

// HistoryConfig bounds the undo/redo history.
type HistoryConfig struct {
	Depth int `toml:"depth"` // Max applied commands retained; oldest dropped silently
}

// JournalConfig configures the on-disk command audit journal.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // Base directory for journal records
}

// TTL returns the cache freshness window as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
