// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for the upload core.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration structure.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Client ClientConfig `toml:"client"`
	Store  StoreConfig  `toml:"store"`
}

// EngineConfig controls chunking, concurrency, retry, and debounce behavior
// of the upload engine. Field names mirror the documented constants in
// spec.md §6 (CHUNK_SIZE, MAX_CONCURRENT_CHUNKS, ...).
type EngineConfig struct {
	ChunkSize             string `toml:"chunk_size"`
	MaxConcurrentChunks   int    `toml:"max_concurrent_chunks"`
	MaxRetries            int    `toml:"max_retries"`
	InitialRetryDelay     string `toml:"initial_retry_delay"`
	ProgressDebounce      string `toml:"progress_debounce"`
	PersistenceDebounce   string `toml:"persistence_debounce"`
	MaxFilesPerBatch      int    `toml:"max_files_per_batch"`
	MaxFileSize           string `toml:"max_file_size"`
	HashWindowSize        string `toml:"hash_window_size"`
}

// ClientConfig controls the rate-limited API client.
type ClientConfig struct {
	BaseURL              string `toml:"base_url"`
	RateLimitRequests    int    `toml:"rate_limit_requests"`
	RateLimitWindow      string `toml:"rate_limit_window"`
	TestEnvironment      bool   `toml:"test_environment"`
}

// StoreConfig controls durable session persistence.
type StoreConfig struct {
	DatabasePath   string `toml:"database_path"`
	SessionExpiry  string `toml:"session_expiry"`
}

// LoadFile reads and parses a TOML config file, layering it over defaults.
// A missing file is not an error: defaults are returned unchanged.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

// ChunkSizeBytes parses ChunkSize, falling back to the compiled default on error.
func (c *EngineConfig) ChunkSizeBytes() int64 {
	n, err := ParseSize(c.ChunkSize)
	if err != nil || n <= 0 {
		n, _ = ParseSize(defaultChunkSize)
	}

	return n
}

// MaxFileSizeBytes parses MaxFileSize, falling back to the compiled default on error.
func (c *EngineConfig) MaxFileSizeBytes() int64 {
	n, err := ParseSize(c.MaxFileSize)
	if err != nil || n <= 0 {
		n, _ = ParseSize(defaultMaxFileSize)
	}

	return n
}

// HashWindowBytes parses HashWindowSize, falling back to the compiled default on error.
func (c *EngineConfig) HashWindowBytes() int64 {
	n, err := ParseSize(c.HashWindowSize)
	if err != nil || n <= 0 {
		n, _ = ParseSize(defaultHashWindowSize)
	}

	return n
}

// InitialRetryDelayDuration parses InitialRetryDelay as a time.Duration.
func (c *EngineConfig) InitialRetryDelayDuration() time.Duration {
	return parseDurationOrDefault(c.InitialRetryDelay, defaultInitialRetryDelay)
}

// ProgressDebounceDuration parses ProgressDebounce as a time.Duration.
func (c *EngineConfig) ProgressDebounceDuration() time.Duration {
	return parseDurationOrDefault(c.ProgressDebounce, defaultProgressDebounce)
}

// PersistenceDebounceDuration parses PersistenceDebounce as a time.Duration.
func (c *EngineConfig) PersistenceDebounceDuration() time.Duration {
	return parseDurationOrDefault(c.PersistenceDebounce, defaultPersistenceDebounce)
}

// RateLimitWindowDuration parses RateLimitWindow as a time.Duration.
func (c *ClientConfig) RateLimitWindowDuration() time.Duration {
	return parseDurationOrDefault(c.RateLimitWindow, defaultRateLimitWindow)
}

// SessionExpiryDuration parses SessionExpiry as a time.Duration.
func (c *StoreConfig) SessionExpiryDuration() time.Duration {
	return parseDurationOrDefault(c.SessionExpiry, defaultSessionExpiry)
}

func parseDurationOrDefault(s, fallback string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}

	return d
}
