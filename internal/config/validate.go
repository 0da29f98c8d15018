package config

import (
	"errors"
	"fmt"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateClient(&c.Client)...)
	errs = append(errs, validateStore(&c.Store)...)

	return errors.Join(errs...)
}

func validateEngine(e *EngineConfig) []error {
	var errs []error

	if n, err := ParseSize(e.ChunkSize); err != nil || n <= 0 {
		errs = append(errs, fmt.Errorf("engine.chunk_size: invalid size %q", e.ChunkSize))
	}

	if e.MaxConcurrentChunks <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_concurrent_chunks must be positive, got %d", e.MaxConcurrentChunks))
	}

	if e.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("engine.max_retries must be non-negative, got %d", e.MaxRetries))
	}

	if _, err := ParseSize(e.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("engine.max_file_size: %w", err))
	}

	if e.MaxFilesPerBatch <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_files_per_batch must be positive, got %d", e.MaxFilesPerBatch))
	}

	return errs
}

func validateClient(c *ClientConfig) []error {
	var errs []error

	if c.BaseURL == "" {
		errs = append(errs, errors.New("client.base_url must not be empty"))
	}

	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("client.rate_limit_requests must be positive, got %d", c.RateLimitRequests))
	}

	return errs
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if s.DatabasePath == "" {
		errs = append(errs, errors.New("store.database_path must not be empty"))
	}

	return errs
}
