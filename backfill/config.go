package backfill

import (
	"errors"
	"fmt"
	"time"
)

// Config holds configuration for a backfill run.
type Config struct {
	// BatchSize is the number of pending items fetched per batch
	BatchSize int

	// CommitEvery is the number of batches staged between commits
	CommitEvery int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// ReportInterval is how often to report progress (number of items)
	ReportInterval int

	// Workers bounds the embedding jobs of one batch that run at once
	Workers int

	// LockTTL is how long the run lock survives without a refresh
	LockTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      512,
		CommitEvery:    5,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		ReportInterval: 512,
		Workers:        3,
		LockTTL:        time.Hour,
	}
}

// Validate checks that every field is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BatchSize must be positive, got %d", c.BatchSize))
	}
	if c.CommitEvery <= 0 {
		errs = append(errs, fmt.Errorf("CommitEvery must be positive, got %d", c.CommitEvery))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("MaxRetries must be positive, got %d", c.MaxRetries))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("RetryDelay cannot be negative, got %v", c.RetryDelay))
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("ReportInterval must be positive, got %d", c.ReportInterval))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("Workers must be positive, got %d", c.Workers))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("LockTTL must be positive, got %v", c.LockTTL))
	}
	return errors.Join(errs...)
}
