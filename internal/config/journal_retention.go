package config

import (
	"fmt"
	"time"
)

// JournalRetentionConfig holds configuration for pruning old runs from the journal
type JournalRetentionConfig struct {
	// MaxAge is how long finished runs are kept, e.g. "90d" or "12w"
	// Default: "90d"
	MaxAge string `yaml:"max_age" toml:"max_age"`

	// KeepRuns is the maximum number of finished runs to keep
	// Set to 0 for unlimited
	// Default: 200, Range: 0 or 10-100000
	KeepRuns int `yaml:"keep_runs" toml:"keep_runs"`

	// BatchSize is the number of runs deleted per statement
	// Default: 500, Range: 1-10000
	BatchSize int `yaml:"batch_size" toml:"batch_size"`

	// AutoPrune prunes at the end of every scan
	// Default: true
	AutoPrune bool `yaml:"auto_prune" toml:"auto_prune"`

	// Vacuum runs VACUUM after pruning
	// Default: false
	Vacuum bool `yaml:"vacuum" toml:"vacuum"`
}

// DefaultJournalRetentionConfig returns the default journal retention configuration
func DefaultJournalRetentionConfig() JournalRetentionConfig {
	return JournalRetentionConfig{
		MaxAge:    "90d",
		KeepRuns:  200,
		BatchSize: 500,
		AutoPrune: true,
		Vacuum:    false,
	}
}

// Validate checks if the configuration has valid values
func (c JournalRetentionConfig) Validate() error {
	age, err := parseField("max_age", c.MaxAge)
	if err != nil {
		return err
	}
	if age != 0 && age < time.Hour {
		return fmt.Errorf("max_age must be at least 1h or empty (got %s)", c.MaxAge)
	}

	// KeepRuns: 0 = unlimited, or 10-100000
	if c.KeepRuns < 0 {
		return fmt.Errorf("keep_runs cannot be negative (got %d)", c.KeepRuns)
	}
	if c.KeepRuns > 0 && c.KeepRuns < 10 {
		return fmt.Errorf("keep_runs must be 0 (unlimited) or >= 10 (got %d)", c.KeepRuns)
	}
	if c.KeepRuns > 100000 {
		return fmt.Errorf("keep_runs too large (got %d, max 100000)", c.KeepRuns)
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1 (got %d)", c.BatchSize)
	}
	if c.BatchSize > 10000 {
		return fmt.Errorf("batch_size too large (got %d, max 10000)", c.BatchSize)
	}
	return nil
}

// MaxAgeDuration returns MaxAge parsed, or 0 if age-based pruning is off.
// Call Validate first; an invalid value is treated as off.
func (c JournalRetentionConfig) MaxAgeDuration() time.Duration {
	d, err := parseField("max_age", c.MaxAge)
	if err != nil {
		return 0
	}
	return d
}

// String returns a human-readable representation of the config
func (c JournalRetentionConfig) String() string {
	return fmt.Sprintf(
		"JournalRetentionConfig{MaxAge: %s, KeepRuns: %d, BatchSize: %d, AutoPrune: %t, Vacuum: %t}",
		c.MaxAge, c.KeepRuns, c.BatchSize, c.AutoPrune, c.Vacuum,
	)
}
