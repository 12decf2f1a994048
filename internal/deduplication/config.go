package deduplication

import (
	"fmt"
	"runtime"
)

// Config holds configuration for the duplicate resolver
type Config struct {
	// Threshold is the similarity a pair must strictly exceed to be a duplicate.
	// Must be in (0, 1]. There is no default; the caller picks it.
	Threshold float64

	// Workers is the number of goroutines scanning outer indices.
	// Default: runtime.NumCPU()
	Workers int
}

// DefaultConfig returns a resolver configuration with default workers and no
// threshold. Callers must set Threshold before use.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.NumCPU(),
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Threshold <= 0.0 || c.Threshold > 1.0 {
		return fmt.Errorf("threshold must be in (0.0, 1.0] (got %.4f)", c.Threshold)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{Threshold: %.4f, Workers: %d}", c.Threshold, c.Workers)
}
