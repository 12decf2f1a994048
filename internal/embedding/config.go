package embedding

import (
	"fmt"
	"runtime"
)

// Config holds configuration for the embedding pipeline
type Config struct {
	// InferenceSlots is the maximum number of concurrent Infer calls.
	// Default: runtime.NumCPU()
	InferenceSlots int

	// Workers bounds how many identifiers are decoded concurrently.
	// Default: runtime.NumCPU()
	Workers int

	// Dimension is the expected embedding length. Outputs of any other length
	// are rejected as malformed. 0 disables the check.
	Dimension int
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		InferenceSlots: n,
		Workers:        n,
		Dimension:      0,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.InferenceSlots <= 0 {
		return fmt.Errorf("inference_slots must be positive (got %d)", c.InferenceSlots)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("dimension cannot be negative (got %d)", c.Dimension)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{InferenceSlots: %d, Workers: %d, Dimension: %d}",
		c.InferenceSlots, c.Workers, c.Dimension)
}
