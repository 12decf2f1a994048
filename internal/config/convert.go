package config

import (
	"fmt"
	"time"

	"github.com/steveyegge/dupsweep/internal/deduplication"
	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/imaging"
	"github.com/steveyegge/dupsweep/internal/inference"
	"github.com/steveyegge/dupsweep/internal/relocation"
	"github.com/steveyegge/dupsweep/internal/scan"
)

// EmbeddingConfig returns the pipeline settings
func (c *Config) EmbeddingConfig() embedding.Config {
	return embedding.Config{
		InferenceSlots: c.InferenceSlots,
		Workers:        c.Workers,
		Dimension:      c.Inference.Dimension,
	}
}

// ResolverConfig returns the duplicate resolver settings
func (c *Config) ResolverConfig() deduplication.Config {
	return deduplication.Config{
		Threshold: c.Threshold,
		Workers:   c.Workers,
	}
}

// RelocationConfig returns the handoff settings
func (c *Config) RelocationConfig() relocation.Config {
	return relocation.Config{
		DeleteSource: c.DeleteSource,
		Workers:      c.RelocationWorkers,
	}
}

// ScanOptions returns the scanner settings. The target directory is always
// skipped so relocated files are never rescanned.
func (c *Config) ScanOptions() scan.Options {
	return scan.Options{
		Extensions:      c.Scan.Extensions,
		ExcludePatterns: c.Scan.Exclude,
		Recursive:       c.Scan.Recursive,
		IncludeHidden:   c.Scan.IncludeHidden,
		SkipDirs:        []string{c.Target},
	}
}

// ImagingConfig returns the decoder settings
func (c *Config) ImagingConfig() imaging.Config {
	return imaging.Config{
		InputSize: c.Imaging.InputSize,
		Mean:      c.Imaging.Mean,
		Std:       c.Imaging.Std,
	}
}

// InferenceConfig converts the YAML inference section
func (c *Config) InferenceConfig() (inference.Config, error) {
	timeout, err := parseField("inference.timeout", c.Inference.Timeout)
	if err != nil {
		return inference.Config{}, err
	}

	cfg := inference.Config{
		Endpoint:          c.Inference.Endpoint,
		Model:             c.Inference.Model,
		ResponsePath:      c.Inference.ResponsePath,
		Headers:           c.Inference.Headers,
		Timeout:           timeout,
		BinaryTensor:      c.Inference.BinaryTensor,
		RequestsPerSecond: c.Inference.RequestsPerSecond,
		Burst:             c.Inference.Burst,
	}
	if err := cfg.Validate(); err != nil {
		return inference.Config{}, fmt.Errorf("inference: %w", err)
	}
	return cfg, nil
}

// RetryConfig converts the YAML retry section
func (c *Config) RetryConfig() (inference.RetryConfig, error) {
	r := c.Inference.Retry
	cfg := inference.DefaultRetryConfig()
	cfg.MaxRetries = r.MaxRetries
	cfg.CircuitBreakerEnabled = r.CircuitBreaker
	cfg.FailureThreshold = r.FailureThreshold
	cfg.SuccessThreshold = r.SuccessThreshold

	fields := []struct {
		name  string
		value string
		dest  *time.Duration
	}{
		{"inference.retry.initial_backoff", r.InitialBackoff, &cfg.InitialBackoff},
		{"inference.retry.max_backoff", r.MaxBackoff, &cfg.MaxBackoff},
		{"inference.retry.attempt_timeout", r.AttemptTimeout, &cfg.Timeout},
		{"inference.retry.open_timeout", r.OpenTimeout, &cfg.OpenTimeout},
	}
	for _, f := range fields {
		d, err := parseField(f.name, f.value)
		if err != nil {
			return inference.RetryConfig{}, err
		}
		*f.dest = d
	}

	if err := cfg.Validate(); err != nil {
		return inference.RetryConfig{}, fmt.Errorf("inference.retry: %w", err)
	}
	return cfg, nil
}
