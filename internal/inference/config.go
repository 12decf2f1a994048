package inference

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds the settings for talking to an embedding model server
type Config struct {
	Endpoint     string            // URL the tensor is POSTed to
	Model        string            // Model name sent with every request (optional)
	ResponsePath string            // gjson path of the vector in the response (default: "embedding")
	Headers      map[string]string // Extra request headers, e.g. Authorization
	Timeout      time.Duration     // HTTP client timeout (default: 30s)

	// BinaryTensor sends the tensor as base64 little-endian float32 in
	// "data_b64" instead of a JSON number array.
	BinaryTensor bool

	// Rate limiting (0 = unlimited)
	RequestsPerSecond float64
	Burst             int // default: 1
}

// DefaultConfig returns a config for a model server on localhost.
func DefaultConfig() Config {
	return Config{
		Endpoint:     "http://127.0.0.1:8080/embed",
		ResponsePath: "embedding",
		Timeout:      30 * time.Second,
		Burst:        1,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must be http or https (got %q)", u.Scheme)
	}
	if c.ResponsePath == "" {
		return fmt.Errorf("response_path is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative (got %v)", c.Timeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must be non-negative (got %v)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rate limiting (got %d)", c.Burst)
	}
	return nil
}

// RetryConfig holds retry configuration for inference calls
type RetryConfig struct {
	MaxRetries        int           // Maximum number of retries (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 500ms)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 10s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 60s, 0 = none)

	// Circuit breaker settings
	CircuitBreakerEnabled bool          // Enable circuit breaker (default: true)
	FailureThreshold      int           // Failures before opening circuit (default: 5)
	SuccessThreshold      int           // Successes in half-open before closing (default: 2)
	OpenTimeout           time.Duration // How long to keep circuit open (default: 30s)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:            3,
		InitialBackoff:        500 * time.Millisecond,
		MaxBackoff:            10 * time.Second,
		BackoffMultiplier:     2.0,
		Timeout:               60 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      2,
		OpenTimeout:           30 * time.Second,
	}
}

// Validate checks if the retry configuration has valid values
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative (got %d)", c.MaxRetries)
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must be non-negative")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff (%v) must be >= initial_backoff (%v)", c.MaxBackoff, c.InitialBackoff)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1.0 (got %v)", c.BackoffMultiplier)
	}
	if c.CircuitBreakerEnabled {
		if c.FailureThreshold < 1 {
			return fmt.Errorf("failure_threshold must be positive (got %d)", c.FailureThreshold)
		}
		if c.SuccessThreshold < 1 {
			return fmt.Errorf("success_threshold must be positive (got %d)", c.SuccessThreshold)
		}
	}
	return nil
}
