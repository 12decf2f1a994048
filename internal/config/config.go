// Package config loads dupsweep settings from defaults, a YAML or TOML file
// and DUPSWEEP_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/steveyegge/dupsweep/internal/events"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked for in the working directory when no config
// path is given.
const DefaultConfigFile = "dupsweep.yaml"

// Config is the full configuration of a sweep run
type Config struct {
	// Threshold is the minimum cosine similarity (exclusive) for two images
	// to count as duplicates
	// Default: 0.95, Range: (0.0, 1.0]
	Threshold float64 `yaml:"threshold" toml:"threshold"`

	// Workers bounds decode fan-out and resolver goroutines
	// Default: runtime.NumCPU()
	Workers int `yaml:"workers" toml:"workers"`

	// InferenceSlots bounds concurrent model invocations
	// Default: runtime.NumCPU()
	InferenceSlots int `yaml:"inference_slots" toml:"inference_slots"`

	// RelocationWorkers bounds concurrent file moves
	// Default: 4
	RelocationWorkers int `yaml:"relocation_workers" toml:"relocation_workers"`

	// Target is the directory duplicates are moved into
	// Default: "duplicates"
	Target string `yaml:"target" toml:"target"`

	// DeleteSource removes each duplicate from its original location after
	// it has been copied into Target
	DeleteSource bool `yaml:"delete_source" toml:"delete_source"`

	// DryRun reports what would be relocated without touching any file
	DryRun bool `yaml:"dry_run" toml:"dry_run"`

	Scan      ScanConfig      `yaml:"scan" toml:"scan"`
	Imaging   ImagingConfig   `yaml:"imaging" toml:"imaging"`
	Inference InferenceConfig `yaml:"inference" toml:"inference"`
	Journal   JournalConfig   `yaml:"journal" toml:"journal"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
}

// ScanConfig controls which files are considered
type ScanConfig struct {
	Extensions    []string `yaml:"extensions" toml:"extensions"`
	Exclude       []string `yaml:"exclude" toml:"exclude"`
	Recursive     bool     `yaml:"recursive" toml:"recursive"`
	IncludeHidden bool     `yaml:"include_hidden" toml:"include_hidden"`
}

// ImagingConfig describes the tensor the model expects
type ImagingConfig struct {
	InputSize int        `yaml:"input_size" toml:"input_size"`
	Mean      [3]float32 `yaml:"mean" toml:"mean"`
	Std       [3]float32 `yaml:"std" toml:"std"`
}

// InferenceConfig describes the model server
type InferenceConfig struct {
	Endpoint     string            `yaml:"endpoint" toml:"endpoint"`
	Model        string            `yaml:"model" toml:"model"`
	ResponsePath string            `yaml:"response_path" toml:"response_path"`
	Headers      map[string]string `yaml:"headers" toml:"headers"`
	BinaryTensor bool              `yaml:"binary_tensor" toml:"binary_tensor"`

	// Dimension is the expected embedding length (0 = accept any, but all
	// embeddings of a run must still agree)
	Dimension int `yaml:"dimension" toml:"dimension"`

	// Timeout is the HTTP client timeout, e.g. "30s"
	Timeout string `yaml:"timeout" toml:"timeout"`

	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`

	Retry RetryConfig `yaml:"retry" toml:"retry"`
}

// RetryConfig holds retry and circuit breaker settings for inference calls
type RetryConfig struct {
	MaxRetries       int    `yaml:"max_retries" toml:"max_retries"`
	InitialBackoff   string `yaml:"initial_backoff" toml:"initial_backoff"`
	MaxBackoff       string `yaml:"max_backoff" toml:"max_backoff"`
	AttemptTimeout   string `yaml:"attempt_timeout" toml:"attempt_timeout"`
	CircuitBreaker   bool   `yaml:"circuit_breaker" toml:"circuit_breaker"`
	FailureThreshold int    `yaml:"failure_threshold" toml:"failure_threshold"`
	SuccessThreshold int    `yaml:"success_threshold" toml:"success_threshold"`
	OpenTimeout      string `yaml:"open_timeout" toml:"open_timeout"`
}

// JournalConfig controls the SQLite run journal
type JournalConfig struct {
	// Path of the database file; empty uses the per-user default
	Path      string                 `yaml:"path" toml:"path"`
	Disabled  bool                   `yaml:"disabled" toml:"disabled"`
	Retention JournalRetentionConfig `yaml:"retention" toml:"retention"`
}

// EventsConfig controls structured event output
type EventsConfig struct {
	// Path of a JSONL file every event is appended to; empty disables it
	Path string `yaml:"path" toml:"path"`

	// MinSeverity is the lowest severity printed to the console
	// Options: info, warning, error, critical
	MinSeverity string `yaml:"min_severity" toml:"min_severity"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cpus := runtime.NumCPU()
	return &Config{
		Threshold:         0.95,
		Workers:           cpus,
		InferenceSlots:    cpus,
		RelocationWorkers: 4,
		Target:            "duplicates",
		Scan: ScanConfig{
			Extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff"},
			Recursive:  true,
		},
		Imaging: ImagingConfig{
			InputSize: 224,
			Mean:      [3]float32{0.485, 0.456, 0.406},
			Std:       [3]float32{0.229, 0.224, 0.225},
		},
		Inference: InferenceConfig{
			Endpoint:     "http://127.0.0.1:8080/embed",
			ResponsePath: "embedding",
			Timeout:      "30s",
			Burst:        1,
			Retry: RetryConfig{
				MaxRetries:       3,
				InitialBackoff:   "500ms",
				MaxBackoff:       "10s",
				AttemptTimeout:   "60s",
				CircuitBreaker:   true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				OpenTimeout:      "30s",
			},
		},
		Journal: JournalConfig{
			Retention: DefaultJournalRetentionConfig(),
		},
		Events: EventsConfig{
			MinSeverity: "info",
		},
	}
}

// LoadConfig reads a config file on top of the defaults. Files ending in
// .toml are parsed as TOML, anything else as YAML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return cfg, nil
}

// DotEnvFile is read into the environment before the config is loaded, if it
// exists. Variables already set in the environment win.
const DotEnvFile = ".env"

// Load builds the effective configuration: defaults, then the config file at
// path (or DUPSWEEP_CONFIG, or ./dupsweep.yaml if it exists), then the
// environment including ./.env. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", DotEnvFile, err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("DUPSWEEP_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultConfigFile
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = DefaultConfig()
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0.0, 1.0] (got %.4f)", c.Threshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}
	if c.InferenceSlots < 1 {
		return fmt.Errorf("inference_slots must be at least 1 (got %d)", c.InferenceSlots)
	}
	if c.RelocationWorkers < 1 {
		return fmt.Errorf("relocation_workers must be at least 1 (got %d)", c.RelocationWorkers)
	}
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if len(c.Scan.Extensions) == 0 {
		return fmt.Errorf("scan.extensions must not be empty")
	}
	if c.Inference.Dimension < 0 {
		return fmt.Errorf("inference.dimension cannot be negative (got %d)", c.Inference.Dimension)
	}
	if _, err := c.InferenceConfig(); err != nil {
		return err
	}
	if _, err := c.RetryConfig(); err != nil {
		return err
	}
	if err := c.ImagingConfig().Validate(); err != nil {
		return fmt.Errorf("imaging: %w", err)
	}
	if err := c.Journal.Retention.Validate(); err != nil {
		return fmt.Errorf("journal.retention: %w", err)
	}
	if _, err := events.ParseSeverity(c.Events.MinSeverity); err != nil {
		return fmt.Errorf("events.min_severity: %w", err)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Threshold: %.4f, Workers: %d, InferenceSlots: %d, RelocationWorkers: %d, "+
			"Target: %s, DeleteSource: %t, DryRun: %t, Endpoint: %s, InputSize: %d}",
		c.Threshold, c.Workers, c.InferenceSlots, c.RelocationWorkers,
		c.Target, c.DeleteSource, c.DryRun, c.Inference.Endpoint, c.Imaging.InputSize,
	)
}

// parseDuration parses durations with support for days (d) and weeks (w)
// on top of time.ParseDuration.
func parseDuration(s string) (time.Duration, error) {
	// Handle days (e.g., "7d")
	var days int
	if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
		return time.Duration(days) * 24 * time.Hour, nil
	}

	// Handle weeks (e.g., "2w")
	var weeks int
	if _, err := fmt.Sscanf(s, "%dw", &weeks); err == nil {
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	return time.ParseDuration(s)
}

// parseField parses a named duration field, treating "" as zero.
func parseField(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := parseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration cannot be negative (got %s)", name, value)
	}
	return d, nil
}
