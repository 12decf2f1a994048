package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overrides cfg from environment variables.
//
// Environment variables:
//   - DUPSWEEP_THRESHOLD: Similarity threshold (default: 0.95)
//   - DUPSWEEP_WORKERS: Decode and resolver goroutines (default: NumCPU)
//   - DUPSWEEP_INFERENCE_SLOTS: Concurrent model calls (default: NumCPU)
//   - DUPSWEEP_RELOCATION_WORKERS: Concurrent file moves (default: 4)
//   - DUPSWEEP_TARGET: Directory duplicates are moved into
//   - DUPSWEEP_DELETE_SOURCE: Remove duplicates from their original location
//   - DUPSWEEP_DRY_RUN: Report only, touch nothing
//   - DUPSWEEP_EXTENSIONS: Comma-separated file extensions
//   - DUPSWEEP_INPUT_SIZE: Model input width and height (default: 224)
//   - DUPSWEEP_INFERENCE_ENDPOINT: Model server URL
//   - DUPSWEEP_INFERENCE_MODEL: Model name sent with each request
//   - DUPSWEEP_INFERENCE_TOKEN: Bearer token for the model server
//   - DUPSWEEP_INFERENCE_TIMEOUT: HTTP timeout, e.g. "30s"
//   - DUPSWEEP_INFERENCE_RPS: Requests per second, 0 for unlimited
//   - DUPSWEEP_INFERENCE_MAX_RETRIES: Retries per inference call (default: 3)
//   - DUPSWEEP_JOURNAL: Journal database path
//   - DUPSWEEP_JOURNAL_DISABLED: Skip the journal entirely
//   - DUPSWEEP_JOURNAL_MAX_AGE: Prune runs older than this, e.g. "30d"
//   - DUPSWEEP_JOURNAL_KEEP_RUNS: Maximum finished runs kept, 0 for unlimited
//   - DUPSWEEP_EVENTS_FILE: JSONL file every event is appended to
//   - DUPSWEEP_LOG_LEVEL: Minimum console severity (default: info)
//
// Returns an error if any environment variable has an invalid value.
func ApplyEnv(cfg *Config) error {
	parsers := []error{
		parseEnvFloat("DUPSWEEP_THRESHOLD", &cfg.Threshold),
		parseEnvInt("DUPSWEEP_WORKERS", &cfg.Workers),
		parseEnvInt("DUPSWEEP_INFERENCE_SLOTS", &cfg.InferenceSlots),
		parseEnvInt("DUPSWEEP_RELOCATION_WORKERS", &cfg.RelocationWorkers),
		parseEnvString("DUPSWEEP_TARGET", &cfg.Target),
		parseEnvBool("DUPSWEEP_DELETE_SOURCE", &cfg.DeleteSource),
		parseEnvBool("DUPSWEEP_DRY_RUN", &cfg.DryRun),
		parseEnvList("DUPSWEEP_EXTENSIONS", &cfg.Scan.Extensions),
		parseEnvInt("DUPSWEEP_INPUT_SIZE", &cfg.Imaging.InputSize),
		parseEnvString("DUPSWEEP_INFERENCE_ENDPOINT", &cfg.Inference.Endpoint),
		parseEnvString("DUPSWEEP_INFERENCE_MODEL", &cfg.Inference.Model),
		parseEnvString("DUPSWEEP_INFERENCE_TIMEOUT", &cfg.Inference.Timeout),
		parseEnvFloat("DUPSWEEP_INFERENCE_RPS", &cfg.Inference.RequestsPerSecond),
		parseEnvInt("DUPSWEEP_INFERENCE_MAX_RETRIES", &cfg.Inference.Retry.MaxRetries),
		parseEnvString("DUPSWEEP_JOURNAL", &cfg.Journal.Path),
		parseEnvBool("DUPSWEEP_JOURNAL_DISABLED", &cfg.Journal.Disabled),
		parseEnvString("DUPSWEEP_JOURNAL_MAX_AGE", &cfg.Journal.Retention.MaxAge),
		parseEnvInt("DUPSWEEP_JOURNAL_KEEP_RUNS", &cfg.Journal.Retention.KeepRuns),
		parseEnvString("DUPSWEEP_EVENTS_FILE", &cfg.Events.Path),
		parseEnvString("DUPSWEEP_LOG_LEVEL", &cfg.Events.MinSeverity),
	}
	for _, err := range parsers {
		if err != nil {
			return err
		}
	}

	if token := os.Getenv("DUPSWEEP_INFERENCE_TOKEN"); token != "" {
		headers := make(map[string]string, len(cfg.Inference.Headers)+1)
		for k, v := range cfg.Inference.Headers {
			headers[k] = v
		}
		headers["Authorization"] = "Bearer " + token
		cfg.Inference.Headers = headers
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvList parses a comma-separated list from an environment variable
func parseEnvList(key string, dest *[]string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fmt.Errorf("invalid value for %s: empty list", key)
	}
	*dest = items
	return nil
}
