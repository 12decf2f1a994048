package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dupsweep.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig() is invalid: %v", err)
	}
	if cfg.Threshold != 0.95 {
		t.Errorf("Threshold = %v, want 0.95", cfg.Threshold)
	}
	if !cfg.Scan.Recursive {
		t.Error("Scan.Recursive should default to true")
	}
	if !strings.Contains(cfg.String(), "Threshold: 0.9500") {
		t.Errorf("String() = %s", cfg.String())
	}
}

func TestLoadConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
threshold: 0.9
target: /srv/dupes
scan:
  exclude: ["thumbs/", "*.tmp.jpg"]
inference:
  endpoint: https://models.internal/clip
  dimension: 512
  retry:
    max_retries: 5
    open_timeout: 2m
journal:
  retention:
    max_age: 4w
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Threshold != 0.9 || cfg.Target != "/srv/dupes" {
		t.Errorf("Top-level fields not loaded: %s", cfg)
	}
	if len(cfg.Scan.Exclude) != 2 {
		t.Errorf("Exclude = %v", cfg.Scan.Exclude)
	}
	// Untouched keys keep their defaults
	if !cfg.Scan.Recursive || len(cfg.Scan.Extensions) != 8 {
		t.Errorf("Scan defaults lost: %+v", cfg.Scan)
	}
	if cfg.Inference.ResponsePath != "embedding" {
		t.Errorf("ResponsePath = %q, want default", cfg.Inference.ResponsePath)
	}

	retry, err := cfg.RetryConfig()
	if err != nil {
		t.Fatalf("RetryConfig failed: %v", err)
	}
	if retry.MaxRetries != 5 || retry.OpenTimeout != 2*time.Minute || retry.InitialBackoff != 500*time.Millisecond {
		t.Errorf("Retry not converted: %+v", retry)
	}
	if got := cfg.Journal.Retention.MaxAgeDuration(); got != 28*24*time.Hour {
		t.Errorf("MaxAgeDuration() = %v, want 28d", got)
	}
	if got := cfg.EmbeddingConfig().Dimension; got != 512 {
		t.Errorf("EmbeddingConfig().Dimension = %d, want 512", got)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, "threshold: 0.9\nworkers: 3\n")
	t.Setenv("DUPSWEEP_THRESHOLD", "0.97")
	t.Setenv("DUPSWEEP_EXTENSIONS", ".jpg, .heic ,")
	t.Setenv("DUPSWEEP_INFERENCE_TOKEN", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Threshold != 0.97 {
		t.Errorf("Threshold = %v, env should win over file", cfg.Threshold)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, file should win over defaults", cfg.Workers)
	}
	if len(cfg.Scan.Extensions) != 2 || cfg.Scan.Extensions[1] != ".heic" {
		t.Errorf("Extensions = %v", cfg.Scan.Extensions)
	}
	if cfg.Inference.Headers["Authorization"] != "Bearer s3cret" {
		t.Errorf("Authorization header = %q", cfg.Inference.Headers["Authorization"])
	}
}

func TestLoadMissingFile(t *testing.T) {
	// An explicit path must exist
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected error for missing explicit config")
	}

	// The implicit ./dupsweep.yaml is optional
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DUPSWEEP_CONFIG", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load without config file failed: %v", err)
	}
	if cfg.Threshold != 0.95 {
		t.Errorf("Threshold = %v, want default", cfg.Threshold)
	}
}

func TestLoadConfigTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dupsweep.toml")
	body := `
threshold = 0.92
target = "/srv/dupes"

[inference]
endpoint = "http://models:9000/v1/embed"
timeout = "2m"

[journal.retention]
keep_runs = 50
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Threshold != 0.92 || cfg.Target != "/srv/dupes" {
		t.Errorf("Threshold/Target = %v/%s", cfg.Threshold, cfg.Target)
	}
	if cfg.Inference.Endpoint != "http://models:9000/v1/embed" {
		t.Errorf("Endpoint = %s", cfg.Inference.Endpoint)
	}
	if cfg.Journal.Retention.KeepRuns != 50 {
		t.Errorf("KeepRuns = %d, want 50", cfg.Journal.Retention.KeepRuns)
	}
	// Untouched sections keep their defaults
	if cfg.Journal.Retention.MaxAge != "90d" || cfg.Imaging.InputSize != 224 {
		t.Errorf("defaults lost: %s", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("threshold = [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(bad); err == nil || !strings.Contains(err.Error(), "TOML") {
		t.Errorf("Expected TOML parse error, got %v", err)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DUPSWEEP_CONFIG", "")
	t.Setenv("DUPSWEEP_THRESHOLD", "0.91")

	// .env values are set with os.Setenv; t.Setenv restores them afterwards
	t.Setenv("DUPSWEEP_WORKERS", "")
	if err := os.Unsetenv("DUPSWEEP_WORKERS"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(DotEnvFile, []byte("DUPSWEEP_WORKERS=5\nDUPSWEEP_THRESHOLD=0.5\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("Workers = %d, want 5 from .env", cfg.Workers)
	}
	if cfg.Threshold != 0.91 {
		t.Errorf("Threshold = %v, the environment should win over .env", cfg.Threshold)
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"DUPSWEEP_WORKERS", "many"},
		{"DUPSWEEP_THRESHOLD", "high"},
		{"DUPSWEEP_DRY_RUN", "maybe"},
		{"DUPSWEEP_EXTENSIONS", " , "},
		{"DUPSWEEP_THRESHOLD", "1.5"},
		{"DUPSWEEP_LOG_LEVEL", "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(writeConfig(t, "{}")); err == nil {
				t.Errorf("Expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"threshold zero", func(c *Config) { c.Threshold = 0 }, "threshold"},
		{"threshold one is allowed", func(c *Config) { c.Threshold = 1 }, ""},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"no slots", func(c *Config) { c.InferenceSlots = 0 }, "inference_slots"},
		{"no relocation workers", func(c *Config) { c.RelocationWorkers = 0 }, "relocation_workers"},
		{"blank target", func(c *Config) { c.Target = "  " }, "target"},
		{"no extensions", func(c *Config) { c.Scan.Extensions = nil }, "extensions"},
		{"bad timeout", func(c *Config) { c.Inference.Timeout = "soon" }, "inference.timeout"},
		{"bad endpoint", func(c *Config) { c.Inference.Endpoint = "ftp://x" }, "inference"},
		{"bad backoff order", func(c *Config) { c.Inference.Retry.MaxBackoff = "1ms" }, "max_backoff"},
		{"input size", func(c *Config) { c.Imaging.InputSize = -1 }, "imaging"},
		{"keep runs", func(c *Config) { c.Journal.Retention.KeepRuns = 3 }, "keep_runs"},
		{"severity", func(c *Config) { c.Events.MinSeverity = "loud" }, "min_severity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"7d", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"1500ms", 1500 * time.Millisecond, false},
		{"later", 0, true},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestScanOptionsSkipsTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = "/srv/dupes"
	opts := cfg.ScanOptions()
	if len(opts.SkipDirs) != 1 || opts.SkipDirs[0] != "/srv/dupes" {
		t.Errorf("SkipDirs = %v", opts.SkipDirs)
	}
}

func TestJournalRetentionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*JournalRetentionConfig)
		wantErr bool
	}{
		{"defaults", func(c *JournalRetentionConfig) {}, false},
		{"age disabled", func(c *JournalRetentionConfig) { c.MaxAge = "" }, false},
		{"age too short", func(c *JournalRetentionConfig) { c.MaxAge = "5m" }, true},
		{"bad age", func(c *JournalRetentionConfig) { c.MaxAge = "forever" }, true},
		{"unlimited runs", func(c *JournalRetentionConfig) { c.KeepRuns = 0 }, false},
		{"negative runs", func(c *JournalRetentionConfig) { c.KeepRuns = -1 }, true},
		{"too many runs", func(c *JournalRetentionConfig) { c.KeepRuns = 200000 }, true},
		{"zero batch", func(c *JournalRetentionConfig) { c.BatchSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultJournalRetentionConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v (%s)", err, tt.wantErr, cfg)
			}
		})
	}
}
