package events

import (
	"fmt"
	"strings"
	"time"
)

// EventType represents the type of event that occurred during a run.
type EventType string

const (
	// EventTypeRunStarted indicates a run began after scanning its inputs
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates a run finished, successfully or not
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunAborted indicates a run stopped on an invariant violation or cancellation
	EventTypeRunAborted EventType = "run_aborted"

	// Embedding events
	// EventTypeEmbeddingCompleted indicates one file was embedded and inserted
	EventTypeEmbeddingCompleted EventType = "embedding_completed"
	// EventTypeEmbeddingFailed indicates one file was dropped from the embedding table
	EventTypeEmbeddingFailed EventType = "embedding_failed"

	// Resolution events
	// EventTypeDuplicateClaimed indicates a file was claimed as a duplicate
	EventTypeDuplicateClaimed EventType = "duplicate_claimed"

	// Relocation events
	// EventTypeRelocationCompleted indicates a duplicate was moved to the target
	EventTypeRelocationCompleted EventType = "relocation_completed"
	// EventTypeRelocationFailed indicates a duplicate could not be moved
	EventTypeRelocationFailed EventType = "relocation_failed"

	// EventTypeCircuitBreakerStateChange indicates the inference circuit breaker changed state
	EventTypeCircuitBreakerStateChange EventType = "circuit_breaker_state_change"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
	// SeverityCritical indicates critical events requiring immediate attention
	SeverityCritical EventSeverity = "critical"
)

// Rank orders severities from info (0) to critical (3). Unknown severities rank as info.
func (s EventSeverity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// ParseSeverity converts a config string to a severity. Empty means info.
func ParseSeverity(s string) (EventSeverity, error) {
	switch sev := EventSeverity(strings.ToLower(strings.TrimSpace(s))); sev {
	case "":
		return SeverityInfo, nil
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q (want info, warning, error or critical)", s)
	}
}

// Event represents something that happened during one run.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`
	// RunID identifies the run that produced the event
	RunID string `json:"run_id"`
	// Subject is the file the event is about, if any
	Subject string `json:"subject,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
}

// RunStartedData contains structured data for run start events.
type RunStartedData struct {
	Roots          []string `json:"roots"`
	Target         string   `json:"target"`
	Files          int      `json:"files"`
	Threshold      float64  `json:"threshold"`
	Workers        int      `json:"workers"`
	InferenceSlots int      `json:"inference_slots"`
	DryRun         bool     `json:"dry_run"`
	DeleteSource   bool     `json:"delete_source"`
}

// RunCompletedData contains structured data for run completion events.
type RunCompletedData struct {
	Files              int   `json:"files"`
	Embedded           int   `json:"embedded"`
	Failed             int   `json:"failed"`
	Duplicates         int   `json:"duplicates"`
	Relocated          int   `json:"relocated"`
	RelocationFailures int   `json:"relocation_failures"`
	Comparisons        int64 `json:"comparisons"`
	RaceLosses         int64 `json:"race_losses"`
	DurationMs         int64 `json:"duration_ms"`
}

// EmbeddingData contains structured data for embedding events.
type EmbeddingData struct {
	Path      string `json:"path"`
	Dimension int    `json:"dimension,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Error     string `json:"error,omitempty"`
}

// DuplicateClaimedData contains structured data for duplicate claim events.
type DuplicateClaimedData struct {
	Duplicate  string  `json:"duplicate"`
	Original   string  `json:"original"`
	Similarity float64 `json:"similarity"`
}

// RelocationData contains structured data for relocation events.
type RelocationData struct {
	Duplicate     string `json:"duplicate"`
	Original      string `json:"original"`
	Destination   string `json:"destination,omitempty"`
	DeletedSource bool   `json:"deleted_source"`
	DryRun        bool   `json:"dry_run"`
	Error         string `json:"error,omitempty"`
}

// CircuitBreakerStateChangeData contains structured data for circuit breaker transitions.
type CircuitBreakerStateChangeData struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Failures int    `json:"failures"`
}
