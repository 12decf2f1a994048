package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/steveyegge/dupsweep/internal/events"
)

// consoleEmitter prints events in a two-line format: a headline and a line of
// key metadata. It is safe for concurrent use.
type consoleEmitter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool // print per-file embedding events too
}

func newConsoleEmitter(w io.Writer, verbose bool) *consoleEmitter {
	return &consoleEmitter{w: w, verbose: verbose}
}

// Emit implements events.Emitter.
func (c *consoleEmitter) Emit(event *events.Event) {
	if c.shouldSkipEvent(event) {
		return
	}
	text := formatEvent(event)

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.w, text)
}

// shouldSkipEvent returns true for per-file events that flood the feed on
// large collections
func (c *consoleEmitter) shouldSkipEvent(event *events.Event) bool {
	return !c.verbose && event.Type == events.EventTypeEmbeddingCompleted
}

// formatEvent renders one event
func formatEvent(event *events.Event) string {
	glyph := getEventGlyph(event)
	severityColor := getSeverityColor(event.Severity)
	timestamp := event.Timestamp.Format("15:04:05")
	eventType := color.New(color.FgMagenta).Sprint(event.Type)

	// Line 1: glyph + [timestamp] + event_type: message
	message := truncateString(event.Message, 100-len(string(event.Type)))
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s: %s\n", glyph, timestamp, eventType, severityColor.Sprint(message))

	// Line 2: metadata fields, pipe-separated
	if metadata := extractEventMetadata(event); metadata != "" {
		fmt.Fprintf(&b, "  %s\n", color.New(color.FgHiBlack).Sprint(metadata))
	}
	return b.String()
}

// getEventGlyph returns the status glyph for each event type
func getEventGlyph(event *events.Event) string {
	switch event.Type {
	case events.EventTypeRunStarted:
		return color.CyanString("▶")
	case events.EventTypeRunCompleted, events.EventTypeRelocationCompleted, events.EventTypeEmbeddingCompleted:
		return color.GreenString("✓")
	case events.EventTypeDuplicateClaimed:
		return color.CyanString("≈")
	case events.EventTypeCircuitBreakerStateChange:
		return color.YellowString("⚡")
	}

	// Fallback to severity-based glyphs
	switch event.Severity {
	case events.SeverityWarning:
		return color.YellowString("⚠")
	case events.SeverityError, events.SeverityCritical:
		return color.RedString("✗")
	default:
		return "•"
	}
}

// getSeverityColor returns the appropriate color for a severity level
func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata extracts a few key metadata fields for each event type
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeRunStarted:
		// run_started: files | threshold | workers | mode
		files := fmt.Sprintf("%d files", getIntField(event.Data, "files", 0))
		threshold := fmt.Sprintf("threshold %.2f", getFloatField(event.Data, "threshold", 0))
		workers := fmt.Sprintf("%d workers", getIntField(event.Data, "workers", 0))
		mode := "copy"
		if getBoolField(event.Data, "delete_source", false) {
			mode = "move"
		}
		if getBoolField(event.Data, "dry_run", false) {
			mode = "dry run"
		}
		fields = []string{files, threshold, workers, mode}

	case events.EventTypeEmbeddingFailed:
		// embedding_failed: stage | file
		stage := getStringField(event.Data, "stage", "unknown")
		fields = []string{stage, filepath.Base(getStringField(event.Data, "path", ""))}

	case events.EventTypeDuplicateClaimed:
		// duplicate_claimed: similarity | original
		similarity := fmt.Sprintf("%.4f", getFloatField(event.Data, "similarity", 0))
		original := "of " + truncateString(getStringField(event.Data, "original", ""), 50)
		fields = []string{similarity, original}

	case events.EventTypeRelocationFailed:
		// relocation_failed: error
		fields = []string{truncateString(getStringField(event.Data, "error", ""), 70)}

	case events.EventTypeRunCompleted, events.EventTypeRunAborted:
		// run_completed: embedded | duplicates | relocated | failures | duration
		embedded := fmt.Sprintf("%d/%d embedded", getIntField(event.Data, "embedded", 0), getIntField(event.Data, "files", 0))
		duplicates := fmt.Sprintf("%d dupes", getIntField(event.Data, "duplicates", 0))
		relocated := fmt.Sprintf("%d moved", getIntField(event.Data, "relocated", 0))
		failures := ""
		if n := getIntField(event.Data, "relocation_failures", 0); n > 0 {
			failures = fmt.Sprintf("%d failed", n)
		}
		duration := formatDurationMs(getIntField(event.Data, "duration_ms", 0))
		fields = []string{embedded, duplicates, relocated, failures, duration}

	case events.EventTypeCircuitBreakerStateChange:
		// circuit_breaker: from -> to | failures
		transition := getStringField(event.Data, "from", "?") + " -> " + getStringField(event.Data, "to", "?")
		failures := fmt.Sprintf("%d failures", getIntField(event.Data, "failures", 0))
		fields = []string{transition, failures}

	default:
		if err, ok := event.Data["error"].(string); ok {
			fields = append(fields, truncateString(err, 70))
		}
	}

	return truncateString(joinFields(fields), 90)
}

// Helper functions to safely extract typed fields from event data
func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	if val, ok := data[key].(int); ok {
		return val
	}
	if val, ok := data[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

func getFloatField(data map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := data[key].(float64); ok {
		return val
	}
	if val, ok := data[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

func getBoolField(data map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := data[key].(bool); ok {
		return val
	}
	return defaultValue
}

// formatDurationMs formats milliseconds into a human-readable duration
func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// joinFields joins non-empty metadata fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// truncateString shortens s to at most maxLen runes, ending in "..."
func truncateString(s string, maxLen int) string {
	if maxLen <= 3 {
		maxLen = 3
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
