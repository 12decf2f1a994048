// Package types holds the records persisted in the run journal.
package types

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a sweep run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunAborted   RunStatus = "aborted"
)

// IsValid checks if the status value is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunRunning, RunCompleted, RunAborted:
		return true
	}
	return false
}

// Run is one invocation of a sweep
type Run struct {
	ID           string     `json:"id"`
	Status       RunStatus  `json:"status"`
	Roots        []string   `json:"roots"`
	Target       string     `json:"target"`
	Threshold    float64    `json:"threshold"`
	DryRun       bool       `json:"dry_run"`
	DeleteSource bool       `json:"delete_source"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	// Counters, filled in when the run finishes
	Files              int   `json:"files"`
	Embedded           int   `json:"embedded"`
	Failed             int   `json:"failed"`
	Duplicates         int   `json:"duplicates"`
	Relocated          int   `json:"relocated"`
	RelocationFailures int   `json:"relocation_failures"`
	Comparisons        int64 `json:"comparisons"`

	Error string `json:"error,omitempty"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", r.Status)
	}
	if len(r.Roots) == 0 {
		return fmt.Errorf("at least one root is required")
	}
	if r.Target == "" {
		return fmt.Errorf("target is required")
	}
	if r.Threshold <= 0 || r.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0.0, 1.0] (got %.4f)", r.Threshold)
	}
	if r.StartedAt.IsZero() {
		return fmt.Errorf("started_at is required")
	}
	if r.FinishedAt != nil && r.FinishedAt.Before(r.StartedAt) {
		return fmt.Errorf("finished_at cannot be before started_at")
	}
	return nil
}

// Duration returns how long the run took, or how long it has been running.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt != nil {
		return r.FinishedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// Relocation records one duplicate handed off during a run
type Relocation struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Duplicate     string    `json:"duplicate"`
	Original      string    `json:"original"`
	Similarity    float64   `json:"similarity"`
	Destination   string    `json:"destination,omitempty"`
	DeletedSource bool      `json:"deleted_source"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Succeeded reports whether the duplicate reached the target.
func (r *Relocation) Succeeded() bool {
	return r.Error == "" && r.Destination != ""
}

// RunFilter narrows ListRuns
type RunFilter struct {
	Status *RunStatus
	Limit  int // 0 = no limit
}
