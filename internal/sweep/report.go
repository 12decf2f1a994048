package sweep

import (
	"time"

	"github.com/steveyegge/dupsweep/internal/deduplication"
	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/relocation"
)

// Report summarizes one run. It is returned even when the run aborts, with
// everything that happened up to that point.
type Report struct {
	RunID     string    `json:"run_id"`
	Roots     []string  `json:"roots"`
	Target    string    `json:"target"`
	Threshold float64   `json:"threshold"`
	DryRun    bool      `json:"dry_run"`
	StartedAt time.Time `json:"started_at"`

	Files        int      `json:"files"`
	ScanWarnings []string `json:"scan_warnings,omitempty"`

	Embedding embedding.Stats `json:"embedding"`
	Failures  []FileFailure   `json:"failures,omitempty"`

	Resolution deduplication.Stats      `json:"resolution"`
	Decisions  []deduplication.Decision `json:"decisions"`

	Relocation relocation.Summary `json:"relocation"`
	Outcomes   []Outcome          `json:"outcomes"`

	// Warnings are problems that did not stop the run, such as journal writes
	// that failed.
	Warnings []string `json:"warnings,omitempty"`

	Aborted  bool          `json:"aborted"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// FileFailure is a file that could not be embedded.
type FileFailure struct {
	Path  string `json:"path"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Outcome is the JSON form of a relocation outcome.
type Outcome struct {
	Duplicate     string  `json:"duplicate"`
	Original      string  `json:"original"`
	Similarity    float64 `json:"similarity"`
	Destination   string  `json:"destination,omitempty"`
	DeletedSource bool    `json:"deleted_source"`
	FailedStep    string  `json:"failed_step,omitempty"`
	Error         string  `json:"error,omitempty"`
}

func newOutcome(o relocation.Outcome) Outcome {
	out := Outcome{
		Duplicate:     string(o.Decision.Duplicate),
		Original:      string(o.Decision.Original),
		Similarity:    o.Decision.Similarity,
		Destination:   o.Destination,
		DeletedSource: o.DeletedSource,
		FailedStep:    string(o.FailedStep),
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return out
}
