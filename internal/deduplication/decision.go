package deduplication

import (
	"fmt"
	"time"

	"github.com/steveyegge/dupsweep/internal/embedding"
)

// Decision designates Duplicate as a near-copy of Original.
// Once emitted a decision is never retracted.
type Decision struct {
	// Duplicate is the file that will be relocated
	Duplicate embedding.FileID `json:"duplicate"`

	// Original is the file Duplicate was matched against.
	// Not deterministic across runs when more than one worker is used.
	Original embedding.FileID `json:"original"`

	// Similarity is the cosine similarity of the pair, in (threshold, 1]
	Similarity float64 `json:"similarity"`
}

// Validate checks the decision against the threshold it was produced with.
func (d Decision) Validate(threshold float64) error {
	if d.Duplicate == "" || d.Original == "" {
		return fmt.Errorf("duplicate and original must both be set")
	}
	if d.Duplicate == d.Original {
		return fmt.Errorf("%s cannot be a duplicate of itself", d.Duplicate)
	}
	if d.Similarity <= threshold {
		return fmt.Errorf("similarity %.6f does not exceed threshold %.6f", d.Similarity, threshold)
	}
	if d.Similarity > 1.0 {
		return fmt.Errorf("similarity must be at most 1.0 (got %.6f)", d.Similarity)
	}
	return nil
}

// Result represents the result of resolving one embedding table
type Result struct {
	// Decisions in emission order. Order is not meaningful across workers.
	Decisions []Decision `json:"decisions"`

	// Statistics about the resolution
	Stats Stats `json:"stats"`
}

// Stats provides metrics about one resolution
type Stats struct {
	// Entries is the number of table entries considered
	Entries int `json:"entries"`

	// Comparisons is the number of similarity scores computed
	Comparisons int64 `json:"comparisons"`

	// Duplicates is the number of decisions emitted
	Duplicates int `json:"duplicates"`

	// RaceLosses counts qualifying pairs dropped because j was already claimed
	RaceLosses int64 `json:"race_losses"`

	// SkippedOriginals counts outer indices skipped because they were already claimed at entry
	SkippedOriginals int64 `json:"skipped_originals"`

	// Undelivered counts claimed decisions that could not be sent because the run was canceled
	Undelivered int64 `json:"undelivered,omitempty"`

	// Workers is the number of goroutines used
	Workers int `json:"workers"`

	// ProcessingTimeMs is the time taken in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// MaxComparisons returns K·(K-1)/2 for the number of entries.
func (s Stats) MaxComparisons() int64 {
	k := int64(s.Entries)
	return k * (k - 1) / 2
}

// Validate checks the invariants every resolution must satisfy: each file is
// a duplicate at most once, and every decision exceeds the threshold.
func (r *Result) Validate(threshold float64) error {
	seen := make(map[embedding.FileID]struct{}, len(r.Decisions))
	for i, d := range r.Decisions {
		if err := d.Validate(threshold); err != nil {
			return fmt.Errorf("decision %d: %w", i, err)
		}
		if _, dup := seen[d.Duplicate]; dup {
			return fmt.Errorf("decision %d: %s claimed as duplicate more than once", i, d.Duplicate)
		}
		seen[d.Duplicate] = struct{}{}
	}

	if r.Stats.Duplicates != len(r.Decisions) {
		return fmt.Errorf("stats.duplicates (%d) does not match decisions length (%d)",
			r.Stats.Duplicates, len(r.Decisions))
	}
	if r.Stats.Comparisons > r.Stats.MaxComparisons() {
		return fmt.Errorf("stats.comparisons (%d) exceeds K(K-1)/2 (%d)",
			r.Stats.Comparisons, r.Stats.MaxComparisons())
	}
	return nil
}

func (s *Stats) finish(start time.Time) {
	s.ProcessingTimeMs = time.Since(start).Milliseconds()
}
