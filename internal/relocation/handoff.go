package relocation

import (
	"context"
	"fmt"
	"sync"

	"github.com/steveyegge/dupsweep/internal/deduplication"
)

// Config controls a handoff run.
type Config struct {
	// DeleteSource removes the duplicate from its original location after
	// it has been placed in the target.
	DeleteSource bool

	// Workers is the number of decisions relocated concurrently (default: 4)
	Workers int
}

// DefaultConfig returns a copy-only config.
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	return nil
}

// Step names the part of a relocation that failed.
type Step string

const (
	StepNone     Step = ""
	StepCopy     Step = "copy"
	StepRemove   Step = "remove"
	StepCanceled Step = "canceled"
)

// Outcome is the result of handing off one decision.
type Outcome struct {
	Decision      deduplication.Decision
	Destination   string // Empty if the copy failed
	DeletedSource bool
	FailedStep    Step
	Err           error
}

// Failed reports whether any step of the handoff failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Handoff relocates every decision it receives.
type Handoff struct {
	relocator Relocator
	cfg       Config

	// OnOutcome, if set, is called for every decision as soon as it is
	// handled. It may be called from several goroutines at once.
	OnOutcome func(Outcome)
}

// NewHandoff creates a handoff backed by relocator.
func NewHandoff(relocator Relocator, cfg Config) (*Handoff, error) {
	if relocator == nil {
		return nil, fmt.Errorf("relocator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relocation config: %w", err)
	}
	return &Handoff{relocator: relocator, cfg: cfg}, nil
}

// Run consumes in until it is closed and returns one outcome per decision,
// in completion order. Run always drains in, so a producer blocked on send
// is never stranded; after ctx is canceled the remaining decisions are
// reported with StepCanceled and nothing more is touched on disk.
func (h *Handoff) Run(ctx context.Context, in <-chan deduplication.Decision) []Outcome {
	var (
		mu       sync.Mutex
		outcomes []Outcome
		wg       sync.WaitGroup
	)

	for w := 0; w < h.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range in {
				o := h.handle(ctx, d)
				mu.Lock()
				outcomes = append(outcomes, o)
				mu.Unlock()
				if h.OnOutcome != nil {
					h.OnOutcome(o)
				}
			}
		}()
	}
	wg.Wait()

	return outcomes
}

func (h *Handoff) handle(ctx context.Context, d deduplication.Decision) Outcome {
	o := Outcome{Decision: d}
	if err := ctx.Err(); err != nil {
		o.FailedStep, o.Err = StepCanceled, err
		return o
	}

	dest, err := h.relocator.Relocate(ctx, d.Duplicate)
	if err != nil {
		o.FailedStep, o.Err = StepCopy, err
		return o
	}
	o.Destination = dest

	if !h.cfg.DeleteSource {
		return o
	}
	if err := h.relocator.RemoveSource(ctx, d.Duplicate); err != nil {
		o.FailedStep, o.Err = StepRemove, err
		return o
	}
	o.DeletedSource = true
	return o
}

// Summary counts outcomes.
type Summary struct {
	Relocated      int `json:"relocated"`
	DeletedSources int `json:"deleted_sources"`
	Failed         int `json:"failed"`
	Canceled       int `json:"canceled"`
}

// Summarize counts outcomes by result. A copy that succeeded but whose
// source could not be removed counts as both relocated and failed.
func Summarize(outcomes []Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Destination != "" {
			s.Relocated++
		}
		if o.DeletedSource {
			s.DeletedSources++
		}
		switch o.FailedStep {
		case StepNone:
		case StepCanceled:
			s.Canceled++
		default:
			s.Failed++
		}
	}
	return s
}
