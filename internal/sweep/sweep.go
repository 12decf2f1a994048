// Package sweep runs a complete duplicate sweep: scan, embed, resolve and
// relocate, with every side effect journaled and reported as events.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/steveyegge/dupsweep/internal/deduplication"
	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/events"
	"github.com/steveyegge/dupsweep/internal/relocation"
	"github.com/steveyegge/dupsweep/internal/scan"
	"github.com/steveyegge/dupsweep/internal/types"
	"github.com/steveyegge/dupsweep/internal/vecmath"
)

// Scanner lists candidate files.
type Scanner interface {
	Scan(ctx context.Context, roots ...string) (*scan.Result, error)
}

// Journal records runs and relocations. Embeddings and claims are never
// persisted.
type Journal interface {
	StartRun(ctx context.Context, run *types.Run) error
	RecordRelocation(ctx context.Context, rel *types.Relocation) error
	FinishRun(ctx context.Context, run *types.Run) error
}

// Settings are the per-run knobs.
type Settings struct {
	Target     string
	DryRun     bool
	Embedding  embedding.Config
	Resolver   deduplication.Config
	Relocation relocation.Config
}

// Sweeper wires the collaborators of a run together. Scanner, Decoder,
// Inferencer and Relocator are required; Journal and Emitter are optional.
type Sweeper struct {
	Scanner    Scanner
	Decoder    embedding.Decoder
	Inferencer embedding.Inferencer
	Relocator  relocation.Relocator
	Journal    Journal
	Emitter    events.Emitter
	Settings   Settings

	// NewRunID overrides run ID generation in tests.
	NewRunID func() string
}

func (s *Sweeper) validate() error {
	switch {
	case s.Scanner == nil:
		return fmt.Errorf("scanner is required")
	case s.Decoder == nil:
		return fmt.Errorf("decoder is required")
	case s.Inferencer == nil:
		return fmt.Errorf("inferencer is required")
	case s.Relocator == nil:
		return fmt.Errorf("relocator is required")
	case s.Settings.Target == "":
		return fmt.Errorf("target is required")
	}
	if err := s.Settings.Embedding.Validate(); err != nil {
		return fmt.Errorf("invalid embedding config: %w", err)
	}
	if err := s.Settings.Resolver.Validate(); err != nil {
		return fmt.Errorf("invalid resolver config: %w", err)
	}
	if err := s.Settings.Relocation.Validate(); err != nil {
		return fmt.Errorf("invalid relocation config: %w", err)
	}
	return nil
}

// run carries the mutable state of one Run call.
type run struct {
	s      *Sweeper
	id     string
	report *Report
	record *types.Run

	mu sync.Mutex // guards report slices written from worker goroutines
}

// Run sweeps roots. The returned report is non-nil whenever the run got past
// scanning. A non-nil error means the run was aborted: by cancellation, or by
// a dimension mismatch in the embedding table. Relocations made before an
// abort are kept and journaled.
func (s *Sweeper) Run(ctx context.Context, roots []string) (*Report, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	scanned, err := s.Scanner.Scan(ctx, roots...)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	r := s.newRun(roots, started, scanned)
	r.start(ctx)

	err = r.execute(ctx, scanned.Files)
	r.finish(ctx, err)
	return r.report, err
}

func (s *Sweeper) newRun(roots []string, started time.Time, scanned *scan.Result) *run {
	id := uuid.NewString()
	if s.NewRunID != nil {
		id = s.NewRunID()
	}

	report := &Report{
		RunID:     id,
		Roots:     roots,
		Target:    s.Settings.Target,
		Threshold: s.Settings.Resolver.Threshold,
		DryRun:    s.Settings.DryRun,
		StartedAt: started,
		Files:     len(scanned.Files),
		Decisions: []deduplication.Decision{},
		Outcomes:  []Outcome{},
	}
	for _, w := range scanned.Warnings {
		report.ScanWarnings = append(report.ScanWarnings, w.Error())
	}

	return &run{
		s:      s,
		id:     id,
		report: report,
		record: &types.Run{
			ID:           id,
			Roots:        roots,
			Target:       s.Settings.Target,
			Threshold:    s.Settings.Resolver.Threshold,
			DryRun:       s.Settings.DryRun,
			DeleteSource: s.Settings.Relocation.DeleteSource,
			StartedAt:    started,
		},
	}
}

func (r *run) start(ctx context.Context) {
	if r.s.Journal != nil {
		if err := r.s.Journal.StartRun(ctx, r.record); err != nil {
			r.warn("journal: failed to start run: %v", err)
		}
	}

	cfg := r.s.Settings
	r.emit(events.EventTypeRunStarted, "", events.SeverityInfo,
		fmt.Sprintf("Sweeping %d files into %s", r.report.Files, cfg.Target),
		events.RunStartedData{
			Roots:          r.report.Roots,
			Target:         cfg.Target,
			Files:          r.report.Files,
			Threshold:      cfg.Resolver.Threshold,
			Workers:        cfg.Resolver.Workers,
			InferenceSlots: cfg.Embedding.InferenceSlots,
			DryRun:         cfg.DryRun,
			DeleteSource:   cfg.Relocation.DeleteSource,
		})
}

func (r *run) execute(ctx context.Context, files []embedding.FileID) error {
	table, err := r.embed(ctx, files)
	if err != nil {
		return err
	}
	return r.resolveAndRelocate(ctx, table)
}

func (r *run) embed(ctx context.Context, files []embedding.FileID) (*embedding.Table, error) {
	pipeline, err := embedding.NewPipeline(r.s.Decoder, r.s.Inferencer, r.s.Settings.Embedding)
	if err != nil {
		return nil, err
	}
	pipeline.OnEmbedded = func(id embedding.FileID, dim int) {
		r.emit(events.EventTypeEmbeddingCompleted, string(id), events.SeverityInfo,
			"Embedded "+string(id),
			events.EmbeddingData{Path: string(id), Dimension: dim})
	}
	pipeline.OnFailure = func(f embedding.Failure) {
		if f.Stage == embedding.StageCanceled {
			return
		}
		r.emit(events.EventTypeEmbeddingFailed, string(f.ID), events.SeverityWarning,
			f.Message(),
			events.EmbeddingData{Path: string(f.ID), Stage: string(f.Stage), Error: f.Err.Error()})
	}

	res, err := pipeline.Run(ctx, files)
	r.report.Embedding = res.Stats
	for _, f := range res.Failures {
		r.report.Failures = append(r.report.Failures, FileFailure{
			Path:  string(f.ID),
			Stage: string(f.Stage),
			Error: f.Err.Error(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("embedding interrupted: %w", err)
	}
	return res.Table, nil
}

func (r *run) resolveAndRelocate(ctx context.Context, table *embedding.Table) error {
	resolver, err := deduplication.NewResolver(r.s.Settings.Resolver, deduplication.NewClaimSet())
	if err != nil {
		return err
	}
	handoff, err := relocation.NewHandoff(r.s.Relocator, r.s.Settings.Relocation)
	if err != nil {
		return err
	}
	handoff.OnOutcome = func(o relocation.Outcome) { r.recordOutcome(ctx, o) }

	claimed := make(chan deduplication.Decision)
	toRelocate := make(chan deduplication.Decision)

	// Decisions are forwarded as soon as they are claimed so relocation
	// overlaps with the remaining comparisons.
	go func() {
		defer close(toRelocate)
		for d := range claimed {
			r.mu.Lock()
			r.report.Decisions = append(r.report.Decisions, d)
			r.mu.Unlock()
			r.emit(events.EventTypeDuplicateClaimed, string(d.Duplicate), events.SeverityInfo,
				fmt.Sprintf("%s duplicates %s (%.4f)", d.Duplicate, d.Original, d.Similarity),
				events.DuplicateClaimedData{
					Duplicate:  string(d.Duplicate),
					Original:   string(d.Original),
					Similarity: d.Similarity,
				})
			toRelocate <- d
		}
	}()

	var outcomes []relocation.Outcome
	done := make(chan struct{})
	go func() {
		defer close(done)
		outcomes = handoff.Run(ctx, toRelocate)
	}()

	stats, err := resolver.ResolveStream(ctx, table, claimed)
	<-done

	r.report.Resolution = stats
	r.report.Relocation = relocation.Summarize(outcomes)

	if err != nil {
		var mismatch *vecmath.DimensionMismatchError
		if errors.As(err, &mismatch) {
			return fmt.Errorf("embedding table is inconsistent: %w", err)
		}
		return fmt.Errorf("resolution interrupted: %w", err)
	}
	return nil
}

func (r *run) recordOutcome(ctx context.Context, o relocation.Outcome) {
	out := newOutcome(o)
	r.mu.Lock()
	r.report.Outcomes = append(r.report.Outcomes, out)
	r.mu.Unlock()

	if o.FailedStep == relocation.StepCanceled {
		return
	}

	if r.s.Journal != nil {
		rel := &types.Relocation{
			RunID:         r.id,
			Duplicate:     out.Duplicate,
			Original:      out.Original,
			Similarity:    out.Similarity,
			Destination:   out.Destination,
			DeletedSource: out.DeletedSource,
			Error:         out.Error,
		}
		// A relocation that already happened must be journaled even if the
		// run is being canceled.
		if err := r.s.Journal.RecordRelocation(context.WithoutCancel(ctx), rel); err != nil {
			r.warn("journal: failed to record relocation of %s: %v", out.Duplicate, err)
		}
	}

	data := events.RelocationData{
		Duplicate:     out.Duplicate,
		Original:      out.Original,
		Destination:   out.Destination,
		DeletedSource: out.DeletedSource,
		DryRun:        r.s.Settings.DryRun,
		Error:         out.Error,
	}
	if o.Failed() {
		r.emit(events.EventTypeRelocationFailed, out.Duplicate, events.SeverityError,
			fmt.Sprintf("Failed to relocate %s (%s): %s", out.Duplicate, o.FailedStep, out.Error), data)
		return
	}
	verb := "Moved"
	if !out.DeletedSource {
		verb = "Copied"
	}
	if r.s.Settings.DryRun {
		verb = "Would move"
	}
	r.emit(events.EventTypeRelocationCompleted, out.Duplicate, events.SeverityInfo,
		fmt.Sprintf("%s %s to %s", verb, out.Duplicate, out.Destination), data)
}

func (r *run) finish(ctx context.Context, runErr error) {
	rep := r.report
	rep.Duration = time.Since(rep.StartedAt)

	rec := r.record
	rec.Status = types.RunCompleted
	rec.Files = rep.Files
	rec.Embedded = rep.Embedding.Embedded
	rec.Failed = rep.Embedding.Failed
	rec.Duplicates = len(rep.Decisions)
	rec.Relocated = rep.Relocation.Relocated
	rec.RelocationFailures = rep.Relocation.Failed
	rec.Comparisons = rep.Resolution.Comparisons
	if runErr != nil {
		rep.Aborted = true
		rep.Error = runErr.Error()
		rec.Status = types.RunAborted
		rec.Error = runErr.Error()
	}

	if r.s.Journal != nil {
		if err := r.s.Journal.FinishRun(context.WithoutCancel(ctx), rec); err != nil {
			r.warn("journal: failed to finish run: %v", err)
		}
	}

	data := events.RunCompletedData{
		Files:              rep.Files,
		Embedded:           rep.Embedding.Embedded,
		Failed:             rep.Embedding.Failed,
		Duplicates:         len(rep.Decisions),
		Relocated:          rep.Relocation.Relocated,
		RelocationFailures: rep.Relocation.Failed,
		Comparisons:        rep.Resolution.Comparisons,
		RaceLosses:         rep.Resolution.RaceLosses,
		DurationMs:         rep.Duration.Milliseconds(),
	}
	if runErr != nil {
		r.emit(events.EventTypeRunAborted, "", events.SeverityCritical,
			"Run aborted: "+runErr.Error(), data)
		return
	}
	r.emit(events.EventTypeRunCompleted, "", events.SeverityInfo,
		fmt.Sprintf("Found %d duplicates among %d files", len(rep.Decisions), rep.Files), data)
}

func (r *run) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.report.Warnings = append(r.report.Warnings, msg)
	r.mu.Unlock()
}

func (r *run) emit(t events.EventType, subject string, sev events.EventSeverity, msg string, data interface{}) {
	if r.s.Emitter == nil {
		return
	}
	e, err := events.New(t, r.id, subject, sev, msg, data)
	if err != nil {
		// Data structs are plain JSON values; fall back to the bare message
		e = events.NewSimpleEvent(t, r.id, subject, sev, msg)
	}
	r.s.Emitter.Emit(e)
}
