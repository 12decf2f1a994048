package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/dupsweep/internal/vecmath"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pipeline turns file identifiers into an embedding table.
//
// Each identifier is decoded, run through the model, normalized and inserted
// into the table. A failure on one identifier is reported as a Failure and
// never affects the others.
type Pipeline struct {
	decoder    Decoder
	inferencer Inferencer
	cfg        Config
	slots      *semaphore.Weighted // Bounds concurrent Infer calls

	// OnFailure, if set, is called once for every failed identifier.
	// It may be called from several goroutines at once.
	OnFailure func(Failure)

	// OnEmbedded, if set, is called after an identifier is inserted.
	// It may be called from several goroutines at once.
	OnEmbedded func(id FileID, dimension int)
}

// Result is the outcome of one pipeline run.
type Result struct {
	Table    *Table
	Failures []Failure
	Stats    Stats
}

// Stats describes a pipeline run.
type Stats struct {
	// Requested is the number of identifiers passed in, including repeats.
	Requested int `json:"requested"`
	// DuplicateInputs counts identifiers that appeared more than once in the input.
	DuplicateInputs int `json:"duplicate_inputs"`
	// Embedded is the number of identifiers that made it into the table.
	Embedded int `json:"embedded"`
	// Failed is the number of failure notices.
	Failed int `json:"failed"`
	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(decoder Decoder, inferencer Inferencer, cfg Config) (*Pipeline, error) {
	if decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if inferencer == nil {
		return nil, fmt.Errorf("inferencer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid embedding config: %w", err)
	}

	return &Pipeline{
		decoder:    decoder,
		inferencer: inferencer,
		cfg:        cfg,
		slots:      semaphore.NewWeighted(int64(cfg.InferenceSlots)),
	}, nil
}

// Run embeds every identifier in ids.
//
// The returned result is always non-nil. The error is non-nil only when ctx
// was canceled; identifiers that were not processed are then reported as
// failures with StageCanceled, and everything embedded so far is kept.
func (p *Pipeline) Run(ctx context.Context, ids []FileID) (*Result, error) {
	start := time.Now()
	res := &Result{Table: NewTable()}
	res.Stats.Requested = len(ids)

	var mu sync.Mutex // guards res.Failures
	fail := func(f Failure) {
		mu.Lock()
		res.Failures = append(res.Failures, f)
		mu.Unlock()
		if p.OnFailure != nil {
			p.OnFailure(f)
		}
	}

	seen := make(map[FileID]struct{}, len(ids))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			res.Stats.DuplicateInputs++
			continue
		}
		seen[id] = struct{}{}

		if err := ctx.Err(); err != nil {
			fail(Failure{ID: id, Stage: StageCanceled, Err: err})
			continue
		}

		g.Go(func() error {
			if f, ok := p.embed(ctx, id, res.Table); !ok {
				fail(f)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.Stats.Embedded = res.Table.Len()
	res.Stats.Failed = len(res.Failures)
	res.Stats.Duration = time.Since(start)

	return res, ctx.Err()
}

// embed processes one identifier. It returns false and the failure notice if
// the identifier could not be inserted.
func (p *Pipeline) embed(ctx context.Context, id FileID, table *Table) (Failure, bool) {
	tensor, err := p.decoder.Decode(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return Failure{ID: id, Stage: StageCanceled, Err: ctx.Err()}, false
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			err = &DecodeError{ID: id, Err: err}
		}
		return Failure{ID: id, Stage: StageDecode, Err: err}, false
	}
	if err := tensor.Validate(); err != nil {
		return Failure{ID: id, Stage: StageDecode, Err: &DecodeError{ID: id, Err: err}}, false
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		return Failure{ID: id, Stage: StageCanceled, Err: err}, false
	}
	raw, err := p.inferencer.Infer(ctx, tensor)
	p.slots.Release(1)

	if err != nil {
		if ctx.Err() != nil {
			return Failure{ID: id, Stage: StageCanceled, Err: ctx.Err()}, false
		}
		var inferErr *InferenceError
		if !errors.As(err, &inferErr) {
			err = &InferenceError{ID: id, Err: err}
		}
		if errors.Is(err, ErrMalformedOutput) {
			return Failure{ID: id, Stage: StageOutput, Err: err}, false
		}
		return Failure{ID: id, Stage: StageInference, Err: err}, false
	}

	vec := vecmath.Vector(raw)
	if err := p.checkOutput(vec); err != nil {
		return Failure{ID: id, Stage: StageOutput, Err: &InferenceError{ID: id, Err: err}}, false
	}

	if !table.Put(id, vecmath.Normalize(vec)) {
		// Input is de-duplicated before scheduling, so this only happens if
		// the caller reuses a table across runs.
		return Failure{ID: id, Stage: StageOutput, Err: fmt.Errorf("%s already embedded", id)}, false
	}
	if p.OnEmbedded != nil {
		p.OnEmbedded(id, len(vec))
	}
	return Failure{}, true
}

func (p *Pipeline) checkOutput(v vecmath.Vector) error {
	if err := vecmath.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if p.cfg.Dimension > 0 && len(v) != p.cfg.Dimension {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrMalformedOutput, p.cfg.Dimension, len(v))
	}
	return nil
}
