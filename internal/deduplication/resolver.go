package deduplication

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/vecmath"
	"golang.org/x/sync/errgroup"
)

// cancelCheckInterval is how many inner iterations run between context checks.
const cancelCheckInterval = 256

// Resolver finds duplicates in an embedding table.
//
// Example usage:
//
//	cfg := deduplication.DefaultConfig()
//	cfg.Threshold = 0.95
//	r, err := deduplication.NewResolver(cfg, deduplication.NewClaimSet())
//	if err != nil {
//	    return err
//	}
//	result, err := r.Resolve(ctx, table)
//	if err != nil {
//	    return err // dimension mismatch: the table is corrupt
//	}
//	for _, d := range result.Decisions {
//	    fmt.Printf("%s duplicates %s (%.3f)\n", d.Duplicate, d.Original, d.Similarity)
//	}
type Resolver struct {
	cfg    Config
	claims *ClaimSet
}

// NewResolver creates a resolver that records claims in claims. A nil claim
// set is replaced by an empty one.
func NewResolver(cfg Config, claims *ClaimSet) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if claims == nil {
		claims = NewClaimSet()
	}
	return &Resolver{cfg: cfg, claims: claims}, nil
}

// Claims returns the claim set the resolver writes to.
func (r *Resolver) Claims() *ClaimSet {
	return r.claims
}

// Resolve compares every pair in table and returns all decisions.
func (r *Resolver) Resolve(ctx context.Context, table *embedding.Table) (*Result, error) {
	out := make(chan Decision)
	result := &Result{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for d := range out {
			result.Decisions = append(result.Decisions, d)
		}
	}()

	stats, err := r.ResolveStream(ctx, table, out)
	<-done

	result.Stats = stats
	return result, err
}

// ResolveStream compares every pair in table and sends each decision on out
// as soon as its claim succeeds. out is closed when ResolveStream returns.
//
// If ctx is canceled, or a dimension mismatch is found, workers stop early
// and the error is returned. Decisions already sent stay valid.
func (r *Resolver) ResolveStream(ctx context.Context, table *embedding.Table, out chan<- Decision) (Stats, error) {
	defer close(out)

	start := time.Now()
	keys := table.Keys()
	vecs := make([]vecmath.Vector, len(keys))
	for i, k := range keys {
		vecs[i], _ = table.Get(k)
	}

	stats := Stats{Entries: len(keys), Workers: r.cfg.Workers}
	if len(keys) < 2 {
		stats.finish(start)
		return stats, nil
	}

	var (
		comparisons atomic.Int64
		raceLosses  atomic.Int64
		skipped     atomic.Int64
		undelivered atomic.Int64
		emitted     atomic.Int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	// The last index has no j > i, so it never needs a task.
	for i := 0; i < len(keys)-1; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if r.claims.IsClaimed(keys[i]) {
				skipped.Add(1)
				return nil
			}

			var local, losses int64
			defer func() {
				comparisons.Add(local)
				raceLosses.Add(losses)
			}()

			for j := i + 1; j < len(keys); j++ {
				if (j-i)%cancelCheckInterval == 0 && gctx.Err() != nil {
					return gctx.Err()
				}

				sim, err := vecmath.Similarity(vecs[i], vecs[j])
				if err != nil {
					return fmt.Errorf("compare %s with %s: %w", keys[i], keys[j], err)
				}
				local++

				if sim <= r.cfg.Threshold {
					continue
				}
				if !r.claims.Claim(keys[j]) {
					losses++
					continue
				}

				d := Decision{Duplicate: keys[j], Original: keys[i], Similarity: sim}
				select {
				case out <- d:
					emitted.Add(1)
				case <-gctx.Done():
					undelivered.Add(1)
					return gctx.Err()
				}
			}
			return nil
		})
	}

	err := g.Wait()

	stats.Comparisons = comparisons.Load()
	stats.RaceLosses = raceLosses.Load()
	stats.SkippedOriginals = skipped.Load()
	stats.Undelivered = undelivered.Load()
	stats.Duplicates = int(emitted.Load())
	stats.finish(start)

	if err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}
