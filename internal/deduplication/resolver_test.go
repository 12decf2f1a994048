package deduplication

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/vecmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T, threshold float64, workers int) *Resolver {
	t.Helper()
	r, err := NewResolver(Config{Threshold: threshold, Workers: workers}, NewClaimSet())
	require.NoError(t, err)
	return r
}

func tableOf(entries map[embedding.FileID]vecmath.Vector) *embedding.Table {
	table := embedding.NewTable()
	for id, v := range entries {
		table.Put(id, vecmath.Normalize(v))
	}
	return table
}

// threeScenario builds unit vectors with pairwise similarities
// sim(E1,E2)=0.97, sim(E1,E3)=0.40, sim(E2,E3)=0.41.
func threeScenario() map[embedding.FileID]vecmath.Vector {
	e2y := math.Sqrt(1 - 0.97*0.97)
	e3y := (0.41 - 0.97*0.40) / e2y
	e3z := math.Sqrt(1 - 0.40*0.40 - e3y*e3y)
	return map[embedding.FileID]vecmath.Vector{
		"E1": {1, 0, 0},
		"E2": {0.97, float32(e2y), 0},
		"E3": {0.40, float32(e3y), float32(e3z)},
	}
}

func TestResolveThreeIdentifierScenario(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			r := newResolver(t, 0.95, workers)
			result, err := r.Resolve(context.Background(), tableOf(threeScenario()))
			require.NoError(t, err)
			require.NoError(t, result.Validate(0.95))

			require.Len(t, result.Decisions, 1)
			d := result.Decisions[0]
			pair := []embedding.FileID{d.Duplicate, d.Original}
			assert.ElementsMatch(t, []embedding.FileID{"E1", "E2"}, pair)
			assert.InDelta(t, 0.97, d.Similarity, 1e-5)
			assert.LessOrEqual(t, result.Stats.Comparisons, result.Stats.MaxComparisons())
		})
	}
}

func TestResolveEmptyAndSingleton(t *testing.T) {
	tests := []struct {
		name    string
		entries map[embedding.FileID]vecmath.Vector
	}{
		{"empty", map[embedding.FileID]vecmath.Vector{}},
		{"single", map[embedding.FileID]vecmath.Vector{"only.jpg": {1, 2, 3}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, 0.5, 4)
			result, err := r.Resolve(context.Background(), tableOf(tt.entries))
			require.NoError(t, err)
			assert.Empty(t, result.Decisions)
			assert.Equal(t, int64(0), result.Stats.Comparisons)
			assert.Equal(t, len(tt.entries), result.Stats.Entries)
		})
	}
}

func TestResolveThresholdBoundary(t *testing.T) {
	a := vecmath.Normalize(vecmath.Vector{1, 0})
	b := vecmath.Normalize(vecmath.Vector{0.6, 0.8})
	exact, err := vecmath.Similarity(a, b)
	require.NoError(t, err)

	table := embedding.NewTable()
	table.Put("A", a)
	table.Put("B", b)

	r := newResolver(t, exact, 2)
	result, err := r.Resolve(context.Background(), table)
	require.NoError(t, err)
	assert.Empty(t, result.Decisions, "similarity equal to threshold must not match")

	r = newResolver(t, exact-1e-9, 2)
	result, err = r.Resolve(context.Background(), table)
	require.NoError(t, err)
	require.Len(t, result.Decisions, 1)
	assert.Equal(t, embedding.FileID("B"), result.Decisions[0].Duplicate)
	assert.Equal(t, embedding.FileID("A"), result.Decisions[0].Original)
}

func TestResolveThresholdOneNeverMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		v := make(vecmath.Vector, 512)
		for i := range v {
			v[i] = float32(rng.NormFloat64())
		}
		v = vecmath.Normalize(v)

		table := embedding.NewTable()
		table.Put("a.jpg", v)
		table.Put("b.jpg", append(vecmath.Vector(nil), v...))

		r := newResolver(t, 1.0, 2)
		result, err := r.Resolve(context.Background(), table)
		require.NoError(t, err)
		assert.Empty(t, result.Decisions, "trial %d", trial)
		assert.Equal(t, int64(1), result.Stats.Comparisons)
	}
}

func TestResolveSingleWorkerUsesKeyOrder(t *testing.T) {
	entries := map[embedding.FileID]vecmath.Vector{
		"c.jpg": {1, 0},
		"a.jpg": {1, 0},
		"b.jpg": {1, 0},
	}
	r := newResolver(t, 0.9, 1)
	result, err := r.Resolve(context.Background(), tableOf(entries))
	require.NoError(t, err)

	// With one worker, a.jpg claims both others and b.jpg is skipped as original.
	require.Len(t, result.Decisions, 2)
	for _, d := range result.Decisions {
		assert.Equal(t, embedding.FileID("a.jpg"), d.Original)
	}
	assert.Equal(t, int64(1), result.Stats.SkippedOriginals)
	assert.Equal(t, int64(2), result.Stats.Comparisons)
}

func TestResolveClaimUniquenessUnderContention(t *testing.T) {
	// Every vector is identical, so every pair qualifies and all workers race
	// for the same claims. The first key can never be a duplicate; every other
	// key must be claimed exactly once.
	const k = 120
	entries := make(map[embedding.FileID]vecmath.Vector, k)
	for i := 0; i < k; i++ {
		entries[embedding.FileID(fmt.Sprintf("img_%03d.png", i))] = vecmath.Vector{0.3, 0.4, 0.5}
	}
	table := tableOf(entries)

	for run := 0; run < 25; run++ {
		r := newResolver(t, 0.99, 32)
		result, err := r.Resolve(context.Background(), table)
		require.NoError(t, err)
		require.NoError(t, result.Validate(0.99))

		assert.Len(t, result.Decisions, k-1)
		assert.Equal(t, k-1, r.Claims().Len())
		assert.False(t, r.Claims().IsClaimed("img_000.png"))
	}
}

func TestResolveRandomClustersInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const clusters, perCluster, dim = 12, 9, 32

	entries := make(map[embedding.FileID]vecmath.Vector)
	for c := 0; c < clusters; c++ {
		center := make(vecmath.Vector, dim)
		for i := range center {
			center[i] = float32(rng.NormFloat64())
		}
		for m := 0; m < perCluster; m++ {
			v := make(vecmath.Vector, dim)
			for i := range v {
				v[i] = center[i] + float32(rng.NormFloat64()*0.01)
			}
			entries[embedding.FileID(fmt.Sprintf("c%02d_m%02d", c, m))] = v
		}
	}
	table := tableOf(entries)

	for _, workers := range []int{1, 3, 16, 64} {
		r := newResolver(t, 0.98, workers)
		result, err := r.Resolve(context.Background(), table)
		require.NoError(t, err)
		require.NoError(t, result.Validate(0.98))

		// Each cluster keeps exactly one survivor: its smallest key.
		assert.Len(t, result.Decisions, clusters*(perCluster-1), "workers=%d", workers)
		for _, d := range result.Decisions {
			assert.Equal(t, string(d.Duplicate)[:3], string(d.Original)[:3], "cross-cluster match")
		}
	}
}

func TestResolveDimensionMismatchIsFatal(t *testing.T) {
	table := embedding.NewTable()
	table.Put("a", vecmath.Normalize(vecmath.Vector{1, 0, 0}))
	table.Put("b", vecmath.Normalize(vecmath.Vector{1, 0}))

	r := newResolver(t, 0.5, 2)
	_, err := r.Resolve(context.Background(), table)
	require.Error(t, err)

	var mismatch *vecmath.DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Contains(t, err.Error(), "compare a with b")
}

func TestResolveCanceledContext(t *testing.T) {
	entries := make(map[embedding.FileID]vecmath.Vector)
	for i := 0; i < 50; i++ {
		entries[embedding.FileID(fmt.Sprintf("%02d", i))] = vecmath.Vector{1, float32(i)}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newResolver(t, 0.5, 4)
	result, err := r.Resolve(ctx, tableOf(entries))
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, result.Validate(0.5))
}

func TestResolveStreamClosesChannel(t *testing.T) {
	r := newResolver(t, 0.95, 4)
	out := make(chan Decision)

	var got []Decision
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for d := range out {
			got = append(got, d)
		}
	}()

	stats, err := r.ResolveStream(context.Background(), tableOf(threeScenario()), out)
	require.NoError(t, err)
	wg.Wait()

	assert.Len(t, got, 1)
	assert.Equal(t, 1, stats.Duplicates)
}

func TestResolveStreamCancelLeavesUndeliveredClaims(t *testing.T) {
	entries := make(map[embedding.FileID]vecmath.Vector)
	for i := 0; i < 10; i++ {
		entries[embedding.FileID(fmt.Sprintf("%02d.jpg", i))] = vecmath.Vector{1, 1}
	}
	r := newResolver(t, 0.9, 4)
	ctx, cancel := context.WithCancel(context.Background())

	// Nobody reads out, so every worker blocks on its first send.
	out := make(chan Decision)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	stats, err := r.ResolveStream(ctx, tableOf(entries), out)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 0, stats.Duplicates)
	assert.Positive(t, stats.Undelivered)
	assert.Equal(t, int64(r.Claims().Len()), int64(stats.Duplicates)+stats.Undelivered)
}

func TestSharedClaimSetAcrossResolvers(t *testing.T) {
	claims := NewClaimSet()
	require.True(t, claims.Claim("E2"))

	r, err := NewResolver(Config{Threshold: 0.95, Workers: 1}, claims)
	require.NoError(t, err)

	result, err := r.Resolve(context.Background(), tableOf(threeScenario()))
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
	assert.Equal(t, int64(1), result.Stats.RaceLosses)
	assert.Equal(t, int64(1), result.Stats.SkippedOriginals)
}
