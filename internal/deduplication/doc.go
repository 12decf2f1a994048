// Package deduplication decides which embedded files are duplicates of which.
//
// # Overview
//
// The Resolver compares every unordered pair of entries in an embedding table
// and designates near-identical files as duplicates. Each file can be claimed
// as a duplicate at most once, no matter how many workers race to claim it.
//
// # Algorithm
//
// Keys are sorted once at the start of resolution; that order is fixed for the
// run. For every pair (i, j) with i < j:
//
//  1. At the start of outer index i, skip i entirely if it is already claimed.
//  2. Compute similarity(i, j). Only a score strictly greater than the
//     threshold qualifies; a score equal to the threshold is not a match.
//  3. Atomically claim j. If the claim succeeds, emit Decision{Duplicate: j,
//     Original: i}. If another worker already claimed j, drop the pair
//     silently; j is already on its way to relocation.
//
// The outer loop runs on Config.Workers goroutines; the inner loop for one i is
// sequential. The ClaimSet is the only shared mutable state.
//
// # Nondeterminism
//
// Which i ends up recorded as the Original of a given duplicate depends on
// scheduling and is not stable between runs with more than one worker. Only
// the uniqueness of each duplicate's claim is guaranteed. Tests must not
// assert a specific winner.
//
// A file claimed as a duplicate after its own outer iteration has started
// keeps acting as an original for the remaining j of that iteration; the
// claim status of i is checked once, at loop entry.
//
// # Errors
//
// Comparing vectors of different length means two models were mixed in one
// table. Resolve returns the wrapped *vecmath.DimensionMismatchError and stops
// all workers; claims made before that point are complete.
//
// After cancellation a file may be claimed without its decision ever being
// delivered; Stats.Undelivered counts those claims.
package deduplication
