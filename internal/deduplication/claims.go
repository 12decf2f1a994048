package deduplication

import (
	"sort"
	"sync"

	"github.com/steveyegge/dupsweep/internal/embedding"
)

// ClaimSet records files already designated as duplicates.
//
// Claim is a linearizable test-and-insert: for any id exactly one caller ever
// observes true. Insertion is the only mutation.
type ClaimSet struct {
	mu      sync.Mutex
	claimed map[embedding.FileID]struct{}
}

// NewClaimSet creates an empty claim set.
func NewClaimSet() *ClaimSet {
	return &ClaimSet{claimed: make(map[embedding.FileID]struct{})}
}

// Claim marks id as claimed. It returns true if this call made the claim and
// false if id was already claimed.
func (c *ClaimSet) Claim(id embedding.FileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.claimed[id]; ok {
		return false
	}
	c.claimed[id] = struct{}{}
	return true
}

// IsClaimed reports whether id has been claimed.
func (c *ClaimSet) IsClaimed(id embedding.FileID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.claimed[id]
	return ok
}

// Len returns the number of claimed ids.
func (c *ClaimSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claimed)
}

// Members returns the claimed ids in ascending order.
func (c *ClaimSet) Members() []embedding.FileID {
	c.mu.Lock()
	out := make([]embedding.FileID, 0, len(c.claimed))
	for id := range c.claimed {
		out = append(out, id)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
