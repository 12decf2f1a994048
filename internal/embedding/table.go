package embedding

import (
	"sort"
	"sync"

	"github.com/steveyegge/dupsweep/internal/vecmath"
)

// Table maps identifiers to normalized embeddings.
//
// It is append-only: an identifier is written at most once and entries are
// never replaced or removed. A single mutex guards the map; contention is
// negligible next to inference latency.
type Table struct {
	mu      sync.RWMutex
	entries map[FileID]vecmath.Vector
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[FileID]vecmath.Vector)}
}

// Put inserts v under id. It returns false, leaving the existing entry
// untouched, if id is already present.
func (t *Table) Put(id FileID, v vecmath.Vector) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return false
	}
	t.entries[id] = v
	return true
}

// Get returns the embedding stored for id.
func (t *Table) Get(id FileID) (vecmath.Vector, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[id]
	return v, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Keys returns all identifiers in ascending lexicographic order. This is the
// fixed total order the resolver enumerates pairs in.
func (t *Table) Keys() []FileID {
	t.mu.RLock()
	keys := make([]FileID, 0, len(t.entries))
	for id := range t.entries {
		keys = append(keys, id)
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Dimensions returns the set of distinct vector lengths in the table. A
// healthy table has exactly one.
func (t *Table) Dimensions() []int {
	t.mu.RLock()
	seen := make(map[int]struct{})
	for _, v := range t.entries {
		seen[len(v)] = struct{}{}
	}
	t.mu.RUnlock()

	dims := make([]int, 0, len(seen))
	for d := range seen {
		dims = append(dims, d)
	}
	sort.Ints(dims)
	return dims
}
