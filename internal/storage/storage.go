package storage

import (
	"context"
	"time"

	"github.com/steveyegge/dupsweep/internal/storage/sqlite"
	"github.com/steveyegge/dupsweep/internal/types"
)

// Journal defines the interface for run journal backends
type Journal interface {
	// Runs
	StartRun(ctx context.Context, run *types.Run) error
	FinishRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, filter types.RunFilter) ([]*types.Run, error)

	// Relocations
	RecordRelocation(ctx context.Context, rel *types.Relocation) error
	ListRelocations(ctx context.Context, runID string) ([]*types.Relocation, error)

	// Retention
	PruneRunsByAge(ctx context.Context, olderThan time.Time, batchSize int) (int, error)
	PruneRunsByCount(ctx context.Context, keep, batchSize int) (int, error)
	VacuumDatabase(ctx context.Context) error

	// Lifecycle
	Close() error
}

var _ Journal = (*sqlite.Journal)(nil)

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: see DefaultJournalPath
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// NewJournal opens the SQLite journal at cfg.Path, discovering a default
// location when the path is empty.
func NewJournal(ctx context.Context, cfg Config) (Journal, error) {
	path := cfg.Path
	if path == "" {
		discovered, err := DiscoverJournal()
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return sqlite.Open(ctx, path)
}
