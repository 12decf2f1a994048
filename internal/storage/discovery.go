package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// journalFile is the database file name inside the state directory.
const journalFile = "journal.db"

// DiscoverJournal returns the journal path to use when none is configured.
//
// DUPSWEEP_JOURNAL takes precedence so tests and scripts can isolate runs.
// Otherwise the journal lives in $XDG_STATE_HOME/dupsweep, falling back to
// ~/.local/state/dupsweep.
func DiscoverJournal() (string, error) {
	if path := os.Getenv("DUPSWEEP_JOURNAL"); path != "" {
		return path, nil
	}
	return DefaultJournalPath()
}

// DefaultJournalPath returns the per-user journal location without
// consulting the environment override.
func DefaultJournalPath() (string, error) {
	if state := os.Getenv("XDG_STATE_HOME"); state != "" {
		return filepath.Join(state, "dupsweep", journalFile), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "dupsweep", journalFile), nil
}
