package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/dupsweep/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverJournal(t *testing.T) {
	t.Setenv("DUPSWEEP_JOURNAL", "/tmp/custom.db")
	path, err := DiscoverJournal()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", path)

	t.Setenv("DUPSWEEP_JOURNAL", "")
	t.Setenv("XDG_STATE_HOME", "/var/state")
	path, err = DiscoverJournal()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/var/state", "dupsweep", "journal.db"), path)
}

func TestTargetLock(t *testing.T) {
	target := filepath.Join(t.TempDir(), "dupes")

	lockPath, err := AcquireTargetLock(target, "run-a", "test")
	require.NoError(t, err)
	assert.FileExists(t, lockPath)

	// Same live process holds it
	_, err = AcquireTargetLock(target, "run-b", "test")
	assert.ErrorIs(t, err, ErrTargetLocked)
	assert.ErrorContains(t, err, "run-a")

	require.NoError(t, ReleaseTargetLock(lockPath, "run-a"))
	assert.NoFileExists(t, lockPath)
	require.NoError(t, ReleaseTargetLock(lockPath, "run-a"), "releasing twice is a no-op")
}

func TestReleaseTargetLockKeepsOtherHolder(t *testing.T) {
	target := t.TempDir()

	lockPath, err := AcquireTargetLock(target, "winner", "test")
	require.NoError(t, err)

	require.NoError(t, ReleaseTargetLock(lockPath, "loser"))
	assert.FileExists(t, lockPath)

	require.NoError(t, ReleaseTargetLock(lockPath, "winner"))
	assert.NoFileExists(t, lockPath)
}

func TestTargetLockConcurrentAcquire(t *testing.T) {
	const callers = 8

	for trial := 0; trial < 100; trial++ {
		target := filepath.Join(t.TempDir(), "dupes")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			holders []string
		)
		start := make(chan struct{})
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(runID string) {
				defer wg.Done()
				<-start
				if _, err := AcquireTargetLock(target, runID, "test"); err == nil {
					mu.Lock()
					holders = append(holders, runID)
					mu.Unlock()
				} else {
					assert.ErrorIs(t, err, ErrTargetLocked)
				}
			}(fmt.Sprintf("run-%d", i))
		}
		close(start)
		wg.Wait()

		require.Len(t, holders, 1, "trial %d: holders %v", trial, holders)

		raw, err := os.ReadFile(filepath.Join(target, lockFile))
		require.NoError(t, err)
		var got TargetLock
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, holders[0], got.RunID)
	}
}

func TestTargetLockTakesOverStaleLock(t *testing.T) {
	target := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	// PIDs are bounded well below this on Linux and macOS
	stale := TargetLock{Holder: "dupsweep", RunID: "old", PID: 1 << 30, Hostname: hostname, StartedAt: time.Now()}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(target, lockFile), data, 0644))

	lockPath, err := AcquireTargetLock(target, "new", "test")
	require.NoError(t, err)
	defer ReleaseTargetLock(lockPath, "new")

	raw, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	var got TargetLock
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "new", got.RunID)
	assert.Equal(t, os.Getpid(), got.PID)
}

func TestNewJournal(t *testing.T) {
	ctx := context.Background()
	j, err := NewJournal(ctx, Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.ListRuns(ctx, types.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}
