package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// lockFile is created in the target directory while a run writes to it.
const lockFile = ".dupsweep.lock"

// TargetLock is the lock file format that stops two runs from relocating
// into the same target directory at once.
type TargetLock struct {
	Holder    string    `json:"holder"`
	RunID     string    `json:"run_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// lockAttempts bounds how often a stale lock is taken over before giving up.
const lockAttempts = 3

// ErrTargetLocked is returned when a live run holds the target lock.
var ErrTargetLocked = errors.New("target is locked by another run")

// AcquireTargetLock creates the lock file in target. The file is created
// exclusively, so of several concurrent callers exactly one succeeds. A lock
// left behind by a process that no longer exists is removed and the create
// is retried. Returns the lock file path for cleanup on shutdown.
func AcquireTargetLock(target, runID, version string) (lockPath string, err error) {
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}
	lockPath = filepath.Join(target, lockFile)

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	lock := TargetLock{
		Holder:    "dupsweep",
		RunID:     runID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	for attempt := 0; attempt < lockAttempts; attempt++ {
		err := createLockFile(lockPath, data)
		if err == nil {
			return lockPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create target lock: %w", err)
		}

		existing, readErr := readTargetLock(lockPath)
		if errors.Is(readErr, fs.ErrNotExist) {
			// Released between our create and read
			continue
		}
		if readErr != nil {
			// A holder that has created but not yet written the file
			// looks like garbage here; treat it as live.
			return "", fmt.Errorf("%w: %s (unreadable lock %s, remove it if no run is active)", ErrTargetLocked, target, lockPath)
		}
		if isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w: %s (run %s, PID %d on %s, started %s)",
				ErrTargetLocked, target, existing.RunID, existing.PID, existing.Hostname,
				existing.StartedAt.Format(time.RFC3339))
		}

		// Stale lock. Only remove it if it is still the one we judged stale.
		if err := removeLockIfHeldBy(lockPath, existing.RunID); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s (lock kept changing hands)", ErrTargetLocked, target)
}

// ReleaseTargetLock removes the lock file if runID still holds it. Should be
// called when the run finishes (use defer).
func ReleaseTargetLock(lockPath, runID string) error {
	if lockPath == "" {
		return nil
	}
	return removeLockIfHeldBy(lockPath, runID)
}

func createLockFile(lockPath string, data []byte) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(lockPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(lockPath)
		return err
	}
	return nil
}

func readTargetLock(lockPath string) (TargetLock, error) {
	var lock TargetLock
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return lock, err
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		return lock, fmt.Errorf("failed to parse target lock: %w", err)
	}
	return lock, nil
}

func removeLockIfHeldBy(lockPath, runID string) error {
	existing, err := readTargetLock(lockPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.RunID != runID {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove target lock: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM means the process exists but belongs to someone else
	if err == syscall.EPERM {
		return true
	}
	return false
}
