package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/dupsweep/internal/types"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

const runColumns = `
	id, status, roots, target, threshold, dry_run, delete_source,
	started_at, finished_at, files, embedded, failed, duplicates,
	relocated, relocation_failures, comparisons, error`

// StartRun inserts a new run. The run's status is forced to running.
func (j *Journal) StartRun(ctx context.Context, run *types.Run) error {
	run.Status = types.RunRunning
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	roots, err := json.Marshal(run.Roots)
	if err != nil {
		return fmt.Errorf("failed to marshal roots: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, roots, target, threshold, dry_run, delete_source, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Status), string(roots), run.Target, run.Threshold,
		run.DryRun, run.DeleteSource, toMillis(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stores the final status and counters of a run. FinishedAt is
// set to now if the caller left it empty.
func (j *Journal) FinishRun(ctx context.Context, run *types.Run) error {
	if run.Status == types.RunRunning || !run.Status.IsValid() {
		return fmt.Errorf("finish requires completed or aborted status (got %q)", run.Status)
	}
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}

	result, err := j.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?, finished_at = ?, files = ?, embedded = ?, failed = ?,
			duplicates = ?, relocated = ?, relocation_failures = ?, comparisons = ?, error = ?
		WHERE id = ?
	`, string(run.Status), toMillis(*run.FinishedAt), run.Files, run.Embedded, run.Failed,
		run.Duplicates, run.Relocated, run.RelocationFailures, run.Comparisons, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// GetRun retrieves a run by ID
func (j *Journal) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns runs newest first
func (j *Journal) ListRuns(ctx context.Context, filter types.RunFilter) ([]*types.Run, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*types.Run, error) {
	run := &types.Run{}
	var (
		status     string
		roots      string
		startedAt  int64
		finishedAt sql.NullInt64
	)

	err := row.Scan(
		&run.ID, &status, &roots, &run.Target, &run.Threshold, &run.DryRun, &run.DeleteSource,
		&startedAt, &finishedAt, &run.Files, &run.Embedded, &run.Failed, &run.Duplicates,
		&run.Relocated, &run.RelocationFailures, &run.Comparisons, &run.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Status = types.RunStatus(status)
	run.StartedAt = fromMillis(startedAt)
	if finishedAt.Valid {
		t := fromMillis(finishedAt.Int64)
		run.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(roots), &run.Roots); err != nil {
		return nil, fmt.Errorf("failed to parse roots for run %s: %w", run.ID, err)
	}
	return run, nil
}
