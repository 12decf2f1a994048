package sqlite

import (
	"context"
	"fmt"
	"time"
)

// PruneRunsByAge deletes finished runs that started before olderThan, along
// with their relocations. Running runs are never pruned. Deletions are
// batched (batchSize runs per statement).
func (j *Journal) PruneRunsByAge(ctx context.Context, olderThan time.Time, batchSize int) (int, error) {
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	return j.deleteInBatches(ctx, batchSize, `
		DELETE FROM runs
		WHERE id IN (
			SELECT id FROM runs
			WHERE started_at < ? AND status != 'running'
			ORDER BY started_at ASC
			LIMIT ?
		)
	`, toMillis(olderThan))
}

// PruneRunsByCount keeps the newest keep finished runs and deletes the rest.
// keep == 0 means unlimited.
func (j *Journal) PruneRunsByCount(ctx context.Context, keep, batchSize int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep cannot be negative")
	}
	if keep == 0 {
		return 0, nil
	}
	if batchSize < 1 {
		return 0, fmt.Errorf("batch size must be at least 1")
	}

	return j.deleteInBatches(ctx, batchSize, `
		DELETE FROM runs
		WHERE id IN (
			SELECT id FROM runs
			WHERE status != 'running'
			AND id NOT IN (
				SELECT id FROM runs
				WHERE status != 'running'
				ORDER BY started_at DESC, id DESC
				LIMIT ?
			)
			ORDER BY started_at ASC
			LIMIT ?
		)
	`, keep)
}

// deleteInBatches runs query until it deletes fewer than batchSize rows.
// The batch size is appended as the last argument.
func (j *Journal) deleteInBatches(ctx context.Context, batchSize int, query string, args ...interface{}) (int, error) {
	totalDeleted := 0
	args = append(args, batchSize)

	for {
		select {
		case <-ctx.Done():
			return totalDeleted, ctx.Err()
		default:
		}

		result, err := j.db.ExecContext(ctx, query, args...)
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to execute delete: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return totalDeleted, fmt.Errorf("failed to get rows affected: %w", err)
		}
		totalDeleted += int(rowsAffected)

		// If we deleted fewer than batchSize, we're done
		if rowsAffected < int64(batchSize) {
			break
		}
	}
	return totalDeleted, nil
}
