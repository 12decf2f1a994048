package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/dupsweep/internal/types"
)

// RecordRelocation stores the outcome of one handoff. Safe for concurrent use.
func (j *Journal) RecordRelocation(ctx context.Context, rel *types.Relocation) error {
	if rel.RunID == "" || rel.Duplicate == "" || rel.Original == "" {
		return fmt.Errorf("run_id, duplicate and original are required")
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now()
	}

	result, err := j.db.ExecContext(ctx, `
		INSERT INTO relocations (run_id, duplicate, original, similarity, destination, deleted_source, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rel.RunID, rel.Duplicate, rel.Original, rel.Similarity, rel.Destination,
		rel.DeletedSource, rel.Error, toMillis(rel.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert relocation for %s: %w", rel.Duplicate, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get relocation id: %w", err)
	}
	rel.ID = id
	return nil
}

// ListRelocations returns the relocations of a run in the order they were recorded
func (j *Journal) ListRelocations(ctx context.Context, runID string) ([]*types.Relocation, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_id, duplicate, original, similarity, destination, deleted_source, error, created_at
		FROM relocations
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rels []*types.Relocation
	for rows.Next() {
		rel := &types.Relocation{}
		var createdAt int64
		if err := rows.Scan(&rel.ID, &rel.RunID, &rel.Duplicate, &rel.Original, &rel.Similarity,
			&rel.Destination, &rel.DeletedSource, &rel.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan relocation: %w", err)
		}
		rel.CreatedAt = fromMillis(createdAt)
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relocations: %w", err)
	}
	return rels, nil
}
