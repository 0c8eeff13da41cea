package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/kcibridge/internal/node"
)

// CreateRegression inserts a new regression record.
// Returns ErrExists if the ID is already present.
func (s *SQLiteStore) CreateRegression(ctx context.Context, r *node.Regression) error {
	row, err := encodeRow(r)
	if err != nil {
		return fmt.Errorf("create regression: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO regressions
		(id, lineage, name, path, grp, revision, state, result, artifacts,
		 timeout, holdoff, parent, created, updated, updated_seq, regression_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		row.lineage,
		r.Name,
		row.path,
		r.Group,
		row.revision,
		string(r.State),
		string(r.Result),
		row.artifacts,
		r.Timeout,
		r.Holdoff,
		r.Parent,
		formatTime(r.Created),
		formatTime(r.Updated),
		r.UpdatedSeq,
		row.regressionData,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("create regression %s: %w", r.ID, ErrExists)
		}
		return fmt.Errorf("create regression %s: %w", r.ID, err)
	}

	return nil
}

// UpdateRegression rewrites an existing regression in place.
// The created column is never touched. Returns ErrNotFound if the ID is absent.
func (s *SQLiteStore) UpdateRegression(ctx context.Context, r *node.Regression) error {
	row, err := encodeRow(r)
	if err != nil {
		return fmt.Errorf("update regression: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE regressions SET
			lineage = ?, name = ?, path = ?, grp = ?, revision = ?, state = ?,
			result = ?, artifacts = ?, timeout = ?, holdoff = ?, parent = ?,
			updated = ?, updated_seq = ?, regression_data = ?
		WHERE id = ?
	`,
		row.lineage,
		r.Name,
		row.path,
		r.Group,
		row.revision,
		string(r.State),
		string(r.Result),
		row.artifacts,
		r.Timeout,
		r.Holdoff,
		r.Parent,
		formatTime(r.Updated),
		r.UpdatedSeq,
		row.regressionData,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update regression %s: %w", r.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update regression %s: rows affected: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update regression %s: %w", r.ID, ErrNotFound)
	}

	return nil
}
