package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/kcibridge/internal/node"
)

const selectColumns = `
	SELECT id, name, path, grp, revision, state, result, artifacts,
	       timeout, holdoff, parent, created, updated, updated_seq, regression_data
	FROM regressions`

// LookupByLineage returns the most recently updated regression for lineage,
// or (nil, nil) if there is none.
func (s *SQLiteStore) LookupByLineage(ctx context.Context, lineage node.Lineage) (*node.Regression, error) {
	key, err := lineage.Key()
	if err != nil {
		return nil, fmt.Errorf("lookup regression: %w", err)
	}

	row := s.db.QueryRowContext(ctx, selectColumns+`
		WHERE lineage = ?
		ORDER BY updated_seq DESC, id COLLATE BINARY ASC
		LIMIT 1
	`, key)

	r, err := scanRegression(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup regression %s: %w", lineage, err)
	}
	return r, nil
}

// GetRegression retrieves a single regression by ID.
// Returns ErrNotFound if it does not exist.
func (s *SQLiteStore) GetRegression(ctx context.Context, id string) (*node.Regression, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)

	r, err := scanRegression(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get regression %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get regression %s: %w", id, err)
	}
	return r, nil
}

// ListRegressions returns all regressions ordered by updated_seq ASC, id ASC.
// Returns an empty slice (not nil) for an empty store.
func (s *SQLiteStore) ListRegressions(ctx context.Context) ([]*node.Regression, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY updated_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query regressions: %w", err)
	}
	defer rows.Close()

	regressions := []*node.Regression{}
	for rows.Next() {
		r, err := scanRegression(rows)
		if err != nil {
			return nil, err
		}
		regressions = append(regressions, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regressions: %w", err)
	}

	return regressions, nil
}

// LastSeq returns the highest updated_seq, or 0 for an empty store.
func (s *SQLiteStore) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_seq) FROM regressions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegression(s rowScanner) (*node.Regression, error) {
	var (
		r                                         node.Regression
		state, result                             string
		path, revision, artifacts, regressionData string
		created, updated                          string
	)

	err := s.Scan(
		&r.ID, &r.Name, &path, &r.Group, &revision, &state, &result, &artifacts,
		&r.Timeout, &r.Holdoff, &r.Parent, &created, &updated, &r.UpdatedSeq, &regressionData,
	)
	if err != nil {
		return nil, err
	}

	r.State = node.State(state)
	r.Result = node.Result(result)

	if err := unmarshalColumn("path", path, &r.Path); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("revision", revision, &r.Revision); err != nil {
		return nil, err
	}
	if err := unmarshalColumn("artifacts", artifacts, &r.Artifacts); err != nil {
		return nil, err
	}
	if len(r.Artifacts) == 0 {
		r.Artifacts = nil
	}
	if err := unmarshalColumn("regression_data", regressionData, &r.RegressionData); err != nil {
		return nil, err
	}
	if r.Created, err = parseTime("created", created); err != nil {
		return nil, err
	}
	if r.Updated, err = parseTime("updated", updated); err != nil {
		return nil, err
	}

	return &r, nil
}
