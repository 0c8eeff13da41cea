package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/kcibridge/internal/node"
)

var (
	// ErrNotFound is returned when a regression ID does not exist.
	ErrNotFound = errors.New("regression not found")

	// ErrExists is returned when creating a regression whose ID is taken.
	ErrExists = errors.New("regression already exists")
)

// Backend names accepted by OpenBackend.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// RegressionStore persists regressions.
//
// LookupByLineage returns (nil, nil) when no regression exists for the
// lineage. When several exist the most recently updated one is returned.
type RegressionStore interface {
	LookupByLineage(ctx context.Context, lineage node.Lineage) (*node.Regression, error)
	CreateRegression(ctx context.Context, r *node.Regression) error
	UpdateRegression(ctx context.Context, r *node.Regression) error
	GetRegression(ctx context.Context, id string) (*node.Regression, error)
	ListRegressions(ctx context.Context) ([]*node.Regression, error)

	// LastSeq returns the highest updated_seq stored, or 0 for an empty store.
	LastSeq(ctx context.Context) (int64, error)

	Close() error
}

// OpenBackend opens the named backend at path.
func OpenBackend(backend, path string) (RegressionStore, error) {
	switch backend {
	case "", BackendSQLite:
		return Open(path)
	case BackendBadger:
		return OpenBadger(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

var (
	_ RegressionStore = (*SQLiteStore)(nil)
	_ RegressionStore = (*BadgerStore)(nil)
)
