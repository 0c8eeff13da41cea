package testutil

import (
	"context"
	"sync"

	"github.com/roach88/kcibridge/internal/node"
	"github.com/roach88/kcibridge/internal/store"
)

// FaultyStore wraps a RegressionStore and fails selected operations.
// Set the *Err fields to inject errors; nil passes through.
type FaultyStore struct {
	store.RegressionStore

	mu        sync.Mutex
	LookupErr error
	CreateErr error
	UpdateErr error
}

// NewFaultyStore wraps s.
func NewFaultyStore(s store.RegressionStore) *FaultyStore {
	return &FaultyStore{RegressionStore: s}
}

// SetCreateErr sets the error returned by CreateRegression.
func (f *FaultyStore) SetCreateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateErr = err
}

func (f *FaultyStore) LookupByLineage(ctx context.Context, l node.Lineage) (*node.Regression, error) {
	f.mu.Lock()
	err := f.LookupErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.RegressionStore.LookupByLineage(ctx, l)
}

func (f *FaultyStore) CreateRegression(ctx context.Context, r *node.Regression) error {
	f.mu.Lock()
	err := f.CreateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.RegressionStore.CreateRegression(ctx, r)
}

func (f *FaultyStore) UpdateRegression(ctx context.Context, r *node.Regression) error {
	f.mu.Lock()
	err := f.UpdateErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.RegressionStore.UpdateRegression(ctx, r)
}
