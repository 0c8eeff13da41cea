package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/kcibridge/internal/node"
	"github.com/roach88/kcibridge/internal/store"
)

// Outcome is what Process did with a node.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeCreated
	OutcomeExtended
	OutcomeDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExtended:
		return "extended"
	case OutcomeDuplicate:
		return "duplicate"
	default:
		return "ignored"
	}
}

// Reasons attached to ignored and duplicate decisions.
const (
	ReasonAlreadyOpen   = "pass result with an open regression"
	ReasonNoRegression  = "fail result without an open regression"
	ReasonOtherResult   = "result is neither pass nor fail"
	ReasonDuplicateNode = "node already recorded in regression"
)

// Decision describes the outcome of processing one node.
type Decision struct {
	Outcome    Outcome
	Regression *node.Regression // nil when no regression exists for the lineage
	Reason     string           // set for ignored and duplicate outcomes
}

// PersistenceError is returned when the store fails during a lookup or write.
type PersistenceError struct {
	Op     string // "lookup", "create" or "extend"
	NodeID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s regression for node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Tracker decides and persists regression changes.
// Not safe for concurrent use; the bridge loop calls it from one goroutine.
type Tracker struct {
	store store.RegressionStore
	ids   IDGenerator
	clock *Clock
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator overrides the regression ID generator (default UUIDv7).
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tracker) {
		t.ids = g
	}
}

// WithNow overrides the wall clock used for created/updated timestamps.
func WithNow(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates a Tracker over s. The logical clock resumes from the highest
// sequence already stored.
func New(ctx context.Context, s store.RegressionStore, opts ...Option) (*Tracker, error) {
	last, err := s.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resume tracker clock: %w", err)
	}

	t := &Tracker{
		store: s,
		ids:   UUIDv7Generator{},
		clock: NewClockAt(last),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Lookup returns the regression for n's lineage, or nil.
func (t *Tracker) Lookup(ctx context.Context, n node.Node) (*node.Regression, error) {
	r, err := t.store.LookupByLineage(ctx, n.Lineage())
	if err != nil {
		return nil, &PersistenceError{Op: "lookup", NodeID: n.ID, Err: err}
	}
	return r, nil
}

// Create starts a new regression from n and persists it.
func (t *Tracker) Create(ctx context.Context, n node.Node) (*node.Regression, error) {
	r := node.NewRegression(t.ids.Generate(), n, t.now(), t.clock.Next())
	if err := t.store.CreateRegression(ctx, r); err != nil {
		return nil, &PersistenceError{Op: "create", NodeID: n.ID, Err: err}
	}
	return r, nil
}

// Extend applies n to r and persists it. r is updated only once the store
// write succeeds; r.Created is preserved.
func (t *Tracker) Extend(ctx context.Context, r *node.Regression, n node.Node) error {
	next := r.Clone()
	next.Apply(n, t.now(), t.clock.Next())
	if err := t.store.UpdateRegression(ctx, next); err != nil {
		return &PersistenceError{Op: "extend", NodeID: n.ID, Err: err}
	}
	*r = *next
	return nil
}

// Process routes one node through the regression state machine.
func (t *Tracker) Process(ctx context.Context, n node.Node) (Decision, error) {
	existing, err := t.Lookup(ctx, n)
	if err != nil {
		return Decision{}, err
	}

	if existing != nil && existing.Contains(n.ID) {
		return Decision{Outcome: OutcomeDuplicate, Regression: existing, Reason: ReasonDuplicateNode}, nil
	}

	switch {
	case existing == nil && n.Result == node.ResultPass:
		r, err := t.Create(ctx, n)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Outcome: OutcomeCreated, Regression: r}, nil

	case existing != nil && n.Result == node.ResultFail:
		if err := t.Extend(ctx, existing, n); err != nil {
			return Decision{}, err
		}
		return Decision{Outcome: OutcomeExtended, Regression: existing}, nil

	case n.Result == node.ResultPass:
		return Decision{Outcome: OutcomeIgnored, Regression: existing, Reason: ReasonAlreadyOpen}, nil

	case n.Result == node.ResultFail:
		return Decision{Outcome: OutcomeIgnored, Reason: ReasonNoRegression}, nil

	default:
		return Decision{Outcome: OutcomeIgnored, Regression: existing, Reason: ReasonOtherResult}, nil
	}
}
