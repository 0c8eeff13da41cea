package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/kcibridge/internal/node"
)

// ErrClosed is returned by Receive once a subscription can never yield
// another node: it was unsubscribed, its channel was closed, or a finite
// stream is exhausted.
var ErrClosed = errors.New("subscription closed")

// Channel creates filtered subscriptions over the notification stream.
type Channel interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

// Subscription is a live, filtered handle over the stream.
//
// Receive blocks until the next matching node arrives, ctx is done (returns
// ctx.Err()), or the subscription ends (returns ErrClosed). A record that
// cannot be decoded is reported as *MalformedError and the subscription stays
// usable.
type Subscription interface {
	ID() string
	Receive(ctx context.Context) (node.Node, error)
	Unsubscribe() error
}

// MalformedError reports a stream record rejected at the decode boundary.
type MalformedError struct {
	Data []byte
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed node record: %v", e.Err)
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// Filter is a set of exact-match constraints on node fields, for example
// {"state": "done", "name": "checkout"}. An empty filter matches everything.
type Filter map[string]string

// Matches reports whether every constraint equals the node's field value.
// A constraint on an unknown field never matches.
func (f Filter) Matches(n node.Node) bool {
	for field, want := range f {
		got, ok := n.Field(field)
		if !ok || got != want {
			return false
		}
	}
	return true
}

// String renders the filter with sorted keys for logs.
func (f Filter) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return "{" + strings.Join(parts, ",") + "}"
}
