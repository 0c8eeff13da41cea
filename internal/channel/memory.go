package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/roach88/kcibridge/internal/node"
)

// Memory is an in-process Channel. Published nodes are broadcast to every
// subscription whose filter matches.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu           sync.Mutex
	subs         map[string]*memorySubscription
	nextID       int
	closed       bool
	unsubscribes int
	blocked      atomic.Int64
}

// NewMemory creates an empty in-memory channel.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]*memorySubscription)}
}

// Subscribe registers a new subscription. Nodes published before the call
// are not delivered to it.
func (m *Memory) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("subscribe: %w", ErrClosed)
	}

	m.nextID++
	sub := &memorySubscription{
		id:     fmt.Sprintf("mem-%d", m.nextID),
		filter: filter,
		queue:  newNodeQueue(),
		owner:  m,
	}
	m.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers n to every matching subscription and returns how many
// received it.
func (m *Memory) Publish(n node.Node) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	delivered := 0
	for _, sub := range m.subs {
		if sub.filter.Matches(n) && sub.queue.enqueue(entry{node: n}) {
			delivered++
		}
	}
	return delivered
}

// PublishRaw decodes a JSON record and publishes it. Undecodable records are
// delivered to every subscription as *MalformedError.
func (m *Memory) PublishRaw(data []byte) int {
	n, err := node.Decode(data)
	if err == nil {
		return m.Publish(n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delivered := 0
	malformed := &MalformedError{Data: append([]byte(nil), data...), Err: err}
	for _, sub := range m.subs {
		if sub.queue.enqueue(entry{err: malformed}) {
			delivered++
		}
	}
	return delivered
}

// Close ends every subscription. Queued nodes can still be received.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, sub := range m.subs {
		sub.queue.close()
	}
}

// Active returns the number of live subscriptions.
func (m *Memory) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Unsubscribes returns how many times Unsubscribe has been called.
func (m *Memory) Unsubscribes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unsubscribes
}

// Blocked returns the number of Receive calls currently waiting for a node.
func (m *Memory) Blocked() int {
	return int(m.blocked.Load())
}

func (m *Memory) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribes++
	delete(m.subs, id)
}

type memorySubscription struct {
	id     string
	filter Filter
	queue  *nodeQueue
	owner  *Memory
}

func (s *memorySubscription) ID() string {
	return s.id
}

func (s *memorySubscription) Receive(ctx context.Context) (node.Node, error) {
	for {
		if e, ok := s.queue.tryDequeue(); ok {
			return e.node, e.err
		}
		if s.queue.drained() {
			return node.Node{}, ErrClosed
		}

		s.owner.blocked.Add(1)
		select {
		case <-ctx.Done():
			s.owner.blocked.Add(-1)
			return node.Node{}, ctx.Err()
		case <-s.queue.wait():
			s.owner.blocked.Add(-1)
		}
	}
}

func (s *memorySubscription) Unsubscribe() error {
	s.queue.close()
	s.owner.remove(s.id)
	return nil
}
