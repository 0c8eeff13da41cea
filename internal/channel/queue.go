package channel

import (
	"sync"

	"github.com/roach88/kcibridge/internal/node"
)

// entry is one queued delivery: a node, or a decode failure.
type entry struct {
	node node.Node
	err  error
}

// nodeQueue is a thread-safe unbounded FIFO queue.
//
// Publishers never block on a slow subscriber. The signal channel enables
// context-aware waiting in Receive.
type nodeQueue struct {
	mu      sync.Mutex
	entries []entry
	closed  bool
	signal  chan struct{} // Signals availability (buffered, size 1)
}

func newNodeQueue() *nodeQueue {
	return &nodeQueue{
		entries: make([]entry, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// enqueue adds an entry to the back of the queue.
// Returns false if the queue is closed.
func (q *nodeQueue) enqueue(e entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.entries = append(q.entries, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// tryDequeue removes and returns the front entry without blocking.
func (q *nodeQueue) tryDequeue() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return entry{}, false
	}

	e := q.entries[0]
	q.entries[0] = entry{} // release references held by the backing array

	if len(q.entries) == 1 {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[1:]
	}

	return e, true
}

// wait returns a channel that signals when entries may be available.
// It is closed once the queue is closed.
func (q *nodeQueue) wait() <-chan struct{} {
	return q.signal
}

// drained reports whether the queue is closed and empty.
func (q *nodeQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.entries) == 0
}

// close signals that no more entries will be enqueued and wakes waiters.
func (q *nodeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
