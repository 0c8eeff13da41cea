package kcidb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Sink accepts validated revisions for downstream ingestion.
type Sink interface {
	Submit(ctx context.Context, rev Revision) error
}

// Subject returns the NATS subject for a KCIDB project and topic.
func Subject(projectID, topic string) string {
	return projectID + "." + topic
}

// DefaultFlushTimeout bounds Flush when the caller's context has no deadline.
const DefaultFlushTimeout = 10 * time.Second

// NATSSink publishes revisions as JSON on a NATS subject.
type NATSSink struct {
	nc           *nats.Conn
	subject      string
	flushTimeout time.Duration
}

// NATSSinkOption configures a NATSSink.
type NATSSinkOption func(*NATSSink)

// WithFlushTimeout sets the Flush bound used when the context carries no
// deadline. Non-positive values keep DefaultFlushTimeout.
func WithFlushTimeout(d time.Duration) NATSSinkOption {
	return func(s *NATSSink) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// NewNATSSink publishes to Subject(projectID, topic) over nc.
func NewNATSSink(nc *nats.Conn, projectID, topic string, opts ...NATSSinkOption) *NATSSink {
	s := &NATSSink{nc: nc, subject: Subject(projectID, topic), flushTimeout: DefaultFlushTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit publishes rev. The message may still be buffered until Flush.
func (s *NATSSink) Submit(ctx context.Context, rev Revision) error {
	if s.nc == nil || s.nc.IsClosed() {
		return fmt.Errorf("submit %s: nats not connected", rev.CheckoutID())
	}
	payload, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("submit %s: encode: %w", rev.CheckoutID(), err)
	}
	if err := s.nc.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("submit %s: %w", rev.CheckoutID(), err)
	}
	return nil
}

// Flush blocks until the server has acknowledged every published revision.
// nats requires a deadline, so a context without one is bounded by the
// sink's flush timeout.
func (s *NATSSink) Flush(ctx context.Context) error {
	if s.nc == nil || s.nc.IsClosed() {
		return fmt.Errorf("flush %s: nats not connected", s.subject)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.flushTimeout)
		defer cancel()
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", s.subject, err)
	}
	return nil
}

// WriterSink writes one JSON document per line. Used for dry runs.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

func NewWriterSink(w io.Writer) *WriterSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &WriterSink{enc: enc}
}

func (s *WriterSink) Submit(ctx context.Context, rev Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enc.Encode(rev); err != nil {
		return fmt.Errorf("submit %s: %w", rev.CheckoutID(), err)
	}
	s.n++
	return nil
}

// Count returns how many revisions were written.
func (s *WriterSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
