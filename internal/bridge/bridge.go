package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/kcibridge/internal/channel"
	"github.com/roach88/kcibridge/internal/node"
)

const tracerName = "github.com/roach88/kcibridge/internal/bridge"

// Handler processes one node. Returned errors should be *Error so the loop
// can tell fatal failures from droppable ones; any other error is logged
// and the loop continues.
type Handler interface {
	Handle(ctx context.Context, n node.Node) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, n node.Node) error

func (f HandlerFunc) Handle(ctx context.Context, n node.Node) error {
	return f(ctx, n)
}

// Flusher is implemented by handlers whose side effects must be made
// visible before the next node is retrieved.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Bridge is the single-threaded consumption loop.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, at most once
//   - Handler: called only from the Run goroutine
type Bridge struct {
	name    string
	ch      channel.Channel
	filter  channel.Filter
	handler Handler
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithName labels log lines and spans. Default: "bridge".
func WithName(name string) Option {
	return func(b *Bridge) {
		b.name = name
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// WithMetrics records per-node counters and durations.
func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// WithTracer sets the tracer used for per-node spans. Default: the global
// tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bridge) {
		b.tracer = t
	}
}

// New creates a Bridge that will subscribe to ch with filter and pass every
// retrieved node to handler.
func New(ch channel.Channel, filter channel.Filter, handler Handler, opts ...Option) *Bridge {
	b := &Bridge{
		name:    "bridge",
		ch:      ch,
		filter:  filter,
		handler: handler,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracerName)
	}
	b.logger = b.logger.With("bridge", b.name)
	return b
}

// Run subscribes and processes nodes until ctx is cancelled, the stream
// ends, or a fatal error occurs.
//
// Cancellation and end of stream return nil. Fatal errors are returned as
// *Error. The subscription is released exactly once before Run returns; an
// unsubscribe failure is joined into the result.
func (b *Bridge) Run(ctx context.Context) (err error) {
	sub, err := b.ch.Subscribe(ctx, b.filter)
	if err != nil {
		if ctx.Err() != nil {
			b.logger.Info("bridge stopping before subscribe: context cancelled")
			return nil
		}
		return NewTransportError("", "subscribe", err)
	}

	b.logger.Info("listening for events", "subscription", sub.ID(), "filter", b.filter.String())

	defer func() {
		if uerr := sub.Unsubscribe(); uerr != nil {
			b.logger.Error("unsubscribe failed", "subscription", sub.ID(), "error", uerr)
			err = errors.Join(err, NewTransportError("", "unsubscribe", uerr))
			return
		}
		b.logger.Info("unsubscribed", "subscription", sub.ID())
	}()

	for {
		// A node retrieved after cancellation would not be processed.
		if ctx.Err() != nil {
			b.logger.Info("bridge stopping: context cancelled")
			return nil
		}

		n, rerr := sub.Receive(ctx)
		if rerr != nil {
			var malformed *channel.MalformedError
			switch {
			case ctx.Err() != nil:
				b.logger.Info("bridge stopping: context cancelled")
				return nil
			case errors.Is(rerr, channel.ErrClosed):
				b.logger.Info("bridge stopping: stream closed")
				return nil
			case errors.As(rerr, &malformed):
				merr := NewMalformedError("decode record", malformed.Err)
				b.logger.Warn("skipping malformed record", "error", merr, "bytes", len(malformed.Data))
				b.metrics.Outcome(OutcomeMalformed)
				continue
			default:
				return NewTransportError("", "receive", rerr)
			}
		}

		// The in-flight node completes even if ctx is cancelled meanwhile.
		if perr := b.process(context.WithoutCancel(ctx), n); perr != nil {
			return perr
		}
	}
}

// process handles and flushes one node. Only fatal errors are returned.
func (b *Bridge) process(ctx context.Context, n node.Node) error {
	start := time.Now()
	b.metrics.nodeReceived()

	ctx, span := b.tracer.Start(ctx, b.name+".process",
		trace.WithAttributes(
			attribute.String("node.id", n.ID),
			attribute.String("node.name", n.Name),
			attribute.String("node.result", string(n.Result)),
		),
	)
	defer span.End()

	err := b.handler.Handle(ctx, n)
	if err == nil {
		if f, ok := b.handler.(Flusher); ok {
			if ferr := f.Flush(ctx); ferr != nil {
				err = NewTransportError(n.ID, "flush", ferr)
			}
		}
	}
	b.metrics.observe(time.Since(start))

	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if IsFatal(err) {
		b.metrics.Outcome(OutcomeFailed)
		b.logger.Error("fatal error processing node", "node_id", n.ID, "error", err)
		return err
	}

	if IsValidation(err) {
		b.metrics.Outcome(OutcomeDropped)
		b.logger.Error("dropping node", "node_id", n.ID, "error", err)
		return nil
	}

	if IsMalformed(err) {
		b.metrics.Outcome(OutcomeMalformed)
		b.logger.Warn("skipping malformed node", "node_id", n.ID, "error", err)
		return nil
	}

	// Unclassified handler errors are logged and the loop continues.
	b.metrics.Outcome(OutcomeFailed)
	b.logger.Error("error processing node", "node_id", n.ID, "error", err)
	return nil
}
