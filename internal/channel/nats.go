package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/roach88/kcibridge/internal/node"
)

// DialOptions configures the NATS connection used by NATSChannel and the
// KCIDB sink.
type DialOptions struct {
	// Name identifies this client to the server.
	Name string

	// Token authenticates the connection. Empty means no auth.
	Token string

	// ReconnectWait is the delay between reconnect attempts. Zero uses 2s.
	ReconnectWait time.Duration

	Logger *slog.Logger
}

// DialNATS connects to the NATS server at url. Reconnects are unlimited.
func DialNATS(url string, opts DialOptions) (*nats.Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wait := opts.ReconnectWait
	if wait == 0 {
		wait = 2 * time.Second
	}

	natsOpts := []nats.Option{
		nats.Name(opts.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if opts.Token != "" {
		natsOpts = append(natsOpts, nats.Token(opts.Token))
	}

	nc, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return nc, nil
}

// NATSChannel reads node notifications published as JSON on a NATS subject.
// Filtering happens client side after decoding.
type NATSChannel struct {
	nc      *nats.Conn
	subject string
	seq     atomic.Uint64
}

// NewNATSChannel wraps an established connection.
func NewNATSChannel(nc *nats.Conn, subject string) *NATSChannel {
	return &NATSChannel{nc: nc, subject: subject}
}

// Subscribe opens a synchronous subscription on the channel's subject.
func (c *NATSChannel) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.nc == nil || c.nc.IsClosed() {
		return nil, fmt.Errorf("subscribe %s: %w", c.subject, ErrClosed)
	}

	sub, err := c.nc.SubscribeSync(c.subject)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	id := fmt.Sprintf("%s#%d", c.subject, c.seq.Add(1))
	return &natsSubscription{id: id, sub: sub, filter: filter}, nil
}

type natsSubscription struct {
	id     string
	sub    *nats.Subscription
	filter Filter
}

func (s *natsSubscription) ID() string {
	return s.id
}

func (s *natsSubscription) Receive(ctx context.Context) (node.Node, error) {
	for {
		msg, err := s.sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return node.Node{}, ctxErr
			}
			if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
				return node.Node{}, ErrClosed
			}
			return node.Node{}, fmt.Errorf("receive from %s: %w", s.sub.Subject, err)
		}

		n, err := node.Decode(msg.Data)
		if err != nil {
			return node.Node{}, &MalformedError{Data: msg.Data, Err: err}
		}
		if s.filter.Matches(n) {
			return n, nil
		}
	}
}

func (s *natsSubscription) Unsubscribe() error {
	if err := s.sub.Unsubscribe(); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
			return nil
		}
		return fmt.Errorf("unsubscribe %s: %w", s.sub.Subject, err)
	}
	return nil
}
