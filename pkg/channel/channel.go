// Package channel adds expected-kind enforcement on top of a transport
// connection.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
)

// ProtocolMismatchError reports a message whose kind differs from the one
// the receiver was waiting for.
type ProtocolMismatchError struct {
	Expected message.Kind
	Received message.Kind
}

func (e *ProtocolMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, received %s", pkgerrors.ErrProtocolMismatch, e.Expected, e.Received)
}

func (e *ProtocolMismatchError) Unwrap() error {
	return pkgerrors.ErrProtocolMismatch
}

type Option func(*Channel)

// WithWaitTimeout bounds every receive. A receive that stalls longer than d
// fails with ErrPeerTimeout. Zero waits until the caller's context is done.
func WithWaitTimeout(d time.Duration) Option {
	return func(c *Channel) {
		c.waitTimeout = d
	}
}

type Channel struct {
	conn        transport.Conn
	waitTimeout time.Duration
}

func New(conn transport.Conn, opts ...Option) *Channel {
	c := &Channel{conn: conn}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Channel) RemoteID() string {
	return c.conn.RemoteID()
}

func (c *Channel) Send(ctx context.Context, msg message.Message) error {
	if err := c.conn.Send(ctx, msg); err != nil {
		return wrap(ctx, err)
	}

	return nil
}

// Receive returns the next message whatever its kind.
func (c *Channel) Receive(ctx context.Context) (message.Message, error) {
	return c.receive(ctx, func(rctx context.Context) (message.Message, error) {
		return c.conn.Receive(rctx)
	})
}

// Expect receives the next message and checks its kind. Finish is returned
// without error regardless of kind so the caller can stop.
func (c *Channel) Expect(ctx context.Context, kind message.Kind) (message.Message, error) {
	msg, err := c.Receive(ctx)
	if err != nil {
		return nil, err
	}

	return check(msg, kind)
}

// Await is Expect for connections that share an inbound queue between
// several logical senders. Messages of other kinds stay queued in arrival
// order for later calls. Connections without a shared queue fall back to
// Expect.
func (c *Channel) Await(ctx context.Context, kind message.Kind) (message.Message, error) {
	m, ok := c.conn.(transport.Matcher)
	if !ok {
		return c.Expect(ctx, kind)
	}

	match := func(msg message.Message) bool {
		return msg.Kind() == kind || msg.Kind() == message.KindFinish
	}

	return c.receive(ctx, func(rctx context.Context) (message.Message, error) {
		return m.ReceiveMatch(rctx, match)
	})
}

func (c *Channel) Close() error {
	return c.conn.Close()
}

func (c *Channel) receive(ctx context.Context, recv func(context.Context) (message.Message, error)) (message.Message, error) {
	rctx := ctx
	if c.waitTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, c.waitTimeout)
		defer cancel()
	}

	msg, err := recv(rctx)
	if err != nil {
		if ctx.Err() == nil && rctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s after %s", pkgerrors.ErrPeerTimeout, c.conn.RemoteID(), c.waitTimeout)
		}

		return nil, wrap(ctx, err)
	}

	return msg, nil
}

func check(msg message.Message, kind message.Kind) (message.Message, error) {
	if msg.Kind() == kind || msg.Kind() == message.KindFinish {
		return msg, nil
	}

	return nil, &ProtocolMismatchError{Expected: kind, Received: msg.Kind()}
}

func wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, pkgerrors.ErrTransport) {
		return err
	}

	return errors.Join(pkgerrors.ErrTransport, err)
}
