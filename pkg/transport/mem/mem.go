// Package mem provides an in-process transport used to drive the
// coordinator and peers without sockets.
package mem

import (
	"context"
	"errors"
	"sync"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
)

var errClosed = errors.New("mem: connection closed")

var _ transport.Matcher = (*Conn)(nil)

type Conn struct {
	remote string
	in     *transport.Queue[message.Message]
	out    *transport.Queue[message.Message]
	once   sync.Once
}

// Pipe returns two connected ends. Messages are passed by value without
// encoding.
func Pipe(localID, remoteID string) (*Conn, *Conn) {
	a := transport.NewQueue[message.Message]()
	b := transport.NewQueue[message.Message]()

	return &Conn{remote: remoteID, in: a, out: b}, &Conn{remote: localID, in: b, out: a}
}

func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.out.Put(msg)

	return nil
}

func (c *Conn) Receive(ctx context.Context) (message.Message, error) {
	return c.ReceiveMatch(ctx, nil)
}

func (c *Conn) ReceiveMatch(ctx context.Context, match func(message.Message) bool) (message.Message, error) {
	msg, err := c.in.Take(ctx, match)
	if errors.Is(err, transport.ErrQueueClosed) {
		return nil, errClosed
	}

	return msg, err
}

func (c *Conn) RemoteID() string {
	return c.remote
}

func (c *Conn) Close() error {
	c.once.Do(func() {
		c.in.Close()
		c.out.Close()
	})

	return nil
}

// Acceptor hands out the server ends of pipes created with Dial.
type Acceptor struct {
	conns *transport.Queue[transport.Conn]
}

func NewAcceptor() *Acceptor {
	return &Acceptor{conns: transport.NewQueue[transport.Conn]()}
}

// Dial creates a pipe and queues its server end for Accept.
func (a *Acceptor) Dial(peerID string) *Conn {
	client, server := Pipe(peerID, "coordinator")
	a.conns.Put(server)

	return client
}

func (a *Acceptor) Accept(ctx context.Context) (transport.Conn, error) {
	return a.conns.Get(ctx)
}

func (a *Acceptor) Close() error {
	a.conns.Close()

	return nil
}
