// Package stream implements the connection-oriented transport. Every
// message is one frame: a 4-byte big-endian length followed by the encoded
// message.
package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
)

const (
	headerSize          = 4
	DefaultMaxFrameSize = 512 << 20
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	errListenerClosed = errors.New("listener closed")
)

var _ transport.Conn = (*Conn)(nil)

type Option func(*options)

type options struct {
	maxFrameSize uint32
}

func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

func newOptions(opts []Option) options {
	o := options{maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

type Conn struct {
	conn         net.Conn
	maxFrameSize uint32
	readMu       sync.Mutex
	writeMu      sync.Mutex
}

func newConn(c net.Conn, o options) *Conn {
	return &Conn{
		conn:         c,
		maxFrameSize: o.maxFrameSize,
	}
}

// Dial connects to a listening coordinator.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	return newConn(c, newOptions(opts)), nil
}

func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}
	if uint64(len(data)) > uint64(c.maxFrameSize) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}

	frame := make([]byte, headerSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[headerSize:], data)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := watch(ctx, c.conn.SetWriteDeadline)
	defer stop()

	if _, err := c.conn.Write(frame); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		return err
	}

	return nil
}

func (c *Conn) Receive(ctx context.Context) (message.Message, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	stop := watch(ctx, c.conn.SetReadDeadline)
	defer stop()

	data, err := c.readFrame()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, err
	}

	return message.Decode(data)
}

func (c *Conn) readFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > c.maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, err
	}

	return data, nil
}

func (c *Conn) RemoteID() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// watch interrupts blocking I/O when ctx is done by moving the deadline
// into the past. The returned func must be called once the I/O returns.
func watch(ctx context.Context, setDeadline func(time.Time) error) func() {
	if ctx.Done() == nil {
		return func() {}
	}

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			_ = setDeadline(time.Unix(1, 0))
		case <-done:
		}
	}()

	return func() {
		close(done)
		<-exited
		_ = setDeadline(time.Time{})
	}
}

// Listener accepts peer connections in the background.
type Listener struct {
	ln    net.Listener
	opts  options
	conns *transport.Queue[transport.Conn]

	mu  sync.Mutex
	err error
}

var _ transport.Acceptor = (*Listener)(nil)

func Listen(addr string, opts ...Option) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	l := &Listener{
		ln:    ln,
		opts:  newOptions(opts),
		conns: transport.NewQueue[transport.Conn](),
	}
	go l.acceptLoop()

	return l, nil
}

func (l *Listener) acceptLoop() {
	for {
		c, err := l.ln.Accept()
		if err != nil {
			l.mu.Lock()
			l.err = err
			l.mu.Unlock()
			l.conns.Close()

			return
		}
		l.conns.Put(newConn(c, l.opts))
	}
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	c, err := l.conns.Get(ctx)
	if errors.Is(err, transport.ErrQueueClosed) {
		l.mu.Lock()
		defer l.mu.Unlock()

		return nil, errors.Join(errListenerClosed, l.err)
	}

	return c, err
}

// Addr returns the bound address, useful when listening on port 0.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

func (l *Listener) Close() error {
	return l.ln.Close()
}
