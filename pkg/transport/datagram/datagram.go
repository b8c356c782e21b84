// Package datagram implements the connectionless transport. A message is
// sent as one datagram per encoded byte followed by an end marker.
package datagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
)

const (
	maxDatagramSize = 65536
	readBufferSize  = 8 << 20
)

var errEndpointClosed = errors.New("datagram endpoint closed")

type Option func(*Endpoint)

// WithStrict makes a read failure in the middle of a message surface as
// ErrTransport. By default the partial buffer is delivered as it is.
func WithStrict() Option {
	return func(e *Endpoint) {
		e.strict = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Endpoint) {
		e.logger = logger
	}
}

type result struct {
	data []byte
	err  error
}

// Endpoint owns one UDP socket and demultiplexes incoming datagrams by
// source address.
type Endpoint struct {
	pc        *net.UDPConn
	connected bool
	strict    bool
	logger    *slog.Logger

	mu      sync.Mutex
	peers   map[string]*Conn
	accepts *transport.Queue[transport.Conn]
	done    chan struct{}
}

var (
	_ transport.Acceptor = (*Endpoint)(nil)
	_ transport.Conn     = (*Conn)(nil)
)

// Listen binds addr and announces every new source through Accept.
func Listen(addr string, opts ...Option) (*Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	pc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return newEndpoint(pc, false, opts), nil
}

// Dial returns a connection bound to a single remote address. The remote
// learns about it on the first datagram sent.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	pc, ok := c.(*net.UDPConn)
	if !ok {
		c.Close()

		return nil, fmt.Errorf("unexpected connection type %T", c)
	}

	e := newEndpoint(pc, true, opts)

	return e.peer(pc.RemoteAddr().(*net.UDPAddr), false), nil
}

func newEndpoint(pc *net.UDPConn, connected bool, opts []Option) *Endpoint {
	e := &Endpoint{
		pc:        pc,
		connected: connected,
		logger:    slog.Default(),
		peers:     make(map[string]*Conn),
		accepts:   transport.NewQueue[transport.Conn](),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := pc.SetReadBuffer(readBufferSize); err != nil {
		e.logger.Warn("failed to grow socket read buffer", slog.String("error", err.Error()))
	}
	go e.readLoop()

	return e
}

func (e *Endpoint) Accept(ctx context.Context) (transport.Conn, error) {
	c, err := e.accepts.Get(ctx)
	if errors.Is(err, transport.ErrQueueClosed) {
		return nil, errEndpointClosed
	}

	return c, err
}

// Addr returns the bound local address.
func (e *Endpoint) Addr() string {
	return e.pc.LocalAddr().String()
}

// Close releases the socket and waits for pending peers to be flushed.
func (e *Endpoint) Close() error {
	err := e.pc.Close()
	<-e.done

	return err
}

func (e *Endpoint) peer(addr *net.UDPAddr, announce bool) *Conn {
	key := addr.String()

	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.peers[key]
	if ok {
		return c
	}
	c = &Conn{
		ep:    e,
		addr:  addr,
		inbox: transport.NewQueue[result](),
	}
	e.peers[key] = c
	if announce {
		e.accepts.Put(c)
	}

	return c
}

func (e *Endpoint) readLoop() {
	defer close(e.done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := e.pc.ReadFromUDP(buf)
		if err != nil {
			e.shutdown(err)

			return
		}

		var c *Conn
		if e.connected {
			c = e.peer(e.pc.RemoteAddr().(*net.UDPAddr), false)
		} else {
			c = e.peer(addr, true)
		}

		data, complete, err := c.asm.Feed(buf[:n])
		switch {
		case err != nil && e.strict:
			c.asm.Flush()
			c.inbox.Put(result{err: errors.Join(pkgerrors.ErrTransport, err)})
		case err != nil:
			e.logger.Warn("dropping stray datagram", slog.String("source", c.RemoteID()), slog.Int("size", n))
		case complete:
			c.inbox.Put(result{data: data})
		}
	}
}

func (e *Endpoint) shutdown(cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.peers {
		if c.asm.Pending() > 0 {
			partial := c.asm.Flush()
			if e.strict {
				c.inbox.Put(result{err: errors.Join(pkgerrors.ErrTransport, cause)})
			} else {
				c.inbox.Put(result{data: partial})
			}
		}
		c.inbox.Close()
	}
	e.accepts.Close()
}

// Conn is the view of an Endpoint restricted to one remote address.
type Conn struct {
	ep    *Endpoint
	addr  *net.UDPAddr
	inbox *transport.Queue[result]
	asm   Reassembler
	mu    sync.Mutex
}

func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, d := range Fragment(data) {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if c.ep.connected {
			_, err = c.ep.pc.Write(d)
		} else {
			_, err = c.ep.pc.WriteToUDP(d, c.addr)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Conn) Receive(ctx context.Context) (message.Message, error) {
	r, err := c.inbox.Get(ctx)
	if errors.Is(err, transport.ErrQueueClosed) {
		return nil, errEndpointClosed
	}
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}

	return message.Decode(r.data)
}

func (c *Conn) RemoteID() string {
	return c.addr.String()
}

// Close closes the shared socket when the connection was created by Dial.
// Connections handed out by Accept leave the endpoint open.
func (c *Conn) Close() error {
	if c.ep.connected {
		return c.ep.Close()
	}
	c.inbox.Close()

	return nil
}
