// Package transport defines the connection capability shared by the stream,
// datagram and broker transports.
package transport

import (
	"context"

	"github.com/absmach/splitfed/pkg/message"
)

const (
	Stream   = "stream"
	Datagram = "datagram"
	Broker   = "broker"
)

// Conn exchanges whole messages with one remote endpoint.
type Conn interface {
	Send(ctx context.Context, msg message.Message) error
	Receive(ctx context.Context) (message.Message, error)
	RemoteID() string
	Close() error
}

// Acceptor hands out a Conn for every new remote endpoint.
type Acceptor interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
}

// Matcher is implemented by connections backed by a shared inbound queue.
// ReceiveMatch returns the oldest queued message for which match reports
// true and leaves every other message queued in its original order.
type Matcher interface {
	ReceiveMatch(ctx context.Context, match func(message.Message) bool) (message.Message, error)
}

// Valid reports whether name is one of the supported transports.
func Valid(name string) bool {
	switch name {
	case Stream, Datagram, Broker:
		return true
	default:
		return false
	}
}
