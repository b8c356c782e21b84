// Package broker implements the topic-based transport. Outbound messages
// are published on one topic. Inbound messages arrive on a subscription
// callback and are queued in arrival order.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
)

const (
	// DefaultCoordinatorTopic is where the coordinator publishes.
	DefaultCoordinatorTopic = "fedserver"
	// DefaultPeerTopic is where peers publish.
	DefaultPeerTopic = "fedadapt"
)

var errConnClosed = errors.New("broker connection closed")

// Handler receives the raw payload of every message on a subscribed topic.
type Handler = func(topic string, payload []byte) error

// PubSub is satisfied by the MQTT and Redis backends.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
}

var (
	_ transport.Conn    = (*Conn)(nil)
	_ transport.Matcher = (*Conn)(nil)
)

type Conn struct {
	ps       PubSub
	pubTopic string
	subTopic string
	inbox    *transport.Queue[message.Message]
	logger   *slog.Logger
}

// Open subscribes to subTopic and returns a connection that publishes on
// pubTopic. The subscription is active when Open returns.
func Open(ctx context.Context, ps PubSub, pubTopic, subTopic string, logger *slog.Logger) (*Conn, error) {
	c := &Conn{
		ps:       ps,
		pubTopic: pubTopic,
		subTopic: subTopic,
		inbox:    transport.NewQueue[message.Message](),
		logger:   logger,
	}

	if err := ps.Subscribe(ctx, subTopic, c.handle); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subTopic, err)
	}

	return c, nil
}

func (c *Conn) handle(topic string, payload []byte) error {
	msg, err := message.Decode(payload)
	if err != nil {
		return fmt.Errorf("dropping undecodable message on %s: %w", topic, err)
	}
	c.inbox.Put(msg)

	return nil
}

func (c *Conn) Send(ctx context.Context, msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}

	return c.ps.Publish(ctx, c.pubTopic, data)
}

func (c *Conn) Receive(ctx context.Context) (message.Message, error) {
	return c.ReceiveMatch(ctx, nil)
}

func (c *Conn) ReceiveMatch(ctx context.Context, match func(message.Message) bool) (message.Message, error) {
	msg, err := c.inbox.Take(ctx, match)
	if errors.Is(err, transport.ErrQueueClosed) {
		return nil, errConnClosed
	}

	return msg, err
}

// Pending is the number of received messages not yet consumed.
func (c *Conn) Pending() int {
	return c.inbox.Len()
}

func (c *Conn) RemoteID() string {
	return c.subTopic
}

// Close unsubscribes. The PubSub itself stays connected.
func (c *Conn) Close() error {
	c.inbox.Close()

	if err := c.ps.Unsubscribe(context.Background(), c.subTopic); err != nil {
		c.logger.Warn("failed to unsubscribe", slog.String("topic", c.subTopic), slog.Any("error", err))

		return err
	}

	return nil
}
