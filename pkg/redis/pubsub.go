// Package redis is a publish/subscribe backend on top of Redis channels.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

var (
	errEmptyTopic    = errors.New("empty topic")
	errNotSubscribed = errors.New("not subscribed to topic")
	errAlreadyExists = errors.New("already subscribed to topic")
)

// Handler receives the raw payload of every message on a subscribed topic.
type Handler = func(topic string, payload []byte) error

type PubSub interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Unsubscribe(ctx context.Context, topic string) error
	Disconnect(ctx context.Context) error
}

type pubsub struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*subscription
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

// NewPubSub connects to the server described by url, for example
// redis://localhost:6379/0.
func NewPubSub(ctx context.Context, url string, logger *slog.Logger) (PubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()

		return nil, errors.Join(errors.New("failed to connect to redis"), err)
	}
	logger.Info("Redis connection established", slog.String("addr", opts.Addr))

	return &pubsub{
		client: client,
		logger: logger,
		topics: make(map[string]*subscription),
	}, nil
}

func (ps *pubsub) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errEmptyTopic
	}

	return ps.client.Publish(ctx, topic, payload).Err()
}

// Subscribe returns once the server confirmed the subscription, so no
// message published afterwards is missed.
func (ps *pubsub) Subscribe(ctx context.Context, topic string, handler Handler) error {
	if topic == "" {
		return errEmptyTopic
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.topics[topic]; ok {
		return fmt.Errorf("%w: %s", errAlreadyExists, topic)
	}

	sub := ps.client.Subscribe(ctx, topic)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()

		return err
	}

	s := &subscription{ps: sub, done: make(chan struct{})}
	ps.topics[topic] = s
	go ps.dispatch(s, handler)

	return nil
}

func (ps *pubsub) dispatch(s *subscription, handler Handler) {
	defer close(s.done)

	for msg := range s.ps.Channel() {
		if err := handler(msg.Channel, []byte(msg.Payload)); err != nil {
			ps.logger.Warn(fmt.Sprintf("Failed to handle Redis message: %s", err))
		}
	}
}

func (ps *pubsub) Unsubscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return errEmptyTopic
	}

	ps.mu.Lock()
	s, ok := ps.topics[topic]
	delete(ps.topics, topic)
	ps.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", errNotSubscribed, topic)
	}

	err := s.ps.Close()
	<-s.done

	return err
}

func (ps *pubsub) Disconnect(ctx context.Context) error {
	ps.mu.Lock()
	topics := ps.topics
	ps.topics = make(map[string]*subscription)
	ps.mu.Unlock()

	var errs []error
	for _, s := range topics {
		if err := s.ps.Close(); err != nil {
			errs = append(errs, err)
		}
		<-s.done
	}
	if err := ps.client.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
