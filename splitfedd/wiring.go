package splitfedd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/channel"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/absmach/splitfed/pkg/model/linear"
	"github.com/absmach/splitfed/pkg/model/wasm"
	"github.com/absmach/splitfed/pkg/mqtt"
	"github.com/absmach/splitfed/pkg/redis"
	"github.com/absmach/splitfed/pkg/transport"
	"github.com/absmach/splitfed/pkg/transport/broker"
	"github.com/absmach/splitfed/pkg/transport/datagram"
	"github.com/absmach/splitfed/pkg/transport/stream"
)

const (
	testSamples   = 500
	trainNoise    = 0.05
	brokerTimeout = 30 * time.Second
)

var errUnknownTransport = errors.New("unknown transport")

func channelOptions(cluster splitfed.ClusterConfig) []channel.Option {
	if d := cluster.WaitTimeout(); d > 0 {
		return []channel.Option{channel.WithWaitTimeout(d)}
	}

	return nil
}

func datagramOptions(cluster splitfed.ClusterConfig, logger *slog.Logger) []datagram.Option {
	opts := []datagram.Option{datagram.WithLogger(logger)}
	if cluster.Cluster.DatagramStrict {
		opts = append(opts, datagram.WithStrict())
	}

	return opts
}

// newHub binds the coordinator side of the configured transport.
func newHub(ctx context.Context, cluster splitfed.ClusterConfig, clientID string, logger *slog.Logger) (coordinator.Hub, func(), error) {
	opts := channelOptions(cluster)

	switch cluster.Cluster.Transport {
	case transport.Stream:
		l, err := stream.Listen(cluster.Cluster.Address)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("listening for peers", slog.String("transport", transport.Stream), slog.String("address", l.Addr()))

		return coordinator.NewDirectHub(l, logger, opts...), func() {}, nil
	case transport.Datagram:
		e, err := datagram.Listen(cluster.Cluster.Address, datagramOptions(cluster, logger)...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("listening for peers", slog.String("transport", transport.Datagram), slog.String("address", e.Addr()))

		return coordinator.NewDirectHub(e, logger, opts...), func() {}, nil
	case transport.Broker:
		ps, disconnect, err := newPubSub(ctx, cluster.Broker, clientID, logger)
		if err != nil {
			return nil, nil, err
		}
		conn, err := broker.Open(ctx, ps, cluster.Broker.CoordinatorTopic, cluster.Broker.PeerTopic, logger)
		if err != nil {
			disconnect()

			return nil, nil, err
		}
		logger.Info("subscribed for peers", slog.String("backend", cluster.Broker.Backend), slog.String("topic", cluster.Broker.PeerTopic))

		return coordinator.NewSharedHub(conn, logger, opts...), disconnect, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", errUnknownTransport, cluster.Cluster.Transport)
	}
}

// dialCoordinator opens the peer side of the configured transport.
func dialCoordinator(ctx context.Context, cluster splitfed.ClusterConfig, peerID string, logger *slog.Logger) (transport.Conn, func(), error) {
	switch cluster.Cluster.Transport {
	case transport.Stream:
		conn, err := stream.Dial(ctx, cluster.Cluster.Address)
		if err != nil {
			return nil, nil, err
		}

		return conn, func() {}, nil
	case transport.Datagram:
		conn, err := datagram.Dial(ctx, cluster.Cluster.Address, datagramOptions(cluster, logger)...)
		if err != nil {
			return nil, nil, err
		}

		return conn, func() {}, nil
	case transport.Broker:
		ps, disconnect, err := newPubSub(ctx, cluster.Broker, peerID, logger)
		if err != nil {
			return nil, nil, err
		}
		conn, err := broker.Open(ctx, ps, cluster.Broker.PeerTopic, cluster.Broker.CoordinatorTopic, logger)
		if err != nil {
			disconnect()

			return nil, nil, err
		}

		return conn, disconnect, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", errUnknownTransport, cluster.Cluster.Transport)
	}
}

func newPubSub(ctx context.Context, cfg splitfed.BrokerSection, clientID string, logger *slog.Logger) (broker.PubSub, func(), error) {
	switch cfg.Backend {
	case splitfed.BackendMQTT:
		ps, err := mqtt.NewPubSub(mqtt.Config{
			URL:      cfg.URL,
			ID:       clientID,
			Username: cfg.Username,
			Password: cfg.Password,
			QoS:      byte(cfg.QoS),
			Timeout:  brokerTimeout,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
		}

		return ps, disconnectFunc(ps, logger), nil
	case splitfed.BackendRedis:
		ps, err := redis.NewPubSub(ctx, cfg.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis pubsub: %w", err)
		}

		return ps, disconnectFunc(ps, logger), nil
	default:
		return nil, nil, fmt.Errorf("unsupported broker backend %q", cfg.Backend)
	}
}

type disconnecter interface {
	Disconnect(ctx context.Context) error
}

func disconnectFunc(d disconnecter, logger *slog.Logger) func() {
	return func() {
		if err := d.Disconnect(context.Background()); err != nil {
			logger.Warn("failed to disconnect from broker", slog.Any("error", err))
		}
	}
}

// newTrainer loads the Wasm model at wasmFile or, when it is empty, the
// built-in linear model holding samples local training samples.
func newTrainer(ctx context.Context, cluster splitfed.ClusterConfig, wasmFile string, samples int, dataSeed uint64, logger *slog.Logger) (model.Trainable, func(), error) {
	if wasmFile == "" {
		m := linear.New(linear.Config{
			Features:    cluster.Training.Features,
			Samples:     samples,
			TestSamples: testSamples,
			TruthSeed:   cluster.Training.Seed,
			DataSeed:    dataSeed,
			Noise:       trainNoise,
		})

		return m, func() {}, nil
	}

	bin, err := os.ReadFile(wasmFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read wasm model: %w", err)
	}
	initial := message.Uniform(linear.Shapes(cluster.Training.Features), 0)
	r, err := wasm.New(ctx, bin, initial, logger)
	if err != nil {
		return nil, nil, err
	}

	return r, func() {
		if err := r.Close(context.Background()); err != nil {
			logger.Warn("failed to close wasm runtime", slog.Any("error", err))
		}
	}, nil
}
