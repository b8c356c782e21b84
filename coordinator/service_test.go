package coordinator_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/channel"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/absmach/splitfed/pkg/redis"
	"github.com/absmach/splitfed/pkg/storage"
	"github.com/absmach/splitfed/pkg/transport"
	"github.com/absmach/splitfed/pkg/transport/broker"
	"github.com/absmach/splitfed/pkg/transport/datagram"
	"github.com/absmach/splitfed/pkg/transport/mem"
	"github.com/absmach/splitfed/pkg/transport/stream"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const totalSamples = 50000

var (
	shapes  = map[string][]int{"weight": {3}, "bias": {1}}
	weights = map[string]float64{"p1": 30000, "p2": 20000}
	plan    = message.SplitPlan{"p1": 6, "p2": 9}
)

// fixedModel ends every training pass with the same parameters and scores
// a snapshot by its bias.
type fixedModel struct {
	mu      sync.Mutex
	current message.Snapshot
	trained message.Snapshot
}

func newFixedModel(v float64) *fixedModel {
	return &fixedModel{current: message.Uniform(shapes, 0), trained: message.Uniform(shapes, v)}
}

func (m *fixedModel) Snapshot() message.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current.Clone()
}

func (m *fixedModel) Load(s message.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s.Clone()

	return nil
}

func (m *fixedModel) Train(context.Context, model.TrainParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.trained.Clone()

	return nil
}

func (m *fixedModel) Evaluate(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current["bias"].Data[0], nil
}

type roundScript struct {
	id       string
	value    float64
	train    float64
	commTime float64
}

// playRound acts as a peer for a single round.
func playRound(ctx context.Context, conn transport.Conn, s roundScript) error {
	ch := channel.New(conn)
	if err := ch.Send(ctx, message.Register{PeerID: s.id}); err != nil {
		return err
	}
	if _, err := ch.Await(ctx, message.KindInitialWeights); err != nil {
		return err
	}
	for _, msg := range []message.Message{
		message.TrainingTime{PeerID: s.id, Seconds: s.train},
		message.LocalWeights{PeerID: s.id, Snapshot: message.Uniform(shapes, s.value)},
		message.CommunicationTime{PeerID: s.id, Seconds: s.commTime},
	} {
		if err := ch.Send(ctx, msg); err != nil {
			return err
		}
	}
	_, err := ch.Await(ctx, message.KindDone)

	return err
}

func newService(hub coordinator.Hub, trainer *fixedModel, checkpoints coordinator.Checkpointer, reports storage.ReportRepository) coordinator.Service {
	cfg := coordinator.Config{
		Peers:   []string{"p1", "p2"},
		Weights: weights,
		Initial: message.Uniform(shapes, 0),
	}
	if trainer == nil {
		return coordinator.NewService(cfg, hub, fl.NewFedAvgAggregator(totalSamples), nil, checkpoints, reports, slog.Default())
	}

	return coordinator.NewService(cfg, hub, fl.NewFedAvgAggregator(totalSamples), trainer, checkpoints, reports, slog.Default())
}

type setup struct {
	hub  coordinator.Hub
	dial func(t *testing.T, id string) transport.Conn
}

func memSetup(t *testing.T, _ context.Context) setup {
	acc := mem.NewAcceptor()

	return setup{
		hub: coordinator.NewDirectHub(acc, slog.Default()),
		dial: func(_ *testing.T, id string) transport.Conn {
			return acc.Dial(id)
		},
	}
}

func streamSetup(t *testing.T, ctx context.Context) setup {
	l, err := stream.Listen("127.0.0.1:0")
	require.Nil(t, err)

	return setup{
		hub: coordinator.NewDirectHub(l, slog.Default()),
		dial: func(t *testing.T, _ string) transport.Conn {
			conn, err := stream.Dial(ctx, l.Addr())
			require.Nil(t, err)

			return conn
		},
	}
}

func datagramSetup(t *testing.T, ctx context.Context) setup {
	ep, err := datagram.Listen("127.0.0.1:0")
	require.Nil(t, err)

	return setup{
		hub: coordinator.NewDirectHub(ep, slog.Default()),
		dial: func(t *testing.T, _ string) transport.Conn {
			conn, err := datagram.Dial(ctx, ep.Addr())
			require.Nil(t, err)

			return conn
		},
	}
}

func redisSetup(t *testing.T, ctx context.Context) setup {
	mr := miniredis.RunT(t)
	url := "redis://" + mr.Addr()

	open := func(t *testing.T, pub, sub string) transport.Conn {
		ps, err := redis.NewPubSub(ctx, url, slog.Default())
		require.Nil(t, err)
		t.Cleanup(func() { ps.Disconnect(context.Background()) })

		conn, err := broker.Open(ctx, ps, pub, sub, slog.Default())
		require.Nil(t, err)

		return conn
	}

	return setup{
		hub: coordinator.NewSharedHub(open(t, broker.DefaultCoordinatorTopic, broker.DefaultPeerTopic), slog.Default()),
		dial: func(t *testing.T, _ string) transport.Conn {
			return open(t, broker.DefaultPeerTopic, broker.DefaultCoordinatorTopic)
		},
	}
}

func TestSingleRound(t *testing.T) {
	cases := []struct {
		desc  string
		setup func(t *testing.T, ctx context.Context) setup
	}{
		{desc: "in-process", setup: memSetup},
		{desc: "stream", setup: streamSetup},
		{desc: "datagram", setup: datagramSetup},
		{desc: "broker", setup: redisSetup},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			s := tc.setup(t, ctx)
			defer s.hub.Close()
			svc := newService(s.hub, nil, nil, nil)

			scripts := []roundScript{
				{id: "p1", value: 1, train: 0.5, commTime: 1.2},
				{id: "p2", value: 2, train: 0.7, commTime: 3.4},
			}
			g, gctx := errgroup.WithContext(ctx)
			for _, sc := range scripts {
				conn := s.dial(t, sc.id)
				defer conn.Close()
				g.Go(func() error {
					return playRound(gctx, conn, sc)
				})
			}

			peers, err := svc.Register(ctx)
			require.Nil(t, err)
			assert.ElementsMatch(t, []string{"p1", "p2"}, peers)

			require.Nil(t, svc.Initialize(ctx, plan))

			times, err := svc.CollectTrainingTimes(ctx)
			require.Nil(t, err)
			assert.Equal(t, map[string]float64{"p1": 0.5, "p2": 0.7}, times)

			global, err := svc.Aggregate(ctx)
			require.Nil(t, err)
			want := (1*30000.0 + 2*20000.0) / totalSamples
			for name, tensor := range global {
				assert.Equal(t, shapes[name], tensor.Shape)
				for _, v := range tensor.Data {
					assert.InDelta(t, want, v, 1e-12)
				}
			}

			comm, err := svc.Finish(ctx)
			require.Nil(t, err)
			assert.Equal(t, 3.4, comm)
			require.Nil(t, g.Wait())

			st, err := svc.Status(ctx)
			require.Nil(t, err)
			assert.Equal(t, coordinator.Finished, st.State)
			assert.Equal(t, []coordinator.State{
				coordinator.AwaitingPeers,
				coordinator.Initializing,
				coordinator.AwaitingTrainingTimes,
				coordinator.Aggregating,
				coordinator.Finishing,
				coordinator.Finished,
			}, st.History)
			assert.Equal(t, 3.4, st.CommunicationTime)
			assert.Equal(t, plan, st.Plan)
		})
	}
}

func TestSharedHubRequeuesOtherKinds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	peers, server := mem.Pipe("peers", "coordinator")
	hub := coordinator.NewSharedHub(server, slog.Default())
	defer hub.Close()

	for _, msg := range []message.Message{
		message.Register{PeerID: "p1"},
		message.Register{PeerID: "p1"},
		message.Register{PeerID: "intruder"},
		message.LocalWeights{PeerID: "p1", Snapshot: message.Uniform(shapes, 1)},
		message.TrainingTime{PeerID: "p1", Seconds: 1},
		message.Register{PeerID: "p2"},
		message.TrainingTime{PeerID: "intruder", Seconds: 9},
		message.LocalWeights{PeerID: "p2", Snapshot: message.Uniform(shapes, 2)},
		message.TrainingTime{PeerID: "p2", Seconds: 2},
	} {
		require.Nil(t, peers.Send(ctx, msg))
	}

	registered, err := hub.Register(ctx, []string{"p1", "p2"})
	require.Nil(t, err)
	assert.Equal(t, []string{"p1", "p2"}, registered)

	times, err := hub.Collect(ctx, message.KindTrainingTime)
	require.Nil(t, err)
	assert.Equal(t, message.TrainingTime{PeerID: "p1", Seconds: 1}, times["p1"])
	assert.Equal(t, message.TrainingTime{PeerID: "p2", Seconds: 2}, times["p2"])
	assert.Len(t, times, 2)

	uploads, err := hub.Collect(ctx, message.KindLocalWeights)
	require.Nil(t, err)
	assert.Len(t, uploads, 2)

	require.Nil(t, hub.Broadcast(ctx, message.Done{}))
	msg, err := peers.Receive(ctx)
	require.Nil(t, err)
	assert.Equal(t, message.Done{}, msg)
}

func TestDirectHubRejectsUnknownAndDuplicatePeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acc := mem.NewAcceptor()
	hub := coordinator.NewDirectHub(acc, slog.Default())
	defer hub.Close()

	register := func(id string) *mem.Conn {
		conn := acc.Dial(id)
		require.Nil(t, conn.Send(ctx, message.Register{PeerID: id}))

		return conn
	}
	intruder := register("intruder")
	register("p2")
	duplicate := register("p2")
	register("p1")

	peers, err := hub.Register(ctx, []string{"p1", "p2"})
	require.Nil(t, err)
	assert.Equal(t, []string{"p2", "p1"}, peers)

	for _, conn := range []*mem.Conn{intruder, duplicate} {
		_, err := conn.Receive(ctx)
		assert.Error(t, err)
	}
}

func TestServiceFailures(t *testing.T) {
	cases := []struct {
		desc  string
		peer  func(ctx context.Context, conn transport.Conn) error
		check func(t *testing.T, err error)
	}{
		{
			desc: "protocol mismatch",
			peer: func(ctx context.Context, conn transport.Conn) error {
				ch := channel.New(conn)
				if err := ch.Send(ctx, message.Register{PeerID: "p1"}); err != nil {
					return err
				}
				if _, err := ch.Expect(ctx, message.KindInitialWeights); err != nil {
					return err
				}

				return ch.Send(ctx, message.LocalWeights{PeerID: "p1", Snapshot: message.Uniform(shapes, 1)})
			},
			check: func(t *testing.T, err error) {
				var mismatch *channel.ProtocolMismatchError
				require.True(t, errors.As(err, &mismatch))
				assert.Equal(t, message.KindTrainingTime, mismatch.Expected)
				assert.Equal(t, message.KindLocalWeights, mismatch.Received)
				assert.ErrorIs(t, err, pkgerrors.ErrProtocolMismatch)
			},
		},
		{
			desc: "peer finishes early",
			peer: func(ctx context.Context, conn transport.Conn) error {
				ch := channel.New(conn)
				if err := ch.Send(ctx, message.Register{PeerID: "p1"}); err != nil {
					return err
				}
				if _, err := ch.Expect(ctx, message.KindInitialWeights); err != nil {
					return err
				}

				return ch.Send(ctx, message.Finish{})
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, pkgerrors.ErrFinished)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			acc := mem.NewAcceptor()
			hub := coordinator.NewDirectHub(acc, slog.Default())
			defer hub.Close()
			svc := coordinator.NewService(coordinator.Config{
				Peers:   []string{"p1"},
				Weights: map[string]float64{"p1": totalSamples},
				Initial: message.Uniform(shapes, 0),
			}, hub, fl.NewFedAvgAggregator(totalSamples), nil, nil, nil, slog.Default())

			conn := acc.Dial("p1")
			errs := make(chan error, 1)
			go func() { errs <- tc.peer(ctx, conn) }()

			_, err := svc.Register(ctx)
			require.Nil(t, err)
			require.Nil(t, svc.Initialize(ctx, message.SplitPlan{"p1": 9}))
			require.Nil(t, <-errs)

			_, err = svc.CollectTrainingTimes(ctx)
			tc.check(t, err)

			st, err := svc.Status(ctx)
			require.Nil(t, err)
			assert.Equal(t, coordinator.Failed, st.State)
		})
	}
}

func TestRegistrationTimeout(t *testing.T) {
	acc := mem.NewAcceptor()
	hub := coordinator.NewDirectHub(acc, slog.Default())
	defer hub.Close()
	svc := newService(hub, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	conn := acc.Dial("p1")
	require.Nil(t, conn.Send(context.Background(), message.Register{PeerID: "p1"}))

	_, err := svc.Register(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrRegistrationTimeout)
	assert.ErrorContains(t, err, "1 of 2")

	st, err := svc.Status(context.Background())
	require.Nil(t, err)
	assert.Equal(t, coordinator.Failed, st.State)
}

func TestPeerTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acc := mem.NewAcceptor()
	hub := coordinator.NewDirectHub(acc, slog.Default(), channel.WithWaitTimeout(50*time.Millisecond))
	defer hub.Close()
	svc := newService(hub, nil, nil, nil)

	for _, id := range []string{"p1", "p2"} {
		require.Nil(t, acc.Dial(id).Send(ctx, message.Register{PeerID: id}))
	}

	_, err := svc.Register(ctx)
	require.Nil(t, err)
	require.Nil(t, svc.Initialize(ctx, plan))

	_, err = svc.CollectTrainingTimes(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrPeerTimeout)
}

func TestInvalidCalls(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	acc := mem.NewAcceptor()
	hub := coordinator.NewDirectHub(acc, slog.Default())
	defer hub.Close()
	svc := newService(hub, nil, nil, nil)

	_, err := svc.Aggregate(ctx)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidStateTransition)

	for _, id := range []string{"p1", "p2"} {
		require.Nil(t, acc.Dial(id).Send(ctx, message.Register{PeerID: id}))
	}
	_, err = svc.Register(ctx)
	require.Nil(t, err)

	err = svc.Initialize(ctx, message.SplitPlan{"p1": 9})
	assert.ErrorIs(t, err, coordinator.ErrIncompletePlan)

	st, err := svc.Status(ctx)
	require.Nil(t, err)
	assert.Equal(t, coordinator.AwaitingPeers, st.State)

	_, err = svc.GetRound(ctx, 0)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	page, err := svc.ListRounds(ctx, 0, 10)
	require.Nil(t, err)
	assert.Empty(t, page.Rounds)
}
