package peer_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/splitfed/peer"
	"github.com/absmach/splitfed/pkg/channel"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/absmach/splitfed/pkg/model/linear"
	"github.com/absmach/splitfed/pkg/model/mocks"
	"github.com/absmach/splitfed/pkg/transport/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	shapes = map[string][]int{"weight": {2}, "bias": {1}}
	cfg    = peer.Config{ID: "p1", LearningRate: 0.05, BatchSize: 20, ModelLen: 10}
)

func TestAgentRound(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, server := mem.Pipe("p1", "coordinator")
	coord := channel.New(server)

	initial := message.Uniform(shapes, 0)
	trained := message.Uniform(shapes, 0.5)
	m := new(mocks.MockTrainable)
	m.On("Load", initial).Return(nil)
	m.On("Train", mock.Anything, model.TrainParams{Round: 0, SplitLayer: 9, LearningRate: 0.05, BatchSize: 20}).Return(nil)
	m.On("Snapshot").Return(trained)

	agent := peer.NewAgent(cfg, client, m, slog.Default())
	defer agent.Close()

	require.Nil(t, agent.Register(ctx))
	msg, err := coord.Expect(ctx, message.KindRegister)
	require.Nil(t, err)
	assert.Equal(t, message.Register{PeerID: "p1"}, msg)

	require.Nil(t, coord.Send(ctx, message.InitialWeights{Snapshot: initial, Plan: message.SplitPlan{"p1": 9, "p2": 3}}))
	require.Nil(t, agent.Initialize(ctx))

	elapsed, err := agent.Train(ctx)
	require.Nil(t, err)
	msg, err = coord.Expect(ctx, message.KindTrainingTime)
	require.Nil(t, err)
	assert.Equal(t, message.TrainingTime{PeerID: "p1", Seconds: elapsed}, msg)

	require.Nil(t, agent.Upload(ctx))
	msg, err = coord.Expect(ctx, message.KindLocalWeights)
	require.Nil(t, err)
	assert.Equal(t, message.LocalWeights{PeerID: "p1", Snapshot: trained}, msg)

	type result struct {
		total float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		total, err := agent.Finish(ctx)
		done <- result{total, err}
	}()

	msg, err = coord.Expect(ctx, message.KindCommunicationTime)
	require.Nil(t, err)
	ct, ok := msg.(message.CommunicationTime)
	require.True(t, ok)
	assert.Equal(t, "p1", ct.PeerID)
	assert.Equal(t, agent.CommunicationTime().Seconds(), ct.Seconds)

	require.Nil(t, coord.Send(ctx, message.Done{}))
	res := <-done
	require.Nil(t, res.err)
	assert.Equal(t, ct.Seconds, res.total)
	assert.Equal(t, peer.Done, agent.State())
	m.AssertExpectations(t)
}

func TestInitializeErrors(t *testing.T) {
	cases := []struct {
		desc    string
		msg     message.Message
		loadErr error
		err     error
	}{
		{
			desc: "finish instead of weights",
			msg:  message.Finish{},
			err:  pkgerrors.ErrFinished,
		},
		{
			desc: "peer missing from plan",
			msg:  message.InitialWeights{Snapshot: message.Uniform(shapes, 0), Plan: message.SplitPlan{"p2": 3}},
			err:  peer.ErrNoSplitLayer,
		},
		{
			desc: "split beyond model",
			msg:  message.InitialWeights{Snapshot: message.Uniform(shapes, 0), Plan: message.SplitPlan{"p1": 10}},
			err:  model.ErrInvalidSplit,
		},
		{
			desc:    "model rejects snapshot",
			msg:     message.InitialWeights{Snapshot: message.Uniform(shapes, 0), Plan: message.SplitPlan{"p1": 3}},
			loadErr: errors.New("wrong shape"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			client, server := mem.Pipe("p1", "coordinator")
			m := new(mocks.MockTrainable)
			m.On("Load", mock.Anything).Return(tc.loadErr)
			agent := peer.NewAgent(cfg, client, m, slog.Default())
			defer agent.Close()

			require.Nil(t, server.Send(ctx, tc.msg))
			err := agent.Initialize(ctx)
			switch {
			case tc.err != nil:
				assert.ErrorIs(t, err, tc.err)
			default:
				assert.ErrorIs(t, err, tc.loadErr)
			}
			assert.Equal(t, peer.Failed, agent.State())
		})
	}
}

func TestTrainBeforeInitialize(t *testing.T) {
	client, _ := mem.Pipe("p1", "coordinator")
	agent := peer.NewAgent(cfg, client, new(mocks.MockTrainable), slog.Default())

	_, err := agent.Train(context.Background())
	assert.Error(t, err)
}

func TestCommAccumulator(t *testing.T) {
	var acc peer.CommAccumulator
	acc.Add(1200 * time.Millisecond)
	acc.Add(300 * time.Millisecond)

	assert.Equal(t, 1500*time.Millisecond, acc.Total())
	assert.InDelta(t, 1.5, acc.Seconds(), 1e-12)
}

func TestRunWithoutOffloading(t *testing.T) {
	const rounds = 2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, server := mem.Pipe("p1", "coordinator")
	coord := channel.New(server)

	trainer := linear.New(linear.Config{Features: 2, Samples: 100, TestSamples: 10, TruthSeed: 1, DataSeed: 2, Noise: 0.01})
	agent := peer.NewAgent(cfg, client, trainer, slog.Default())
	defer agent.Close()

	errs := make(chan error, 1)
	go func() { errs <- agent.Run(ctx, rounds) }()

	_, err := coord.Expect(ctx, message.KindRegister)
	require.Nil(t, err)

	global := message.Uniform(linear.Shapes(2), 0)
	split := cfg.ModelLen - 1
	require.True(t, model.NoOffloading(split, cfg.ModelLen))

	for range rounds {
		require.Nil(t, coord.Send(ctx, message.InitialWeights{Snapshot: global, Plan: message.SplitPlan{"p1": split}}))
		_, err := coord.Expect(ctx, message.KindTrainingTime)
		require.Nil(t, err)

		msg, err := coord.Expect(ctx, message.KindLocalWeights)
		require.Nil(t, err)
		lw, ok := msg.(message.LocalWeights)
		require.True(t, ok)
		assert.NotEqual(t, global, lw.Snapshot)
		global = lw.Snapshot
	}

	_, err = coord.Expect(ctx, message.KindCommunicationTime)
	require.Nil(t, err)
	require.Nil(t, coord.Send(ctx, message.Done{}))
	require.Nil(t, <-errs)

	stats := trainer.LastTrain()
	assert.Equal(t, 1, stats.Round)
	assert.Equal(t, split, stats.SplitLayer)
}
