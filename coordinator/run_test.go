package coordinator_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/peer"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/storage"
	"github.com/absmach/splitfed/pkg/transport/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRunSession(t *testing.T) {
	const rounds = 3

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l, err := stream.Listen("127.0.0.1:0")
	require.Nil(t, err)
	hub := coordinator.NewDirectHub(l, slog.Default())
	defer hub.Close()

	checkpoints, err := fl.NewPersistentStorage(t.TempDir())
	require.Nil(t, err)
	reports := storage.NewMemoryReportRepository(storage.NewInMemoryStorage())
	svc := newService(hub, newFixedModel(0), checkpoints, reports)

	g, gctx := errgroup.WithContext(ctx)
	for id, v := range map[string]float64{"p1": 1, "p2": 2} {
		conn, err := stream.Dial(ctx, l.Addr())
		require.Nil(t, err)
		agent := peer.NewAgent(peer.Config{ID: id, LearningRate: 0.01, BatchSize: 100, ModelLen: 10}, conn, newFixedModel(v), slog.Default())
		defer agent.Close()
		g.Go(func() error {
			return agent.Run(gctx, rounds)
		})
	}

	summary, err := coordinator.Run(ctx, svc, rounds, coordinator.StaticPlanner(plan))
	require.Nil(t, err)
	require.Nil(t, g.Wait())

	assert.ElementsMatch(t, []string{"p1", "p2"}, summary.Peers)
	assert.Equal(t, rounds, summary.Rounds)
	require.Len(t, summary.Scores, rounds)
	for _, score := range summary.Scores {
		assert.InDelta(t, 1.4, score, 1e-12)
	}
	assert.GreaterOrEqual(t, summary.CommunicationTime, 0.0)

	versions, err := checkpoints.ListModels()
	require.Nil(t, err)
	assert.Equal(t, []int{0, 1, 2}, versions)

	page, err := svc.ListRounds(ctx, 0, 10)
	require.Nil(t, err)
	assert.Equal(t, uint64(rounds), page.Total)
	for i, r := range page.Rounds {
		assert.Equal(t, i, r.Round)
		assert.Equal(t, []string{"p1", "p2"}, r.Contributors)
		assert.Equal(t, plan, r.Plan)
		assert.InDelta(t, 1.4, r.Score, 1e-12)
		assert.Len(t, r.TrainingTimes, 2)
	}

	r, err := svc.GetRound(ctx, 2)
	require.Nil(t, err)
	assert.Equal(t, 2, r.Round)

	st, err := svc.Status(ctx)
	require.Nil(t, err)
	assert.Equal(t, coordinator.Finished, st.State)
	assert.Equal(t, 2, st.Round)
	assert.Contains(t, st.History, coordinator.Reinitializing)
}

func TestRunRejectsZeroRounds(t *testing.T) {
	_, err := coordinator.Run(context.Background(), nil, 0, coordinator.StaticPlanner(plan))
	assert.Error(t, err)
}

func TestStaticPlannerCopies(t *testing.T) {
	p := coordinator.StaticPlanner(message.SplitPlan{"p1": 3})
	first := p.Plan(0, nil)
	first["p1"] = 9
	assert.Equal(t, message.SplitPlan{"p1": 3}, p.Plan(1, map[string]float64{"p1": 1}))
}
