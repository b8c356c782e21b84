package splitfedd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/peer"
)

var errUnknownPeer = errors.New("peer is not part of the cluster")

type PeerConfig struct {
	Cluster  splitfed.ClusterConfig
	ID       string
	WasmFile string
}

// StartPeer connects to the coordinator and takes part in every round of
// the session.
func StartPeer(ctx context.Context, cfg PeerConfig, logger *slog.Logger) error {
	cluster := cfg.Cluster
	if err := cluster.Validate(); err != nil {
		return fmt.Errorf("invalid cluster config: %w", err)
	}
	idx := slices.Index(cluster.PeerIDs(), cfg.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %q", errUnknownPeer, cfg.ID)
	}
	logger = logger.With(slog.String("peer_id", cfg.ID))

	trainer, closeTrainer, err := newTrainer(ctx, cluster, cfg.WasmFile, int(cluster.Weight(cfg.ID)), cluster.Training.Seed+uint64(idx)+1, logger)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer closeTrainer()

	conn, disconnect, err := dialCoordinator(ctx, cluster, cfg.ID, logger)
	if err != nil {
		return fmt.Errorf("failed to reach coordinator: %w", err)
	}
	defer disconnect()

	agent := peer.NewAgent(peer.Config{
		ID:           cfg.ID,
		LearningRate: cluster.Training.LearningRate,
		BatchSize:    cluster.Training.BatchSize,
		ModelLen:     cluster.Training.ModelLen,
	}, conn, trainer, logger, channelOptions(cluster)...)
	defer agent.Close()

	if err := agent.Run(ctx, cluster.Training.Rounds); err != nil {
		return err
	}
	logger.Info("peer finished", slog.Float64("communication_time", agent.CommunicationTime().Seconds()))

	return nil
}
