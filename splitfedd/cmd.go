package splitfedd

import (
	"context"
	"log/slog"
	"os"

	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/pkg/server"
	"github.com/absmach/splitfed/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	configPath  = "cluster.toml"
	logLevel    = "info"
	wasmFile    = ""
	httpHost    = "localhost"
	httpPort    = "7070"
	storageType = "memory"
	badgerPath  = "./data/badger"
	modelsDir   = "./data/models"
	linger      = false
	resume      = false
	peerID      = ""
)

func setup(cmd *cobra.Command) (*splitfed.ClusterConfig, *slog.Logger, bool) {
	logger, err := NewLogger(os.Stdout, logLevel)
	if err != nil {
		cmd.PrintErrf("invalid log level: %s\n", err)

		return nil, nil, false
	}
	slog.SetDefault(logger)

	cfg, err := splitfed.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load cluster config", slog.String("path", configPath), slog.Any("error", err))

		return nil, nil, false
	}

	return cfg, logger, true
}

var coordinatorCmd = []cobra.Command{
	{
		Use:   "start",
		Short: "Start coordinator",
		Long:  `Start the coordinator and run one training session.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cluster, logger, ok := setup(cmd)
			if !ok {
				return
			}

			cfg := CoordinatorConfig{
				Cluster: *cluster,
				HTTP: server.Config{
					Host: httpHost,
					Port: httpPort,
				},
				Storage: storage.Config{
					Type:       storageType,
					BadgerPath: badgerPath,
				},
				ModelsDir: modelsDir,
				Resume:    resume,
				WasmFile:  wasmFile,
				Linger:    linger,
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := StartCoordinator(ctx, cancel, cfg, logger); err != nil {
				logger.Error("coordinator exited with error", slog.String("error", err.Error()))
			}
		},
	},
}

var peerCmd = []cobra.Command{
	{
		Use:   "start",
		Short: "Start peer",
		Long:  `Start a peer and train until the coordinator finishes the session.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cluster, logger, ok := setup(cmd)
			if !ok {
				return
			}

			cfg := PeerConfig{
				Cluster:  *cluster,
				ID:       peerID,
				WasmFile: wasmFile,
			}
			if err := StartPeer(cmd.Context(), cfg, logger); err != nil {
				logger.Error("peer exited with error", slog.String("error", err.Error()))
			}
		},
	},
}

func NewCoordinatorCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "coordinator [start]",
		Short: "Coordinator management",
		Long:  `Run the split learning coordinator.`,
	}

	for i := range coordinatorCmd {
		cmd.AddCommand(&coordinatorCmd[i])
	}

	addCommonFlags(&cmd)
	cmd.PersistentFlags().StringVar(&httpHost, "http-host", httpHost, "HTTP API host")
	cmd.PersistentFlags().StringVarP(&httpPort, "http-port", "p", httpPort, "HTTP API port")
	cmd.PersistentFlags().StringVarP(&storageType, "storage", "s", storageType, "Round report storage (memory or badger)")
	cmd.PersistentFlags().StringVar(&badgerPath, "badger-path", badgerPath, "Badger database directory")
	cmd.PersistentFlags().StringVarP(&modelsDir, "models-dir", "m", modelsDir, "Checkpoint directory, empty to disable")
	cmd.PersistentFlags().BoolVar(&linger, "linger", linger, "Keep serving the HTTP API after the session ends")
	cmd.PersistentFlags().BoolVar(&resume, "resume", resume, "Start from the latest checkpoint in the models directory")

	return &cmd
}

func NewPeerCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "peer [start]",
		Short: "Peer management",
		Long:  `Run a split learning peer.`,
	}

	for i := range peerCmd {
		cmd.AddCommand(&peerCmd[i])
	}

	addCommonFlags(&cmd)
	cmd.PersistentFlags().StringVarP(&peerID, "id", "i", peerID, "Peer ID, as listed in the cluster config")

	return &cmd
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "Cluster config file")
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", logLevel, "Log level")
	cmd.PersistentFlags().StringVarP(&wasmFile, "wasm", "w", wasmFile, "Wasm model file, empty for the built-in linear model")
}
