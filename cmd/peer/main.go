package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/splitfedd"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const pathEnv = ".env"

type envConfig struct {
	LogLevel    string `env:"SPLITFED_PEER_LOG_LEVEL" envDefault:"info"`
	ID          string `env:"SPLITFED_PEER_ID,required"`
	ClusterFile string `env:"SPLITFED_CLUSTER_FILE"   envDefault:"cluster.toml"`
	WasmFile    string `env:"SPLITFED_PEER_WASM_FILE"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	logger, err := splitfedd.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cluster, err := splitfed.LoadConfig(cfg.ClusterFile)
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("path", cfg.ClusterFile), slog.Any("error", err))

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info("Starting peer", slog.String("id", cfg.ID), slog.String("transport", cluster.Cluster.Transport))

	return splitfedd.StartPeer(ctx, splitfedd.PeerConfig{
		Cluster:  *cluster,
		ID:       cfg.ID,
		WasmFile: cfg.WasmFile,
	}, logger)
}
