package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/pkg/server"
	"github.com/absmach/splitfed/pkg/storage"
	"github.com/absmach/splitfed/splitfedd"
	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	svcName          = "coordinator"
	defHTTPPort      = "7070"
	envPrefixHTTP    = "SPLITFED_COORDINATOR_HTTP_"
	envPrefixStorage = "SPLITFED_COORDINATOR_"
	pathEnv          = ".env"
)

type envConfig struct {
	LogLevel    string `env:"SPLITFED_COORDINATOR_LOG_LEVEL"   envDefault:"info"`
	InstanceID  string `env:"SPLITFED_COORDINATOR_INSTANCE_ID"`
	ClusterFile string `env:"SPLITFED_CLUSTER_FILE"            envDefault:"cluster.toml"`
	ModelsDir   string `env:"SPLITFED_COORDINATOR_MODELS_DIR"  envDefault:"./data/models"`
	WasmFile    string `env:"SPLITFED_COORDINATOR_WASM_FILE"`
	Linger      bool   `env:"SPLITFED_COORDINATOR_LINGER"      envDefault:"false"`
	Resume      bool   `env:"SPLITFED_COORDINATOR_RESUME"      envDefault:"false"`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	logger, err := splitfedd.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		log.Fatal(err.Error())
	}

	cluster, err := splitfed.LoadConfig(cfg.ClusterFile)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load cluster config: %s", err))

		return
	}

	httpServerConfig := server.Config{Port: defHTTPPort}
	if err := env.ParseWithOptions(&httpServerConfig, env.Options{Prefix: envPrefixHTTP}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s HTTP server configuration : %s", svcName, err.Error()))

		return
	}

	storageConfig := storage.Config{}
	if err := env.ParseWithOptions(&storageConfig, env.Options{Prefix: envPrefixStorage}); err != nil {
		logger.Error(fmt.Sprintf("failed to load %s storage configuration : %s", svcName, err.Error()))

		return
	}

	if err := splitfedd.StartCoordinator(ctx, cancel, splitfedd.CoordinatorConfig{
		Cluster:    *cluster,
		InstanceID: cfg.InstanceID,
		HTTP:       httpServerConfig,
		Storage:    storageConfig,
		ModelsDir:  cfg.ModelsDir,
		Resume:     cfg.Resume,
		WasmFile:   cfg.WasmFile,
		Linger:     cfg.Linger,
	}, logger); err != nil {
		logger.Error(fmt.Sprintf("%s service exited with error: %s", svcName, err))
	}
}
