// Package splitfedd assembles coordinator and peer processes from a cluster
// description and exposes them as cobra commands.
package splitfedd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/coordinator/api"
	"github.com/absmach/splitfed/coordinator/middleware"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/prometheus"
	"github.com/absmach/splitfed/pkg/server"
	"github.com/absmach/splitfed/pkg/storage"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const coordinatorSvcName = "coordinator"

var errResumeWithoutModels = errors.New("resume requires a models directory")

type CoordinatorConfig struct {
	Cluster    splitfed.ClusterConfig
	InstanceID string
	HTTP       server.Config
	Storage    storage.Config
	// ModelsDir receives a checkpoint of the global snapshot after every
	// round. Empty disables checkpoints.
	ModelsDir string
	// Resume starts from the latest checkpoint in ModelsDir and numbers
	// rounds after it.
	Resume   bool
	WasmFile string
	// Linger keeps the HTTP API up after the session ends.
	Linger bool
	Tracer trace.Tracer
	// Ready, when set, is called with the HTTP address once it is bound.
	Ready func(httpAddr string)
}

// StartCoordinator runs one training session and serves its progress over
// HTTP until the session ends, ctx is cancelled or a stop signal arrives.
func StartCoordinator(ctx context.Context, cancel context.CancelFunc, cfg CoordinatorConfig, logger *slog.Logger) error {
	if err := cfg.Cluster.Validate(); err != nil {
		return fmt.Errorf("invalid cluster config: %w", err)
	}
	if cfg.Resume && cfg.ModelsDir == "" {
		return errResumeWithoutModels
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(coordinatorSvcName)
	}
	cluster := cfg.Cluster

	hub, disconnect, err := newHub(ctx, cluster, fmt.Sprintf("%s-%s", coordinatorSvcName, cfg.InstanceID), logger)
	if err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	defer disconnect()
	defer func() {
		if err := hub.Close(); err != nil {
			logger.Warn("failed to close peer connections", slog.Any("error", err))
		}
	}()

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	if repos.Closer != nil {
		defer repos.Closer.Close()
	}

	var (
		checkpoints coordinator.Checkpointer
		ps          *fl.PersistentStorage
	)
	if cfg.ModelsDir != "" {
		ps, err = fl.NewPersistentStorage(cfg.ModelsDir)
		if err != nil {
			return fmt.Errorf("failed to initialize checkpoints: %w", err)
		}
		checkpoints = ps
	}

	trainer, closeTrainer, err := newTrainer(ctx, cluster, cfg.WasmFile, 0, cluster.Training.Seed, logger)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer closeTrainer()

	firstRound := 0
	if cfg.Resume {
		version, snapshot, err := ps.LatestModel()
		switch {
		case errors.Is(err, pkgerrors.ErrNotFound):
			logger.Info("no checkpoint to resume from", slog.String("models_dir", cfg.ModelsDir))
		case err != nil:
			return fmt.Errorf("failed to read checkpoints: %w", err)
		default:
			if err := trainer.Load(snapshot); err != nil {
				return fmt.Errorf("failed to load checkpoint %d: %w", version, err)
			}
			firstRound = version + 1
			logger.Info("resuming from checkpoint", slog.Int("version", version))
		}
	}

	weights := make(map[string]float64, cluster.K())
	for _, id := range cluster.PeerIDs() {
		weights[id] = cluster.Weight(id)
	}

	svc := coordinator.NewService(
		coordinator.Config{Peers: cluster.PeerIDs(), Weights: weights, FirstRound: firstRound},
		hub,
		fl.NewFedAvgAggregator(float64(cluster.Training.TotalSamples)),
		trainer,
		checkpoints,
		repos.Reports,
		logger,
	)
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(coordinatorSvcName, "api")
	progress := prometheus.MakeGauge(coordinatorSvcName, "session", "progress", "Latest evaluation score and communication time.", "name")
	svc = middleware.Metrics(counter, latency, progress, svc)

	hs := server.NewServer(coordinatorSvcName, cfg.HTTP, api.MakeHandler(svc, logger, coordinatorSvcName, cfg.InstanceID), logger)
	if err := hs.Listen(); err != nil {
		return err
	}
	if cfg.Ready != nil {
		cfg.Ready(hs.Addr())
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(hs.Start)

	g.Go(func() error {
		return server.StopSignalHandler(ctx, cancel, logger, coordinatorSvcName, hs)
	})

	g.Go(func() error {
		session := withRegistrationTimeout(svc, cluster.RegistrationTimeout())
		summary, err := coordinator.Run(ctx, session, cluster.Training.Rounds, coordinator.StaticPlanner(cluster.Plan()))
		if err != nil {
			return fmt.Errorf("session failed: %w", err)
		}
		logger.Info("session finished",
			slog.Any("peers", summary.Peers),
			slog.Int("rounds", summary.Rounds),
			slog.Any("scores", summary.Scores),
			slog.Float64("communication_time", summary.CommunicationTime),
		)
		if !cfg.Linger {
			cancel()
		}

		return nil
	})

	return g.Wait()
}

type registrationDeadline struct {
	coordinator.Service
	timeout time.Duration
}

// withRegistrationTimeout bounds Register by timeout. Zero leaves svc as is.
func withRegistrationTimeout(svc coordinator.Service, timeout time.Duration) coordinator.Service {
	if timeout <= 0 {
		return svc
	}

	return &registrationDeadline{Service: svc, timeout: timeout}
}

func (r *registrationDeadline) Register(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.Service.Register(ctx)
}
