// Package peer implements the peer side of a training session. An Agent
// mirrors the coordinator's phases over a single channel.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/splitfed/pkg/channel"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/absmach/splitfed/pkg/transport"
)

var (
	ErrNoSplitLayer = errors.New("split plan has no entry for this peer")
	errNotReady     = errors.New("no global snapshot received yet")
)

type State uint8

const (
	Registering State = iota
	Initializing
	Training
	Uploading
	Finishing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Registering:
		return "Registering"
	case Initializing:
		return "Initializing"
	case Training:
		return "Training"
	case Uploading:
		return "Uploading"
	case Finishing:
		return "Finishing"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

type Config struct {
	ID           string
	LearningRate float64
	BatchSize    int
	ModelLen     int
}

// CommAccumulator sums the time spent uploading snapshots.
type CommAccumulator struct {
	total time.Duration
}

func (c *CommAccumulator) Add(d time.Duration) {
	c.total += d
}

func (c *CommAccumulator) Total() time.Duration {
	return c.total
}

func (c *CommAccumulator) Seconds() float64 {
	return c.total.Seconds()
}

type Agent struct {
	cfg    Config
	ch     *channel.Channel
	model  model.Trainable
	logger *slog.Logger

	mu         sync.Mutex
	state      State
	round      int
	splitLayer int
	ready      bool
	comm       CommAccumulator
}

func NewAgent(cfg Config, conn transport.Conn, trainer model.Trainable, logger *slog.Logger, opts ...channel.Option) *Agent {
	return &Agent{
		cfg:    cfg,
		ch:     channel.New(conn, opts...),
		model:  trainer,
		logger: logger.With(slog.String("peer_id", cfg.ID)),
		round:  -1,
	}
}

func (a *Agent) ID() string {
	return a.cfg.ID
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.state
}

// CommunicationTime is the upload time accumulated so far.
func (a *Agent) CommunicationTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.comm.Total()
}

func (a *Agent) Register(ctx context.Context) error {
	a.setState(Registering)
	if err := a.ch.Send(ctx, message.Register{PeerID: a.cfg.ID}); err != nil {
		return a.fail(fmt.Errorf("failed to register: %w", err))
	}

	return nil
}

// Initialize waits for the global snapshot of the next round and loads it.
// It returns ErrFinished if the coordinator sent Finish instead.
func (a *Agent) Initialize(ctx context.Context) error {
	a.setState(Initializing)

	msg, err := a.ch.Await(ctx, message.KindInitialWeights)
	if err != nil {
		return a.fail(err)
	}
	iw, ok := msg.(message.InitialWeights)
	if !ok {
		return a.fail(pkgerrors.ErrFinished)
	}

	split, ok := iw.Plan[a.cfg.ID]
	if !ok {
		return a.fail(ErrNoSplitLayer)
	}
	if a.cfg.ModelLen > 0 {
		if err := model.ValidateSplit(split, a.cfg.ModelLen); err != nil {
			return a.fail(fmt.Errorf("split layer %d: %w", split, err))
		}
	}
	if err := a.model.Load(iw.Snapshot); err != nil {
		return a.fail(fmt.Errorf("failed to load global snapshot: %w", err))
	}

	a.mu.Lock()
	a.round++
	a.splitLayer = split
	a.ready = true
	round := a.round
	a.mu.Unlock()

	a.logger.Debug("round initialized",
		slog.Int("round", round),
		slog.Int("split_layer", split),
		slog.Bool("no_offloading", model.NoOffloading(split, a.cfg.ModelLen)),
	)

	return nil
}

// Train runs one local pass, reports how long it took and returns the
// elapsed seconds.
func (a *Agent) Train(ctx context.Context) (float64, error) {
	a.setState(Training)

	a.mu.Lock()
	ready := a.ready
	params := model.TrainParams{
		Round:        a.round,
		SplitLayer:   a.splitLayer,
		LearningRate: a.cfg.LearningRate,
		BatchSize:    a.cfg.BatchSize,
	}
	a.mu.Unlock()
	if !ready {
		return 0, a.fail(errNotReady)
	}

	start := time.Now()
	if err := a.model.Train(ctx, params); err != nil {
		return 0, a.fail(fmt.Errorf("training failed: %w", err))
	}
	elapsed := time.Since(start).Seconds()

	if err := a.ch.Send(ctx, message.TrainingTime{PeerID: a.cfg.ID, Seconds: elapsed}); err != nil {
		return 0, a.fail(err)
	}

	return elapsed, nil
}

// Upload sends the trained snapshot and adds the send time to the
// communication total.
func (a *Agent) Upload(ctx context.Context) error {
	a.setState(Uploading)

	start := time.Now()
	if err := a.ch.Send(ctx, message.LocalWeights{PeerID: a.cfg.ID, Snapshot: a.model.Snapshot()}); err != nil {
		return a.fail(err)
	}

	a.mu.Lock()
	a.comm.Add(time.Since(start))
	a.mu.Unlock()

	return nil
}

// Finish reports the accumulated communication time and waits for Done.
func (a *Agent) Finish(ctx context.Context) (float64, error) {
	a.setState(Finishing)

	a.mu.Lock()
	total := a.comm.Seconds()
	a.mu.Unlock()

	if err := a.ch.Send(ctx, message.CommunicationTime{PeerID: a.cfg.ID, Seconds: total}); err != nil {
		return 0, a.fail(err)
	}
	if _, err := a.ch.Await(ctx, message.KindDone); err != nil {
		return 0, a.fail(err)
	}
	a.setState(Done)

	return total, nil
}

// Run registers and takes part in the given number of rounds before
// finishing.
func (a *Agent) Run(ctx context.Context, rounds int) error {
	if err := a.Register(ctx); err != nil {
		return err
	}

	for range rounds {
		if err := a.Initialize(ctx); err != nil {
			return err
		}
		if _, err := a.Train(ctx); err != nil {
			return err
		}
		if err := a.Upload(ctx); err != nil {
			return err
		}
	}

	total, err := a.Finish(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("session finished", slog.Int("rounds", rounds), slog.Float64("communication_time", total))

	return nil
}

func (a *Agent) Close() error {
	return a.ch.Close()
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

func (a *Agent) fail(err error) error {
	a.setState(Failed)

	return err
}
