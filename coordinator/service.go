package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/absmach/splitfed/pkg/storage"
)

var (
	ErrIncompletePlan = errors.New("split plan does not cover every registered peer")
	errNoRound        = errors.New("no round in progress")
)

type service struct {
	cfg         Config
	hub         Hub
	aggregator  fl.Aggregator
	model       model.Trainable
	checkpoints Checkpointer
	reports     storage.ReportRepository
	logger      *slog.Logger

	mu        sync.RWMutex
	sm        *StateMachine
	peers     []string
	plan      message.SplitPlan
	global    message.Snapshot
	round     *fl.RoundState
	report    *fl.RoundReport
	commTime  float64
	updatedAt time.Time
}

// NewService returns the orchestrator. trainer, checkpoints and reports are
// optional: without a trainer evaluation scores zero and the global
// snapshot starts from cfg.Initial.
func NewService(cfg Config, hub Hub, aggregator fl.Aggregator, trainer model.Trainable, checkpoints Checkpointer, reports storage.ReportRepository, logger *slog.Logger) Service {
	global := cfg.Initial
	if trainer != nil {
		global = trainer.Snapshot()
	}

	return &service{
		cfg:         cfg,
		hub:         hub,
		aggregator:  aggregator,
		model:       trainer,
		checkpoints: checkpoints,
		reports:     reports,
		logger:      logger,
		sm:          NewStateMachine(),
		global:      global.Clone(),
		updatedAt:   time.Now(),
	}
}

func (svc *service) Register(ctx context.Context) ([]string, error) {
	if err := svc.transition(AwaitingPeers); err != nil {
		return nil, err
	}

	peers, err := svc.hub.Register(ctx, svc.cfg.Peers)
	if err != nil {
		return nil, svc.fail(err)
	}

	svc.mu.Lock()
	svc.peers = peers
	svc.mu.Unlock()

	return slices.Clone(peers), nil
}

func (svc *service) Initialize(ctx context.Context, plan message.SplitPlan) error {
	return svc.startRound(ctx, Initializing, plan)
}

func (svc *service) Reinitialize(ctx context.Context, plan message.SplitPlan) error {
	return svc.startRound(ctx, Reinitializing, plan)
}

func (svc *service) startRound(ctx context.Context, state State, plan message.SplitPlan) error {
	svc.mu.RLock()
	peers := svc.peers
	svc.mu.RUnlock()
	for _, id := range peers {
		if _, ok := plan[id]; !ok {
			return fmt.Errorf("%w: missing %s", ErrIncompletePlan, id)
		}
	}

	if err := svc.transition(state); err != nil {
		return err
	}

	svc.mu.Lock()
	next := svc.cfg.FirstRound
	if svc.round != nil {
		next = svc.round.Round + 1
	}
	svc.plan = maps.Clone(plan)
	svc.round = fl.NewRoundState(next, svc.plan)
	svc.report = nil
	msg := message.InitialWeights{Snapshot: svc.global.Clone(), Plan: maps.Clone(plan)}
	svc.mu.Unlock()

	if err := svc.hub.Broadcast(ctx, msg); err != nil {
		return svc.fail(err)
	}

	return nil
}

func (svc *service) CollectTrainingTimes(ctx context.Context) (map[string]float64, error) {
	if err := svc.transition(AwaitingTrainingTimes); err != nil {
		return nil, err
	}

	msgs, err := svc.hub.Collect(ctx, message.KindTrainingTime)
	if err != nil {
		return nil, svc.fail(err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	for id, msg := range msgs {
		tt, ok := msg.(message.TrainingTime)
		if !ok {
			return nil, svc.failLocked(pkgerrors.ErrInvalidData)
		}
		svc.round.RecordTrainingTime(id, tt.Seconds)
	}

	return svc.round.TrainingTimes(), nil
}

func (svc *service) Aggregate(ctx context.Context) (message.Snapshot, error) {
	if err := svc.transition(Aggregating); err != nil {
		return nil, err
	}

	msgs, err := svc.hub.Collect(ctx, message.KindLocalWeights)
	if err != nil {
		return nil, svc.fail(err)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	for id, msg := range msgs {
		lw, ok := msg.(message.LocalWeights)
		if !ok {
			return nil, svc.failLocked(pkgerrors.ErrInvalidData)
		}
		svc.round.RecordContribution(fl.Contribution{
			PeerID:   id,
			Snapshot: lw.Snapshot,
			Weight:   svc.cfg.Weights[id],
		})
	}

	global, err := svc.aggregator.Aggregate(svc.global, svc.round.Contributions())
	if err != nil {
		return nil, svc.failLocked(fmt.Errorf("failed to aggregate round %d: %w", svc.round.Round, err))
	}
	svc.global = global

	report := svc.newReport()
	svc.report = &report
	if err := svc.saveReport(ctx, report); err != nil {
		return nil, svc.failLocked(err)
	}

	return global.Clone(), nil
}

func (svc *service) Evaluate(ctx context.Context) (float64, error) {
	if err := svc.transition(Evaluating); err != nil {
		return 0, err
	}

	svc.mu.RLock()
	global := svc.global.Clone()
	round := svc.round.Round
	svc.mu.RUnlock()

	var score float64
	if svc.model != nil {
		if err := svc.model.Load(global); err != nil {
			return 0, svc.fail(fmt.Errorf("failed to load global snapshot: %w", err))
		}
		s, err := svc.model.Evaluate(ctx)
		if err != nil {
			return 0, svc.fail(fmt.Errorf("failed to evaluate round %d: %w", round, err))
		}
		score = s
	}

	if svc.checkpoints != nil {
		if err := svc.checkpoints.SaveModel(round, global); err != nil {
			return 0, svc.fail(fmt.Errorf("failed to checkpoint round %d: %w", round, err))
		}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.report == nil {
		return 0, svc.failLocked(errNoRound)
	}
	svc.report.Score = score
	svc.report.FinishedAt = time.Now()
	if err := svc.saveReport(ctx, *svc.report); err != nil {
		return 0, svc.failLocked(err)
	}

	svc.logger.Info("round evaluated", slog.Int("round", round), slog.Float64("score", score))

	return score, nil
}

func (svc *service) Finish(ctx context.Context) (float64, error) {
	if err := svc.transition(Finishing); err != nil {
		return 0, err
	}

	msgs, err := svc.hub.Collect(ctx, message.KindCommunicationTime)
	if err != nil {
		return 0, svc.fail(err)
	}

	var longest float64
	for _, msg := range msgs {
		ct, ok := msg.(message.CommunicationTime)
		if !ok {
			return 0, svc.fail(pkgerrors.ErrInvalidData)
		}
		longest = max(longest, ct.Seconds)
	}

	if err := svc.hub.Broadcast(ctx, message.Done{}); err != nil {
		return 0, svc.fail(err)
	}

	svc.mu.Lock()
	svc.commTime = longest
	svc.mu.Unlock()

	if err := svc.transition(Finished); err != nil {
		return 0, err
	}

	return longest, nil
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.RLock()
	defer svc.mu.RUnlock()

	st := Status{
		State:             svc.sm.Current(),
		Peers:             slices.Clone(svc.peers),
		Plan:              maps.Clone(svc.plan),
		History:           svc.sm.History(),
		CommunicationTime: svc.commTime,
		UpdatedAt:         svc.updatedAt,
	}
	if svc.round != nil {
		st.Round = svc.round.Round
	}

	return st, nil
}

func (svc *service) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	if svc.reports == nil {
		return fl.RoundReport{}, pkgerrors.ErrNotFound
	}

	r, err := svc.reports.Get(ctx, round)
	if errors.Is(err, storage.ErrReportNotFound) {
		return fl.RoundReport{}, errors.Join(pkgerrors.ErrNotFound, err)
	}

	return r, err
}

func (svc *service) ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error) {
	page := RoundPage{Offset: offset, Limit: limit, Rounds: []fl.RoundReport{}}
	if svc.reports == nil {
		return page, nil
	}

	rounds, total, err := svc.reports.List(ctx, offset, limit)
	if err != nil {
		return RoundPage{}, err
	}
	page.Total = total
	page.Rounds = rounds

	return page, nil
}

func (svc *service) newReport() fl.RoundReport {
	contributions := svc.round.Contributions()
	contributors := make([]string, len(contributions))
	for i, c := range contributions {
		contributors[i] = c.PeerID
	}

	return fl.RoundReport{
		Round:         svc.round.Round,
		StartedAt:     svc.round.StartedAt,
		FinishedAt:    time.Now(),
		Plan:          maps.Clone(svc.plan),
		TrainingTimes: svc.round.TrainingTimes(),
		Contributors:  contributors,
	}
}

func (svc *service) saveReport(ctx context.Context, r fl.RoundReport) error {
	if svc.reports == nil {
		return nil
	}
	if err := svc.reports.Save(ctx, r); err != nil {
		return fmt.Errorf("failed to save report for round %d: %w", r.Round, err)
	}

	return nil
}

func (svc *service) transition(to State) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	from := svc.sm.Current()
	if err := svc.sm.Transition(to); err != nil {
		return fmt.Errorf("%w: %s to %s", err, from, to)
	}
	svc.updatedAt = time.Now()

	return nil
}

func (svc *service) fail(err error) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return svc.failLocked(err)
}

func (svc *service) failLocked(err error) error {
	svc.sm.Fail()
	svc.updatedAt = time.Now()

	return err
}
