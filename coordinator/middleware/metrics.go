package middleware

import (
	"context"
	"time"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/go-kit/kit/metrics"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter  metrics.Counter
	latency  metrics.Histogram
	progress metrics.Gauge
	svc      coordinator.Service
}

// Metrics counts and times every call. progress, labelled by "name",
// tracks the latest evaluation score and the final communication time.
func Metrics(counter metrics.Counter, latency metrics.Histogram, progress metrics.Gauge, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter:  counter,
		latency:  latency,
		progress: progress,
		svc:      svc,
	}
}

func (mm *metricsMiddleware) Register(ctx context.Context) ([]string, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "register").Add(1)
		mm.latency.With("method", "register").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Register(ctx)
}

func (mm *metricsMiddleware) Initialize(ctx context.Context, plan message.SplitPlan) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "initialize").Add(1)
		mm.latency.With("method", "initialize").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Initialize(ctx, plan)
}

func (mm *metricsMiddleware) CollectTrainingTimes(ctx context.Context) (map[string]float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "collect-training-times").Add(1)
		mm.latency.With("method", "collect-training-times").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.CollectTrainingTimes(ctx)
}

func (mm *metricsMiddleware) Aggregate(ctx context.Context) (message.Snapshot, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregate").Add(1)
		mm.latency.With("method", "aggregate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Aggregate(ctx)
}

func (mm *metricsMiddleware) Evaluate(ctx context.Context) (float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "evaluate").Add(1)
		mm.latency.With("method", "evaluate").Observe(time.Since(begin).Seconds())
	}(time.Now())

	score, err := mm.svc.Evaluate(ctx)
	if err == nil {
		mm.progress.With("name", "score").Set(score)
	}

	return score, err
}

func (mm *metricsMiddleware) Reinitialize(ctx context.Context, plan message.SplitPlan) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "reinitialize").Add(1)
		mm.latency.With("method", "reinitialize").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Reinitialize(ctx, plan)
}

func (mm *metricsMiddleware) Finish(ctx context.Context) (float64, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "finish").Add(1)
		mm.latency.With("method", "finish").Observe(time.Since(begin).Seconds())
	}(time.Now())

	commTime, err := mm.svc.Finish(ctx)
	if err == nil {
		mm.progress.With("name", "communication_time").Set(commTime)
	}

	return commTime, err
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "status").Add(1)
		mm.latency.With("method", "status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-round").Add(1)
		mm.latency.With("method", "get-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GetRound(ctx, round)
}

func (mm *metricsMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-rounds").Add(1)
		mm.latency.With("method", "list-rounds").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.ListRounds(ctx, offset, limit)
}
