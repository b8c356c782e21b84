package middleware

import (
	"context"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Register(ctx context.Context) (peers []string, err error) {
	ctx, span := tm.tracer.Start(ctx, "register")
	defer func() { end(span, err) }()

	peers, err = tm.svc.Register(ctx)
	span.SetAttributes(attribute.StringSlice("peers", peers))

	return peers, err
}

func (tm *tracing) Initialize(ctx context.Context, plan message.SplitPlan) (err error) {
	ctx, span := tm.tracer.Start(ctx, "initialize", trace.WithAttributes(
		attribute.Int("peers", len(plan)),
	))
	defer func() { end(span, err) }()

	return tm.svc.Initialize(ctx, plan)
}

func (tm *tracing) CollectTrainingTimes(ctx context.Context) (times map[string]float64, err error) {
	ctx, span := tm.tracer.Start(ctx, "collect-training-times")
	defer func() { end(span, err) }()

	return tm.svc.CollectTrainingTimes(ctx)
}

func (tm *tracing) Aggregate(ctx context.Context) (global message.Snapshot, err error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate")
	defer func() { end(span, err) }()

	global, err = tm.svc.Aggregate(ctx)
	span.SetAttributes(attribute.Int("snapshot.size", global.Size()))

	return global, err
}

func (tm *tracing) Evaluate(ctx context.Context) (score float64, err error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate")
	defer func() { end(span, err) }()

	score, err = tm.svc.Evaluate(ctx)
	span.SetAttributes(attribute.Float64("score", score))

	return score, err
}

func (tm *tracing) Reinitialize(ctx context.Context, plan message.SplitPlan) (err error) {
	ctx, span := tm.tracer.Start(ctx, "reinitialize", trace.WithAttributes(
		attribute.Int("peers", len(plan)),
	))
	defer func() { end(span, err) }()

	return tm.svc.Reinitialize(ctx, plan)
}

func (tm *tracing) Finish(ctx context.Context) (commTime float64, err error) {
	ctx, span := tm.tracer.Start(ctx, "finish")
	defer func() { end(span, err) }()

	commTime, err = tm.svc.Finish(ctx)
	span.SetAttributes(attribute.Float64("communication_time", commTime))

	return commTime, err
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	ctx, span := tm.tracer.Start(ctx, "get-round", trace.WithAttributes(
		attribute.Int("round", round),
	))
	defer span.End()

	return tm.svc.GetRound(ctx, round)
}

func (tm *tracing) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-rounds", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.ListRounds(ctx, offset, limit)
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
