package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Register(ctx context.Context) (peers []string, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("peers", peers),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Register peers failed", args...)

			return
		}
		lm.logger.Info("Register peers completed successfully", args...)
	}(time.Now())

	return lm.svc.Register(ctx)
}

func (lm *loggingMiddleware) Initialize(ctx context.Context, plan message.SplitPlan) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("plan", plan),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Initialize round failed", args...)

			return
		}
		lm.logger.Info("Initialize round completed successfully", args...)
	}(time.Now())

	return lm.svc.Initialize(ctx, plan)
}

func (lm *loggingMiddleware) CollectTrainingTimes(ctx context.Context) (times map[string]float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("training_times", times),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Collect training times failed", args...)

			return
		}
		lm.logger.Info("Collect training times completed successfully", args...)
	}(time.Now())

	return lm.svc.CollectTrainingTimes(ctx)
}

func (lm *loggingMiddleware) Aggregate(ctx context.Context) (global message.Snapshot, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("snapshot",
				slog.Int("params", len(global)),
				slog.Int("size", global.Size()),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Aggregate failed", args...)

			return
		}
		lm.logger.Info("Aggregate completed successfully", args...)
	}(time.Now())

	return lm.svc.Aggregate(ctx)
}

func (lm *loggingMiddleware) Evaluate(ctx context.Context) (score float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Float64("score", score),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate failed", args...)

			return
		}
		lm.logger.Info("Evaluate completed successfully", args...)
	}(time.Now())

	return lm.svc.Evaluate(ctx)
}

func (lm *loggingMiddleware) Reinitialize(ctx context.Context, plan message.SplitPlan) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Any("plan", plan),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Reinitialize round failed", args...)

			return
		}
		lm.logger.Info("Reinitialize round completed successfully", args...)
	}(time.Now())

	return lm.svc.Reinitialize(ctx, plan)
}

func (lm *loggingMiddleware) Finish(ctx context.Context) (commTime float64, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Float64("communication_time", commTime),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Finish failed", args...)

			return
		}
		lm.logger.Info("Finish completed successfully", args...)
	}(time.Now())

	return lm.svc.Finish(ctx)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (st coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("state", st.State.String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get status failed", args...)

			return
		}
		lm.logger.Debug("Get status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) GetRound(ctx context.Context, round int) (resp fl.RoundReport, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Int("round", round),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get round failed", args...)

			return
		}
		lm.logger.Info("Get round completed successfully", args...)
	}(time.Now())

	return lm.svc.GetRound(ctx, round)
}

func (lm *loggingMiddleware) ListRounds(ctx context.Context, offset, limit uint64) (resp coordinator.RoundPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List rounds failed", args...)

			return
		}
		lm.logger.Info("List rounds completed successfully", args...)
	}(time.Now())

	return lm.svc.ListRounds(ctx, offset, limit)
}
