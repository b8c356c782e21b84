package coordinator

import (
	"context"
	"errors"
	"maps"

	"github.com/absmach/splitfed/pkg/message"
)

var errNoRounds = errors.New("at least one round is required")

// Planner chooses the split plan for a round. times holds the training
// times reported in the previous round and is nil for the first one.
type Planner interface {
	Plan(round int, times map[string]float64) message.SplitPlan
}

// StaticPlanner uses the same plan for every round.
type StaticPlanner message.SplitPlan

func (p StaticPlanner) Plan(int, map[string]float64) message.SplitPlan {
	return maps.Clone(message.SplitPlan(p))
}

// Summary describes a completed session.
type Summary struct {
	Peers             []string  `json:"peers"`
	Rounds            int       `json:"rounds"`
	Scores            []float64 `json:"scores"`
	CommunicationTime float64   `json:"communication_time"`
}

// Run executes a whole session: registration, the given number of rounds
// and the finishing exchange.
func Run(ctx context.Context, svc Service, rounds int, planner Planner) (Summary, error) {
	if rounds < 1 {
		return Summary{}, errNoRounds
	}

	peers, err := svc.Register(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Peers: peers}

	var times map[string]float64
	for round := range rounds {
		plan := planner.Plan(round, times)
		if round == 0 {
			err = svc.Initialize(ctx, plan)
		} else {
			err = svc.Reinitialize(ctx, plan)
		}
		if err != nil {
			return summary, err
		}

		if times, err = svc.CollectTrainingTimes(ctx); err != nil {
			return summary, err
		}
		if _, err := svc.Aggregate(ctx); err != nil {
			return summary, err
		}

		score, err := svc.Evaluate(ctx)
		if err != nil {
			return summary, err
		}
		summary.Scores = append(summary.Scores, score)
		summary.Rounds++
	}

	if summary.CommunicationTime, err = svc.Finish(ctx); err != nil {
		return summary, err
	}

	return summary, nil
}
