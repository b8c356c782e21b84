// Package coordinator drives a training session from the coordinator side:
// peer registration, broadcasting the global snapshot, collecting timings
// and trained snapshots, aggregation, evaluation and the final
// communication-time reduction.
package coordinator

import (
	"context"
	"time"

	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
)

type Service interface {
	// Register waits until every configured peer has registered.
	Register(ctx context.Context) ([]string, error)
	// Initialize broadcasts the global snapshot and split plan for the
	// first round.
	Initialize(ctx context.Context, plan message.SplitPlan) error
	// CollectTrainingTimes waits for one timing report per peer.
	CollectTrainingTimes(ctx context.Context) (map[string]float64, error)
	// Aggregate waits for one trained snapshot per peer, merges them and
	// replaces the global snapshot with the result.
	Aggregate(ctx context.Context) (message.Snapshot, error)
	// Evaluate scores the global snapshot and checkpoints it.
	Evaluate(ctx context.Context) (float64, error)
	// Reinitialize starts the next round with a possibly different plan.
	Reinitialize(ctx context.Context, plan message.SplitPlan) error
	// Finish collects the peers' communication times, tells them to stop
	// and returns the largest reported time.
	Finish(ctx context.Context) (float64, error)

	Status(ctx context.Context) (Status, error)
	GetRound(ctx context.Context, round int) (fl.RoundReport, error)
	ListRounds(ctx context.Context, offset, limit uint64) (RoundPage, error)
}

type Status struct {
	State             State             `json:"state"`
	Round             int               `json:"round"`
	Peers             []string          `json:"peers"`
	Plan              message.SplitPlan `json:"plan,omitempty"`
	History           []State           `json:"history"`
	CommunicationTime float64           `json:"communication_time,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type RoundPage struct {
	Offset uint64           `json:"offset"`
	Limit  uint64           `json:"limit"`
	Total  uint64           `json:"total"`
	Rounds []fl.RoundReport `json:"rounds"`
}

// Checkpointer persists the evaluated global snapshot.
type Checkpointer interface {
	SaveModel(version int, snapshot message.Snapshot) error
}

type Config struct {
	// Peers lists the identities allowed to register.
	Peers []string
	// Weights is the aggregation weight of every peer.
	Weights map[string]float64
	// Initial is the global snapshot before the first round when no
	// model is attached.
	Initial message.Snapshot
	// FirstRound numbers the first round of the session, so that a resumed
	// session continues the checkpoint and report sequence.
	FirstRound int
}
