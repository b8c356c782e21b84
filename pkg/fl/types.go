package fl

import (
	"maps"
	"slices"
	"time"

	"github.com/absmach/splitfed/pkg/message"
)

// Contribution is one peer's trained snapshot and its aggregation weight.
type Contribution struct {
	PeerID   string
	Snapshot message.Snapshot
	Weight   float64
}

type Aggregator interface {
	Aggregate(global message.Snapshot, contributions []Contribution) (message.Snapshot, error)
}

// PeerRound is what the coordinator learned about a peer during one round.
type PeerRound struct {
	SplitLayer   int
	TrainingTime *float64
	Contribution *Contribution
}

// RoundState lives from the broadcast of the global snapshot until the
// aggregated snapshot replaces it.
type RoundState struct {
	Round     int
	StartedAt time.Time
	Peers     map[string]*PeerRound
}

func NewRoundState(round int, plan message.SplitPlan) *RoundState {
	peers := make(map[string]*PeerRound, len(plan))
	for id, split := range plan {
		peers[id] = &PeerRound{SplitLayer: split}
	}

	return &RoundState{
		Round:     round,
		StartedAt: time.Now(),
		Peers:     peers,
	}
}

func (s *RoundState) peer(id string) *PeerRound {
	p, ok := s.Peers[id]
	if !ok {
		p = &PeerRound{}
		s.Peers[id] = p
	}

	return p
}

func (s *RoundState) RecordTrainingTime(id string, seconds float64) {
	s.peer(id).TrainingTime = &seconds
}

func (s *RoundState) RecordContribution(c Contribution) {
	s.peer(c.PeerID).Contribution = &c
}

func (s *RoundState) TrainingTimes() map[string]float64 {
	out := make(map[string]float64, len(s.Peers))
	for id, p := range s.Peers {
		if p.TrainingTime != nil {
			out[id] = *p.TrainingTime
		}
	}

	return out
}

// Contributions returns the recorded contributions ordered by peer.
func (s *RoundState) Contributions() []Contribution {
	var out []Contribution
	for _, id := range slices.Sorted(maps.Keys(s.Peers)) {
		if c := s.Peers[id].Contribution; c != nil {
			out = append(out, *c)
		}
	}

	return out
}

// RoundReport is the persisted summary of a finished round.
type RoundReport struct {
	Round         int                `json:"round"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    time.Time          `json:"finished_at"`
	Plan          message.SplitPlan  `json:"plan"`
	TrainingTimes map[string]float64 `json:"training_times"`
	Contributors  []string           `json:"contributors"`
	Score         float64            `json:"score"`
}
