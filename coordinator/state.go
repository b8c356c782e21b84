package coordinator

import (
	"encoding/json"
	"slices"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
)

type State uint8

const (
	Idle State = iota
	AwaitingPeers
	Initializing
	AwaitingTrainingTimes
	Aggregating
	Evaluating
	Reinitializing
	Finishing
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingPeers:
		return "AwaitingPeers"
	case Initializing:
		return "Initializing"
	case AwaitingTrainingTimes:
		return "AwaitingTrainingTimes"
	case Aggregating:
		return "Aggregating"
	case Evaluating:
		return "Evaluating"
	case Reinitializing:
		return "Reinitializing"
	case Finishing:
		return "Finishing"
	case Finished:
		return "Finished"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Finished || s == Failed
}

var validTransitions = map[State][]State{
	Idle:                  {AwaitingPeers, Failed},
	AwaitingPeers:         {Initializing, Failed},
	Initializing:          {AwaitingTrainingTimes, Failed},
	AwaitingTrainingTimes: {Aggregating, Failed},
	// Evaluation may be skipped on the last round.
	Aggregating:    {Evaluating, Finishing, Failed},
	Evaluating:     {Reinitializing, Finishing, Failed},
	Reinitializing: {AwaitingTrainingTimes, Failed},
	Finishing:      {Finished, Failed},
	Finished:       {},
	Failed:         {},
}

// StateMachine tracks the orchestrator state and the path taken to reach it.
type StateMachine struct {
	current State
	history []State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{current: Idle}
}

func ValidateTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}

	return slices.Contains(allowed, to)
}

func (sm *StateMachine) Current() State {
	return sm.current
}

// History returns every state entered since Idle, in order.
func (sm *StateMachine) History() []State {
	return slices.Clone(sm.history)
}

func (sm *StateMachine) Transition(to State) error {
	if !ValidateTransition(sm.current, to) {
		return pkgerrors.ErrInvalidStateTransition
	}
	sm.current = to
	sm.history = append(sm.history, to)

	return nil
}

// Fail moves any non-terminal state to Failed.
func (sm *StateMachine) Fail() {
	if sm.current.Terminal() {
		return
	}
	sm.current = Failed
	sm.history = append(sm.history, Failed)
}
