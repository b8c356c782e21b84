// Package model declares the capability the coordinator and the peers use
// to reach the machine-learning side: loading parameters, training,
// evaluating. Implementations own all numeric work.
package model

import (
	"context"
	"errors"

	"github.com/absmach/splitfed/pkg/message"
)

var ErrInvalidSplit = errors.New("split layer out of range")

type TrainParams struct {
	Round        int
	SplitLayer   int
	LearningRate float64
	BatchSize    int
}

type Trainable interface {
	// Snapshot returns a copy of the current parameters.
	Snapshot() message.Snapshot
	// Load replaces the current parameters.
	Load(snapshot message.Snapshot) error
	// Train runs one local training pass.
	Train(ctx context.Context, params TrainParams) error
	// Evaluate scores the current parameters on held-out data.
	Evaluate(ctx context.Context) (float64, error)
}

// NoOffloading reports whether a peer with the given split layer trains the
// whole model itself.
func NoOffloading(splitLayer, modelLen int) bool {
	return splitLayer == modelLen-1
}

// ValidateSplit checks that splitLayer addresses a layer of the model.
func ValidateSplit(splitLayer, modelLen int) error {
	if splitLayer < 0 || splitLayer >= modelLen {
		return ErrInvalidSplit
	}

	return nil
}
