// Package linear is a small linear-regression model trained with minibatch
// SGD on synthetic data. It stands in for a real network in tests and demo
// deployments.
package linear

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
)

const (
	weightParam = "weight"
	biasParam   = "bias"
)

var errShape = errors.New("snapshot does not match model shape")

var _ model.Trainable = (*Model)(nil)

type Config struct {
	Features int
	// Samples is the size of the local training set.
	Samples int
	// TestSamples is the size of the held-out set used by Evaluate.
	TestSamples int
	// TruthSeed selects the target function. Peers of one cluster share it.
	TruthSeed uint64
	// DataSeed selects the local samples.
	DataSeed uint64
	Noise    float64
}

type Model struct {
	mu      sync.Mutex
	weight  []float64
	bias    float64
	trainX  [][]float64
	trainY  []float64
	testX   [][]float64
	testY   []float64
	rng     *rand.Rand
	lastFit TrainStats
}

// TrainStats describes the last call to Train.
type TrainStats struct {
	Round      int
	SplitLayer int
	Batches    int
	Loss       float64
}

func New(cfg Config) *Model {
	truth := rand.New(rand.NewPCG(cfg.TruthSeed, 1))
	w := make([]float64, cfg.Features)
	for i := range w {
		w[i] = truth.NormFloat64()
	}
	b := truth.NormFloat64()

	data := rand.New(rand.NewPCG(cfg.DataSeed, 2))
	sample := func(n int) ([][]float64, []float64) {
		xs := make([][]float64, n)
		ys := make([]float64, n)
		for i := range xs {
			x := make([]float64, cfg.Features)
			y := b
			for j := range x {
				x[j] = data.Float64()*2 - 1
				y += w[j] * x[j]
			}
			xs[i] = x
			ys[i] = y + data.NormFloat64()*cfg.Noise
		}

		return xs, ys
	}

	m := &Model{
		weight: make([]float64, cfg.Features),
		rng:    rand.New(rand.NewPCG(cfg.DataSeed, 3)),
	}
	m.trainX, m.trainY = sample(cfg.Samples)
	m.testX, m.testY = sample(cfg.TestSamples)

	return m
}

// Shapes returns the parameter shapes for a model with the given number of
// features.
func Shapes(features int) map[string][]int {
	return map[string][]int{
		weightParam: {features},
		biasParam:   {1},
	}
}

func (m *Model) Snapshot() message.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return message.Snapshot{
		weightParam: {Shape: []int{len(m.weight)}, Data: append([]float64(nil), m.weight...)},
		biasParam:   {Shape: []int{1}, Data: []float64{m.bias}},
	}
}

func (m *Model) Load(snapshot message.Snapshot) error {
	w, ok := snapshot[weightParam]
	if !ok || len(w.Data) != len(m.weight) {
		return fmt.Errorf("%w: %s", errShape, weightParam)
	}
	b, ok := snapshot[biasParam]
	if !ok || len(b.Data) != 1 {
		return fmt.Errorf("%w: %s", errShape, biasParam)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.weight, w.Data)
	m.bias = b.Data[0]

	return nil
}

// Train runs one epoch over the local samples in shuffled minibatches.
func (m *Model) Train(ctx context.Context, params model.TrainParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	batch := max(params.BatchSize, 1)
	order := m.rng.Perm(len(m.trainX))

	stats := TrainStats{Round: params.Round, SplitLayer: params.SplitLayer}
	for start := 0; start < len(order); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(start+batch, len(order))
		gw := make([]float64, len(m.weight))
		gb := 0.0
		loss := 0.0
		for _, idx := range order[start:end] {
			diff := m.predict(m.trainX[idx]) - m.trainY[idx]
			loss += diff * diff
			for j, x := range m.trainX[idx] {
				gw[j] += diff * x
			}
			gb += diff
		}

		n := float64(end - start)
		for j := range m.weight {
			m.weight[j] -= params.LearningRate * 2 * gw[j] / n
		}
		m.bias -= params.LearningRate * 2 * gb / n

		stats.Batches++
		stats.Loss = loss / n
	}
	m.lastFit = stats

	return nil
}

// Evaluate returns 1/(1+MSE) on the held-out samples, so higher is better
// and a perfect fit scores 1.
func (m *Model) Evaluate(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.testX) == 0 {
		return 0, nil
	}

	mse := 0.0
	for i, x := range m.testX {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		diff := m.predict(x) - m.testY[i]
		mse += diff * diff
	}
	mse /= float64(len(m.testX))

	return 1 / (1 + mse), nil
}

func (m *Model) LastTrain() TrainStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastFit
}

func (m *Model) predict(x []float64) float64 {
	y := m.bias
	for j, v := range x {
		y += m.weight[j] * v
	}

	return y
}
