package mocks

import (
	"context"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/stretchr/testify/mock"
)

var _ coordinator.Service = (*MockService)(nil)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if peers, ok := args.Get(0).([]string); ok {
		return peers, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockService) Initialize(ctx context.Context, plan message.SplitPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockService) CollectTrainingTimes(ctx context.Context) (map[string]float64, error) {
	args := m.Called(ctx)
	if times, ok := args.Get(0).(map[string]float64); ok {
		return times, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockService) Aggregate(ctx context.Context) (message.Snapshot, error) {
	args := m.Called(ctx)
	if s, ok := args.Get(0).(message.Snapshot); ok {
		return s, args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockService) Evaluate(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockService) Reinitialize(ctx context.Context, plan message.SplitPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockService) Finish(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockService) Status(ctx context.Context) (coordinator.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Status), args.Error(1)
}

func (m *MockService) GetRound(ctx context.Context, round int) (fl.RoundReport, error) {
	args := m.Called(ctx, round)
	return args.Get(0).(fl.RoundReport), args.Error(1)
}

func (m *MockService) ListRounds(ctx context.Context, offset, limit uint64) (coordinator.RoundPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(coordinator.RoundPage), args.Error(1)
}
