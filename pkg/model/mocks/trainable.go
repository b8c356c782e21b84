package mocks

import (
	"context"

	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/model"
	"github.com/stretchr/testify/mock"
)

var _ model.Trainable = (*MockTrainable)(nil)

type MockTrainable struct {
	mock.Mock
}

func (m *MockTrainable) Snapshot() message.Snapshot {
	args := m.Called()
	if s, ok := args.Get(0).(message.Snapshot); ok {
		return s
	}

	return nil
}

func (m *MockTrainable) Load(snapshot message.Snapshot) error {
	args := m.Called(snapshot)
	return args.Error(0)
}

func (m *MockTrainable) Train(ctx context.Context, params model.TrainParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockTrainable) Evaluate(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}
