package sdk_test

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/absmach/splitfed/coordinator"
	"github.com/absmach/splitfed/coordinator/api"
	"github.com/absmach/splitfed/coordinator/mocks"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/fl"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (sdk.SDK, *mocks.MockService) {
	t.Helper()

	svc := new(mocks.MockService)
	ts := httptest.NewServer(api.MakeHandler(svc, slog.Default(), "coordinator", "test-instance"))
	t.Cleanup(ts.Close)

	return sdk.NewSDK(sdk.Config{CoordinatorURL: ts.URL + "/"}), svc
}

func TestStatus(t *testing.T) {
	client, svc := setup(t)
	svc.On("Status", mock.Anything).Return(coordinator.Status{
		State:   coordinator.Aggregating,
		Round:   1,
		Peers:   []string{"p1", "p2"},
		Plan:    message.SplitPlan{"p1": 6, "p2": 9},
		History: []coordinator.State{coordinator.AwaitingPeers, coordinator.Initializing},
	}, nil)

	st, err := client.Status()
	require.Nil(t, err)
	assert.Equal(t, "Aggregating", st.State)
	assert.Equal(t, 1, st.Round)
	assert.Equal(t, map[string]int{"p1": 6, "p2": 9}, st.Plan)
	assert.Equal(t, []string{"AwaitingPeers", "Initializing"}, st.History)
}

func TestGetRound(t *testing.T) {
	client, svc := setup(t)
	svc.On("GetRound", mock.Anything, 0).Return(fl.RoundReport{
		Round:         0,
		Plan:          message.SplitPlan{"p1": 6},
		TrainingTimes: map[string]float64{"p1": 0.2},
		Contributors:  []string{"p1"},
		Score:         1.4,
	}, nil)
	svc.On("GetRound", mock.Anything, 5).Return(fl.RoundReport{}, pkgerrors.ErrNotFound)

	cases := []struct {
		desc  string
		round int
		score float64
		err   bool
	}{
		{
			desc:  "existing round",
			round: 0,
			score: 1.4,
		},
		{
			desc:  "unknown round",
			round: 5,
			err:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			r, err := client.GetRound(tc.round)
			if tc.err {
				assert.ErrorContains(t, err, "404")
				assert.ErrorContains(t, err, pkgerrors.ErrNotFound.Error())
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tc.score, r.Score)
			assert.Equal(t, []string{"p1"}, r.Contributors)
		})
	}
}

func TestListRounds(t *testing.T) {
	client, svc := setup(t)
	svc.On("ListRounds", mock.Anything, uint64(2), uint64(10)).Return(coordinator.RoundPage{
		Offset: 2,
		Limit:  10,
		Total:  3,
		Rounds: []fl.RoundReport{{Round: 2, Score: 0.5}},
	}, nil)

	page, err := client.ListRounds(2, 10)
	require.Nil(t, err)
	assert.Equal(t, uint64(3), page.Total)
	require.Len(t, page.Rounds, 1)
	assert.Equal(t, 0.5, page.Rounds[0].Score)

	_, err = client.ListRounds(0, 500)
	assert.ErrorContains(t, err, "400")
}

func TestHealth(t *testing.T) {
	client, _ := setup(t)

	h, err := client.Health()
	require.Nil(t, err)
	assert.Equal(t, sdk.Health{Status: "pass", Service: "coordinator", InstanceID: "test-instance"}, h)
}
