package channel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/splitfed/pkg/channel"
	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/absmach/splitfed/pkg/transport"
	"github.com/absmach/splitfed/pkg/transport/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// plainConn hides the Matcher implementation of a mem.Conn.
type plainConn struct {
	transport.Conn
}

func TestExpect(t *testing.T) {
	cases := []struct {
		desc     string
		sent     message.Message
		expected message.Kind
		err      error
	}{
		{
			desc:     "matching kind",
			sent:     message.TrainingTime{PeerID: "p1", Seconds: 1},
			expected: message.KindTrainingTime,
		},
		{
			desc:     "finish passes through",
			sent:     message.Finish{},
			expected: message.KindLocalWeights,
		},
		{
			desc:     "mismatched kind",
			sent:     message.LocalWeights{PeerID: "p1"},
			expected: message.KindTrainingTime,
			err:      pkgerrors.ErrProtocolMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.Background()
			a, b := mem.Pipe("a", "b")
			sender := channel.New(a)
			receiver := channel.New(plainConn{b})

			require.Nil(t, sender.Send(ctx, tc.sent))
			got, err := receiver.Expect(ctx, tc.expected)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				var mismatch *channel.ProtocolMismatchError
				require.True(t, errors.As(err, &mismatch))
				assert.Equal(t, tc.expected, mismatch.Expected)
				assert.Equal(t, tc.sent.Kind(), mismatch.Received)
				assert.Contains(t, err.Error(), string(tc.expected))
				assert.Contains(t, err.Error(), string(tc.sent.Kind()))

				return
			}
			require.Nil(t, err)
			assert.Equal(t, tc.sent, got)
		})
	}
}

func TestAwaitRequeues(t *testing.T) {
	ctx := context.Background()
	a, b := mem.Pipe("peers", "coordinator")
	sender := channel.New(a)
	receiver := channel.New(b)

	sent := []message.Message{
		message.LocalWeights{PeerID: "p1"},
		message.TrainingTime{PeerID: "p2", Seconds: 2},
		message.TrainingTime{PeerID: "p1", Seconds: 1},
		message.LocalWeights{PeerID: "p2"},
	}
	for _, msg := range sent {
		require.Nil(t, sender.Send(ctx, msg))
	}

	first, err := receiver.Await(ctx, message.KindTrainingTime)
	require.Nil(t, err)
	assert.Equal(t, sent[1], first)
	second, err := receiver.Await(ctx, message.KindTrainingTime)
	require.Nil(t, err)
	assert.Equal(t, sent[2], second)

	for _, want := range []message.Message{sent[0], sent[3]} {
		got, err := receiver.Await(ctx, message.KindLocalWeights)
		require.Nil(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAwaitFallsBackToExpect(t *testing.T) {
	ctx := context.Background()
	a, b := mem.Pipe("a", "b")
	require.Nil(t, channel.New(a).Send(ctx, message.Done{}))

	_, err := channel.New(plainConn{b}).Await(ctx, message.KindTrainingTime)
	assert.ErrorIs(t, err, pkgerrors.ErrProtocolMismatch)
}

func TestWaitTimeout(t *testing.T) {
	_, b := mem.Pipe("a", "b")
	receiver := channel.New(b, channel.WithWaitTimeout(20*time.Millisecond))

	_, err := receiver.Expect(context.Background(), message.KindTrainingTime)
	assert.ErrorIs(t, err, pkgerrors.ErrPeerTimeout)
}

func TestCallerCancelIsNotTimeout(t *testing.T) {
	_, b := mem.Pipe("a", "b")
	receiver := channel.New(b, channel.WithWaitTimeout(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := receiver.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, pkgerrors.ErrPeerTimeout)
}

func TestClosedConnIsTransportError(t *testing.T) {
	_, b := mem.Pipe("a", "b")
	receiver := channel.New(b)
	require.Nil(t, receiver.Close())

	_, err := receiver.Receive(context.Background())
	assert.ErrorIs(t, err, pkgerrors.ErrTransport)
}
