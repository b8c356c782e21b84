package message_test

import (
	"fmt"
	"testing"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/absmach/splitfed/pkg/message"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() message.Snapshot {
	return message.Snapshot{
		"conv1.weight": {Shape: []int{2, 2}, Data: []float64{0.1, -0.2, 0.3, 1e-9}},
		"fc.bias":      {Shape: []int{3}, Data: []float64{1, 2, 3}},
	}
}

func TestEncodeDecode(t *testing.T) {
	cases := []struct {
		desc string
		msg  message.Message
	}{
		{
			desc: "initial weights",
			msg:  message.InitialWeights{Snapshot: testSnapshot(), Plan: message.SplitPlan{"peer-1": 6, "peer-2": 9}},
		},
		{
			desc: "initial weights with empty maps",
			msg:  message.InitialWeights{Snapshot: message.Snapshot{}, Plan: message.SplitPlan{}},
		},
		{
			desc: "initial weights with nil maps",
			msg:  message.InitialWeights{},
		},
		{
			desc: "training time",
			msg:  message.TrainingTime{PeerID: "peer-1", Seconds: 0.734},
		},
		{
			desc: "local weights",
			msg:  message.LocalWeights{PeerID: "peer-2", Snapshot: testSnapshot()},
		},
		{
			desc: "local weights with empty snapshot",
			msg:  message.LocalWeights{PeerID: "peer-2", Snapshot: message.Snapshot{}},
		},
		{
			desc: "communication time",
			msg:  message.CommunicationTime{PeerID: "peer-1", Seconds: 3.4},
		},
		{
			desc: "register",
			msg:  message.Register{PeerID: "peer-3"},
		},
		{
			desc: "done",
			msg:  message.Done{},
		},
		{
			desc: "finish",
			msg:  message.Finish{},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			data, err := message.Encode(tc.msg)
			require.Nil(t, err, fmt.Sprintf("%s: unexpected encode error %v", tc.desc, err))

			decoded, err := message.Decode(data)
			require.Nil(t, err, fmt.Sprintf("%s: unexpected decode error %v", tc.desc, err))
			assert.Equal(t, tc.msg.Kind(), decoded.Kind())
			assert.Equal(t, tc.msg, decoded)
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	msg := message.InitialWeights{Snapshot: testSnapshot(), Plan: message.SplitPlan{"b": 1, "a": 2, "c": 3}}

	first, err := message.Encode(msg)
	require.Nil(t, err)
	for range 10 {
		again, err := message.Encode(msg)
		require.Nil(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDecodeErrors(t *testing.T) {
	unknown, err := cbor.Marshal(map[string]string{"kind": "MSG_BOGUS"})
	require.Nil(t, err)

	cases := []struct {
		desc string
		data []byte
		err  error
	}{
		{
			desc: "garbage bytes",
			data: []byte{0xff, 0x00, 0x13},
			err:  pkgerrors.ErrInvalidData,
		},
		{
			desc: "empty input",
			data: nil,
			err:  pkgerrors.ErrInvalidData,
		},
		{
			desc: "unknown kind",
			data: unknown,
			err:  message.ErrUnknownKind,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := message.Decode(tc.data)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestEncodeNil(t *testing.T) {
	_, err := message.Encode(nil)
	assert.Error(t, err)
}

func TestPeerOf(t *testing.T) {
	cases := []struct {
		desc string
		msg  message.Message
		peer string
		ok   bool
	}{
		{desc: "training time", msg: message.TrainingTime{PeerID: "a"}, peer: "a", ok: true},
		{desc: "local weights", msg: message.LocalWeights{PeerID: "b"}, peer: "b", ok: true},
		{desc: "communication time", msg: message.CommunicationTime{PeerID: "c"}, peer: "c", ok: true},
		{desc: "register", msg: message.Register{PeerID: "d"}, peer: "d", ok: true},
		{desc: "done", msg: message.Done{}, ok: false},
		{desc: "initial weights", msg: message.InitialWeights{}, ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			peer, ok := message.PeerOf(tc.msg)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.peer, peer)
		})
	}
}

func TestSnapshotClone(t *testing.T) {
	orig := testSnapshot()
	clone := orig.Clone()
	require.Equal(t, orig, clone)

	clone["fc.bias"].Data[0] = 42
	assert.Equal(t, 1.0, orig["fc.bias"].Data[0])

	zero := orig.ZeroLike()
	assert.Equal(t, orig.Names(), zero.Names())
	assert.Equal(t, orig.Size(), zero.Size())
	for _, tensor := range zero {
		for _, v := range tensor.Data {
			assert.Zero(t, v)
		}
	}
}
