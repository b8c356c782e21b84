package message

import (
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/splitfed/pkg/errors"
	"github.com/fxamacker/cbor/v2"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")

	errNilMessage = errors.New("nil message")
)

// envelope is the on-wire shape of every message. Only the fields that
// belong to the envelope's kind are populated. The maps are always written
// so an empty map and a nil one decode to what was sent.
type envelope struct {
	Kind     Kind      `cbor:"kind"`
	PeerID   string    `cbor:"peer_id,omitempty"`
	Seconds  float64   `cbor:"seconds,omitempty"`
	Snapshot Snapshot  `cbor:"snapshot"`
	Plan     SplitPlan `cbor:"plan"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes a message into its CBOR envelope.
func Encode(m Message) ([]byte, error) {
	var env envelope
	switch v := m.(type) {
	case InitialWeights:
		env = envelope{Kind: KindInitialWeights, Snapshot: v.Snapshot, Plan: v.Plan}
	case TrainingTime:
		env = envelope{Kind: KindTrainingTime, PeerID: v.PeerID, Seconds: v.Seconds}
	case LocalWeights:
		env = envelope{Kind: KindLocalWeights, PeerID: v.PeerID, Snapshot: v.Snapshot}
	case CommunicationTime:
		env = envelope{Kind: KindCommunicationTime, PeerID: v.PeerID, Seconds: v.Seconds}
	case Register:
		env = envelope{Kind: KindRegister, PeerID: v.PeerID}
	case Done:
		env = envelope{Kind: KindDone}
	case Finish:
		env = envelope{Kind: KindFinish}
	case nil:
		return nil, errNilMessage
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}

	return encMode.Marshal(env)
}

// Decode parses a CBOR envelope back into a message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, errors.Join(pkgerrors.ErrInvalidData, err)
	}

	switch env.Kind {
	case KindInitialWeights:
		return InitialWeights{Snapshot: env.Snapshot, Plan: env.Plan}, nil
	case KindTrainingTime:
		return TrainingTime{PeerID: env.PeerID, Seconds: env.Seconds}, nil
	case KindLocalWeights:
		return LocalWeights{PeerID: env.PeerID, Snapshot: env.Snapshot}, nil
	case KindCommunicationTime:
		return CommunicationTime{PeerID: env.PeerID, Seconds: env.Seconds}, nil
	case KindRegister:
		return Register{PeerID: env.PeerID}, nil
	case KindDone:
		return Done{}, nil
	case KindFinish:
		return Finish{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}
