// Package message defines the tagged messages exchanged between the
// coordinator and its peers and their wire encoding.
package message

// Kind is the wire-visible tag of a message.
type Kind string

const (
	KindInitialWeights    Kind = "MSG_INITIAL_GLOBAL_WEIGHTS_SERVER_TO_CLIENT"
	KindTrainingTime      Kind = "MSG_TRAINING_TIME_PER_ITERATION"
	KindLocalWeights      Kind = "MSG_LOCAL_WEIGHTS_CLIENT_TO_SERVER"
	KindCommunicationTime Kind = "MSG_COMMUNICATION_TIME"
	KindDone              Kind = "DONE"
	KindFinish            Kind = "Finish"
	KindRegister          Kind = "MSG_REGISTER"
)

func (k Kind) String() string {
	return string(k)
}

// Message is implemented only by the variants declared in this package.
type Message interface {
	Kind() Kind
	sealed()
}

// SplitPlan assigns a split layer to every peer.
type SplitPlan map[string]int

// InitialWeights carries the global snapshot and the split plan from the
// coordinator to every peer at the start of a round.
type InitialWeights struct {
	Snapshot Snapshot
	Plan     SplitPlan
}

// TrainingTime reports how long one local training pass took.
type TrainingTime struct {
	PeerID  string
	Seconds float64
}

// LocalWeights carries a peer's trained snapshot.
type LocalWeights struct {
	PeerID   string
	Snapshot Snapshot
}

// CommunicationTime reports a peer's accumulated upload time.
type CommunicationTime struct {
	PeerID  string
	Seconds float64
}

// Register announces a peer to the coordinator.
type Register struct {
	PeerID string
}

// Done ends the session from the coordinator side.
type Done struct{}

// Finish aborts the session. Receivers pass it through whatever kind they
// were waiting for.
type Finish struct{}

func (InitialWeights) Kind() Kind    { return KindInitialWeights }
func (TrainingTime) Kind() Kind      { return KindTrainingTime }
func (LocalWeights) Kind() Kind      { return KindLocalWeights }
func (CommunicationTime) Kind() Kind { return KindCommunicationTime }
func (Register) Kind() Kind          { return KindRegister }
func (Done) Kind() Kind              { return KindDone }
func (Finish) Kind() Kind            { return KindFinish }

func (InitialWeights) sealed()    {}
func (TrainingTime) sealed()      {}
func (LocalWeights) sealed()      {}
func (CommunicationTime) sealed() {}
func (Register) sealed()          {}
func (Done) sealed()              {}
func (Finish) sealed()            {}

// PeerOf returns the sender identity carried by peer-originated messages.
func PeerOf(m Message) (string, bool) {
	switch v := m.(type) {
	case TrainingTime:
		return v.PeerID, true
	case LocalWeights:
		return v.PeerID, true
	case CommunicationTime:
		return v.PeerID, true
	case Register:
		return v.PeerID, true
	default:
		return "", false
	}
}
