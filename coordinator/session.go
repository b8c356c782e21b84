package coordinator

import (
	"time"

	"github.com/absmach/splitfed/pkg/channel"
)

// PeerSession is the coordinator's end of one registered peer.
type PeerSession struct {
	ID           string
	Channel      *channel.Channel
	RegisteredAt time.Time
}
