package timeoutpolicy

import (
	"time"

	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
)

// Constant is the simplest timeout policy: every peer waits the same
// fixed duration for an ack, and gets the same fixed retry budget.
// Matches original_source/src/reudp/strategy/timeout/constant.h: it
// needs no per-peer state at all, so it is normally paired with
// peercontainer.Shared.
type Constant struct {
	// Timeout is how long to wait for an ack before resending.
	Timeout time.Duration
	// Retries is the total number of send attempts (first send included).
	Retries uint32
}

// constantPeerState is an empty marker type: Constant has nothing to
// store per peer, mirroring original_source's empty `struct peer_struct {}`.
type constantPeerState struct{}

func (c *Constant) NewPeerState() interface{} {
	return &constantPeerState{}
}

func (c *Constant) NextDeadline(now time.Time, _ SendInfo, _ *peercontainer.PeerState) time.Time {
	return now.Add(c.Timeout)
}

func (c *Constant) RetryBudget(_ *peercontainer.PeerState) uint32 {
	return c.Retries
}

func (c *Constant) OnPacketSent(time.Time, SendInfo, *peercontainer.PeerState) {}

func (c *Constant) OnAckReceived(time.Time, SendInfo, *peercontainer.PeerState) {}

func (c *Constant) OnSendTimeout(time.Time, SendInfo, *peercontainer.PeerState) {}
