// Package timeoutpolicy computes retransmission deadlines and retry
// budgets for the reliability engine, and updates per-peer RTT/RTO
// state on ack/timeout events.
//
// Two implementations are provided: Constant (a fixed timeout and
// retry count, no per-peer data) and JacobsonKarn (RFC 2988-style RTT
// estimation with Karn's ambiguity rule).
package timeoutpolicy

import (
	"time"

	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
)

// SendInfo is the subset of an in-flight entry's state a timeout
// policy needs to compute a deadline or process an ack/timeout.
type SendInfo struct {
	SendCount     uint32
	BaseTimestamp time.Time
}

// Policy is the capability set a timeout strategy must expose: given the
// current time, a datagram's send info, and its peer's state,
// schedule resends and maintain RTT estimates.
type Policy interface {
	// NextDeadline computes the instant at which an unacknowledged
	// datagram should be retransmitted.
	NextDeadline(now time.Time, info SendInfo, peer *peercontainer.PeerState) time.Time

	// RetryBudget returns the maximum number of total transmission
	// attempts (first send + retries) for a datagram against peer.
	RetryBudget(peer *peercontainer.PeerState) uint32

	// OnPacketSent is invoked every time a datagram (first send or
	// resend) is successfully handed to the socket.
	OnPacketSent(now time.Time, info SendInfo, peer *peercontainer.PeerState)

	// OnAckReceived is invoked when an ack arrives for info's sequence,
	// before the in-flight entry is removed, so the policy can sample RTT.
	OnAckReceived(now time.Time, info SendInfo, peer *peercontainer.PeerState)

	// OnSendTimeout is invoked when a retransmission deadline has
	// elapsed for a datagram still in flight, before the engine checks
	// its retry budget, so it also runs for the final timeout that
	// exhausts the budget.
	OnSendTimeout(now time.Time, info SendInfo, peer *peercontainer.PeerState)

	// NewPeerState constructs the initial per-peer state this
	// policy expects to find inside a peercontainer.PeerState's Data.
	NewPeerState() interface{}
}
