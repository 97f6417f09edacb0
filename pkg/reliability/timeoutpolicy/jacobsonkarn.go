package timeoutpolicy

import (
	"time"

	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
)

const (
	rtoMin = 1000  // ms, clamp floor per RFC 2988
	rtoMax = 32000 // ms, clamp ceiling per RFC 2988

	rtoDefault    = 3000 // ms, initial RTO before any sample arrives
	rttvarDefault = 750  // ms
)

// JacobsonKarnState is the per-peer RTT/RTO state, one instance stored
// per address inside a peercontainer.PerAddr. Field names and default
// values match original_source/src/reudp/strategy/timeout/jacobson_karn.h's
// peer_struct exactly.
type JacobsonKarnState struct {
	RTOMs      int32
	SRTTMs     int32
	RTTVarMs   int32
	FirstSample bool
}

func newJacobsonKarnState() *JacobsonKarnState {
	return &JacobsonKarnState{
		RTOMs:       rtoDefault,
		SRTTMs:      0,
		RTTVarMs:    rttvarDefault,
		FirstSample: true,
	}
}

// JacobsonKarn implements RFC 2988 RTT estimation with Karn's
// ambiguity rule: an ack for a datagram that has been sent more than
// once cannot be unambiguously timed, so it contributes no sample.
type JacobsonKarn struct {
	// Retries is the total number of send attempts (first send included).
	Retries uint32
}

func (j *JacobsonKarn) NewPeerState() interface{} {
	return newJacobsonKarnState()
}

func (j *JacobsonKarn) state(peer *peercontainer.PeerState) *JacobsonKarnState {
	return peer.Data.(*JacobsonKarnState)
}

func (j *JacobsonKarn) NextDeadline(now time.Time, _ SendInfo, peer *peercontainer.PeerState) time.Time {
	peer.Lock()
	defer peer.Unlock()
	rto := j.state(peer).RTOMs
	return now.Add(time.Duration(rto) * time.Millisecond)
}

func (j *JacobsonKarn) RetryBudget(_ *peercontainer.PeerState) uint32 {
	return j.Retries
}

func (j *JacobsonKarn) OnPacketSent(time.Time, SendInfo, *peercontainer.PeerState) {}

// OnAckReceived applies Karn's rule and, for an unambiguous sample,
// the RFC 2988 srtt/rttvar/rto update formulas. Bit-identical to
// original_source/src/reudp/strategy/timeout/jacobson_karn.h's
// ack_received.
func (j *JacobsonKarn) OnAckReceived(now time.Time, info SendInfo, peer *peercontainer.PeerState) {
	if info.SendCount > 1 {
		// Karn's rule: the ack could match any of several
		// transmissions of this datagram, so its RTT is ambiguous
		// and must be discarded.
		return
	}

	peer.Lock()
	defer peer.Unlock()
	s := j.state(peer)

	rtt := int32(now.Sub(info.BaseTimestamp).Milliseconds())
	if s.FirstSample {
		s.FirstSample = false
		s.SRTTMs = rtt
		s.RTTVarMs = rtt / 2
	} else {
		delta := s.SRTTMs - rtt
		if delta < 0 {
			delta = -delta
		}
		s.RTTVarMs += (delta - s.RTTVarMs) >> 2
		s.SRTTMs += (rtt - s.SRTTMs) >> 3
	}

	rto := s.SRTTMs + (s.RTTVarMs << 2)
	s.RTOMs = clampRTO(rto)
}

// OnSendTimeout doubles the peer's RTO (capped at rtoMax) on each
// retransmission deadline miss. original_source has no visible
// mutation path for this; grounded instead on the vendored kcp-go
// RTO-doubling-on-resend behavior (see DESIGN.md).
func (j *JacobsonKarn) OnSendTimeout(_ time.Time, _ SendInfo, peer *peercontainer.PeerState) {
	peer.Lock()
	defer peer.Unlock()
	s := j.state(peer)
	s.RTOMs = clampRTO(s.RTOMs * 2)
}

func clampRTO(rto int32) int32 {
	if rto < rtoMin {
		return rtoMin
	}
	if rto > rtoMax {
		return rtoMax
	}
	return rto
}
