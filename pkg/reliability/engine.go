// Package reliability implements the core of the reudp reliability
// engine: sequence assignment, in-flight tracking, the pending-ack
// and resend queues, the timeout min-heap, and the dispatch logic
// that turns socket outcomes into terminal callbacks.
//
// The engine performs no internal scheduling and is not safe for
// concurrent use — it is single-threaded and caller-driven: all
// mutation happens on whichever goroutine calls
// RegisterNew/OnSendSuccess/OnSendFailure/OnReceived/HasPendingSend/
// NextWakeup. Callers that share one Engine across goroutines must
// serialize their own access to it.
package reliability

import (
	"fmt"
	"time"

	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
	"github.com/arjalkanen/reudp-go/pkg/reliability/timeoutpolicy"
	"github.com/arjalkanen/reudp-go/pkg/rlog"
	"github.com/arjalkanen/reudp-go/pkg/wire"
)

// Outcome is the terminal disposition of a registered USER datagram.
type Outcome int

const (
	// Success means an ack was received for the datagram.
	Success Outcome = iota
	// Timeout means the retry budget was exhausted with no ack.
	Timeout
	// Failure means the socket reported a non-transient send error.
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case Timeout:
		return "TIMEOUT"
	case Failure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// TerminalCallback is invoked exactly once per registered USER
// datagram, with the outcome, the destination peer, and (for FAILURE
// only — SUCCESS and TIMEOUT pass nil) the payload that failed to send.
type TerminalCallback func(outcome Outcome, peerAddr string, payload []byte)

// AuxData is the auxiliary datagram descriptor carried between the
// socket façade and the engine.
type AuxData struct {
	Type     wire.FrameType
	Sequence uint32
	Resend   bool
}

// QueuedFrame is one frame the façade must encode and write, returned
// by DrainReady.
type QueuedFrame struct {
	Payload []byte
	Dest    string
	Aux     AuxData
}

type inFlightEntry struct {
	sequence      uint32
	payload       []byte
	dest          string
	sendCount     uint32
	baseTimestamp time.Time
}

// Counters are monotonic counts of engine activity, read by pkg/metrics.
type Counters struct {
	Registered   uint64
	Sent         uint64
	Retransmits  uint64
	AcksSent     uint64
	Successes    uint64
	Timeouts     uint64
	Failures     uint64
	WouldBlocks  uint64
	MalformedIn  uint64
	UnknownAcked uint64
}

// Engine is the reliability state machine driving sequence tracking,
// retransmission, and ack dispatch for one transport endpoint.
type Engine struct {
	policy timeoutpolicy.Policy
	peers  peercontainer.Container
	log    *rlog.Logger

	seq uint64

	inFlight map[uint32]*inFlightEntry

	pendingAcks ackFifo
	resendQueue fifo
	timeouts    timeoutHeap

	callback TerminalCallback

	counters Counters
}

// New constructs an Engine using policy for retransmission scheduling
// and peers for per-peer timeout state.
func New(policy timeoutpolicy.Policy, peers peercontainer.Container, log *rlog.Logger) *Engine {
	if log == nil {
		log = rlog.New("reliability", nil)
	}
	return &Engine{
		policy:   policy,
		peers:    peers,
		log:      log,
		inFlight: make(map[uint32]*inFlightEntry),
	}
}

// SetTerminalCallback installs the callback invoked on SUCCESS,
// TIMEOUT, or FAILURE for a registered datagram.
func (e *Engine) SetTerminalCallback(cb TerminalCallback) {
	e.callback = cb
}

func (e *Engine) fire(outcome Outcome, peerAddr string, payload []byte) {
	switch outcome {
	case Success:
		e.counters.Successes++
	case Timeout:
		e.counters.Timeouts++
	case Failure:
		e.counters.Failures++
	}
	if e.callback != nil {
		e.callback(outcome, peerAddr, payload)
	}
}

func (e *Engine) peerState(addr string) *peercontainer.PeerState {
	return e.peers.GetOrDefault(addr, e.policy.NewPeerState)
}

// RegisterNew allocates the next sequence number for a new outbound
// USER datagram. No buffer is retained until OnSendSuccess is called.
func (e *Engine) RegisterNew(dst string) AuxData {
	seq := uint32(e.seq)
	e.seq++
	e.counters.Registered++
	return AuxData{Type: wire.User, Sequence: seq, Resend: false}
}

// newAckAux builds the aux data for a synthesized ACK frame. It does
// NOT allocate a new sequence number: the ack frame reuses the
// sequence of the USER datagram it acknowledges (see DESIGN.md).
func newAckAux(seq uint32) AuxData {
	return AuxData{Type: wire.Ack, Sequence: seq, Resend: false}
}

// OnSendSuccess dispatches on (frame type, is-resend).
func (e *Engine) OnSendSuccess(buf []byte, dst string, aux AuxData, now time.Time) (int, error) {
	switch {
	case aux.Type == wire.Ack:
		return e.onAckSendSuccess(aux)
	case aux.Type == wire.User && !aux.Resend:
		return e.onFirstSendSuccess(buf, dst, aux, now)
	case aux.Type == wire.User && aux.Resend:
		return e.onResendSuccess(buf, dst, aux, now)
	default:
		return -1, fmt.Errorf("reliability: unrecognized aux data %+v", aux)
	}
}

func (e *Engine) onAckSendSuccess(aux AuxData) (int, error) {
	head, ok := e.pendingAcks.pop()
	if !ok {
		return -1, fmt.Errorf("reliability: ack sent but pending-ack queue is empty")
	}
	if head.sequence != aux.Sequence {
		return -1, fmt.Errorf("reliability: ack sequence mismatch: sent %d, queue head %d", aux.Sequence, head.sequence)
	}
	e.counters.AcksSent++
	return 0, nil
}

func (e *Engine) onFirstSendSuccess(buf []byte, dst string, aux AuxData, now time.Time) (int, error) {
	if _, exists := e.inFlight[aux.Sequence]; exists {
		return -1, fmt.Errorf("reliability: sequence %d already in flight", aux.Sequence)
	}
	entry := &inFlightEntry{
		sequence:      aux.Sequence,
		payload:       append([]byte(nil), buf...),
		dest:          dst,
		sendCount:     1,
		baseTimestamp: now,
	}
	e.inFlight[aux.Sequence] = entry
	e.scheduleTimeout(entry, now)
	e.counters.Sent++
	return len(buf), nil
}

func (e *Engine) onResendSuccess(buf []byte, dst string, aux AuxData, now time.Time) (int, error) {
	entry, ok := e.inFlight[aux.Sequence]
	if !ok {
		return -1, fmt.Errorf("reliability: resend of unknown sequence %d", aux.Sequence)
	}
	entry.sendCount++
	e.scheduleTimeout(entry, now)

	headSeq, ok := e.resendQueue.pop()
	if !ok || headSeq != aux.Sequence {
		return -1, fmt.Errorf("reliability: resend queue head mismatch for sequence %d", aux.Sequence)
	}
	e.counters.Retransmits++
	return len(buf), nil
}

func (e *Engine) scheduleTimeout(entry *inFlightEntry, now time.Time) {
	peer := e.peerState(entry.dest)
	info := timeoutpolicy.SendInfo{SendCount: entry.sendCount, BaseTimestamp: entry.baseTimestamp}
	deadline := e.policy.NextDeadline(now, info, peer)
	e.policy.OnPacketSent(now, info, peer)
	pushDeadline(&e.timeouts, entry.sequence, deadline)
}

// OnSendFailure dispatches on (frame type, is-resend, wouldBlock).
func (e *Engine) OnSendFailure(buf []byte, dst string, aux AuxData, wouldBlock bool, now time.Time) (int, error) {
	switch {
	case aux.Type == wire.Ack:
		// Acks are best-effort: the peer will eventually retransmit
		// its USER datagram and we'll enqueue another ack then.
		if head, ok := e.pendingAcks.front(); ok && head.sequence == aux.Sequence {
			e.pendingAcks.pop()
		}
		return -1, nil

	case aux.Type == wire.User && !aux.Resend && wouldBlock:
		e.counters.WouldBlocks++
		entry := &inFlightEntry{
			sequence:      aux.Sequence,
			payload:       append([]byte(nil), buf...),
			dest:          dst,
			sendCount:     1,
			baseTimestamp: now,
		}
		e.inFlight[aux.Sequence] = entry
		e.resendQueue.push(aux.Sequence)
		// No timeout entry yet: this datagram hasn't actually been
		// sent, so nothing should expire until the deferred send
		// eventually succeeds or fails for real.
		return len(buf), nil

	case aux.Type == wire.User && !aux.Resend:
		e.fire(Failure, dst, buf)
		return -1, nil

	case aux.Type == wire.User && aux.Resend && wouldBlock:
		// Leave it at the head of the resend queue; try again next drain.
		return -1, nil

	case aux.Type == wire.User && aux.Resend:
		if headSeq, ok := e.resendQueue.pop(); !ok || headSeq != aux.Sequence {
			return -1, fmt.Errorf("reliability: resend queue head mismatch on failure for sequence %d", aux.Sequence)
		}
		delete(e.inFlight, aux.Sequence)
		e.fire(Failure, dst, buf)
		return -1, nil

	default:
		return -1, fmt.Errorf("reliability: unrecognized aux data %+v", aux)
	}
}

// OnReceived dispatches a decoded inbound frame by type. It returns
// the number of application payload bytes the caller should surface
// (0 for acks, malformed, or unknown frames).
func (e *Engine) OnReceived(payload []byte, src string, aux AuxData, now time.Time) int {
	switch aux.Type {
	case wire.Ack:
		e.onReceivedAck(src, aux, now)
		return 0
	case wire.User:
		e.pendingAcks.push(ackRecord{sequence: aux.Sequence, peerAddr: src})
		return len(payload)
	default:
		e.log.Warn("dropping frame with unknown type from %s, sequence %d", src, aux.Sequence)
		return 0
	}
}

func (e *Engine) onReceivedAck(src string, aux AuxData, now time.Time) {
	entry, ok := e.inFlight[aux.Sequence]
	if !ok {
		e.counters.UnknownAcked++
		e.log.Warn("ack for unknown sequence %d from %s", aux.Sequence, src)
		return
	}

	peer := e.peerState(entry.dest)
	info := timeoutpolicy.SendInfo{SendCount: entry.sendCount, BaseTimestamp: entry.baseTimestamp}
	e.policy.OnAckReceived(now, info, peer)

	delete(e.inFlight, aux.Sequence)
	e.fire(Success, entry.dest, nil)
}

// DrainReady returns the next frame the façade should write: pending
// acks first, then resends, in that strict order.
func (e *Engine) DrainReady() (QueuedFrame, bool) {
	if rec, ok := e.pendingAcks.front(); ok {
		return QueuedFrame{Payload: nil, Dest: rec.peerAddr, Aux: newAckAux(rec.sequence)}, true
	}
	if seq, ok := e.resendQueue.front(); ok {
		entry, found := e.inFlight[seq]
		if !found {
			// Stale: the entry was already retired (e.g. by an
			// ack received) between being queued and being
			// drained here. Drop it and let the caller try again.
			e.resendQueue.pop()
			return e.DrainReady()
		}
		return QueuedFrame{Payload: entry.payload, Dest: entry.dest, Aux: AuxData{Type: wire.User, Sequence: seq, Resend: true}}, true
	}
	return QueuedFrame{}, false
}

// HasPendingSend promotes any expired timeout-heap entries into the
// resend queue, retires any resend whose retry budget is exhausted
// (firing TIMEOUT), and reports whether there is now anything queued
// to send.
func (e *Engine) HasPendingSend(now time.Time) bool {
	e.promoteExpired(now)
	e.retireExhausted(now)
	return e.pendingAcks.len() > 0 || e.resendQueue.len() > 0
}

func (e *Engine) promoteExpired(now time.Time) {
	for {
		deadline, ok := peekDeadline(e.timeouts)
		if !ok || deadline.After(now) {
			return
		}
		item := popDeadline(&e.timeouts)
		entry, ok := e.inFlight[item.sequence]
		if !ok {
			// Stale entry for an already-retired sequence; ignored.
			continue
		}
		peer := e.peerState(entry.dest)
		info := timeoutpolicy.SendInfo{SendCount: entry.sendCount, BaseTimestamp: entry.baseTimestamp}
		e.policy.OnSendTimeout(now, info, peer)
		e.resendQueue.push(item.sequence)
	}
}

func (e *Engine) retireExhausted(now time.Time) {
	for {
		seq, ok := e.resendQueue.front()
		if !ok {
			return
		}
		entry, found := e.inFlight[seq]
		if !found {
			// Stale head; drop and keep looking.
			e.resendQueue.pop()
			continue
		}
		peer := e.peerState(entry.dest)
		budget := e.policy.RetryBudget(peer)
		if entry.sendCount < budget {
			return
		}

		e.resendQueue.pop()
		delete(e.inFlight, seq)
		e.fire(Timeout, entry.dest, nil)
	}
}

// NextWakeup returns the earliest retransmission deadline, or ok=false
// if no retransmission deadline is scheduled.
func (e *Engine) NextWakeup() (time.Time, bool) {
	return peekDeadline(e.timeouts)
}

// Reset flushes all queues and the in-flight table without firing any
// terminal callbacks.
func (e *Engine) Reset() {
	e.inFlight = make(map[uint32]*inFlightEntry)
	e.pendingAcks.reset()
	e.resendQueue.reset()
	e.timeouts = nil
}

// CountersSnapshot returns a snapshot of the engine's activity counters.
func (e *Engine) CountersSnapshot() Counters {
	return e.counters
}

// InFlightCount reports the current size of the in-flight table, the
// engine's memory high-water mark.
func (e *Engine) InFlightCount() int {
	return len(e.inFlight)
}
