// Package socket composes the reliability engine (pkg/reliability)
// with a datagram socket adapter (internal/udpconn) into the public
// send/recv façade applications use.
package socket

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/arjalkanen/reudp-go/internal/udpconn"
	"github.com/arjalkanen/reudp-go/pkg/rconfig"
	"github.com/arjalkanen/reudp-go/pkg/reliability"
	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
	"github.com/arjalkanen/reudp-go/pkg/reliability/timeoutpolicy"
	"github.com/arjalkanen/reudp-go/pkg/rlog"
	"github.com/arjalkanen/reudp-go/pkg/wire"
)

// Outcome is a registered datagram's terminal disposition, re-exported
// so callers of this package don't need to import pkg/reliability directly.
type Outcome = reliability.Outcome

const (
	Success = reliability.Success
	Timeout = reliability.Timeout
	Failure = reliability.Failure
)

// conn is the subset of *udpconn.Conn the façade needs, narrowed so
// tests can substitute a fake socket.
type conn interface {
	Send(buf []byte, dst *net.UDPAddr) (int, error)
	Recv(buf []byte) (int, *net.UDPAddr, error)
	LocalAddr() net.Addr
	Close() error
}

// Socket is the public façade: a reliable-delivery wrapper around one
// UDP endpoint. Each instance carries an xid tag so multiple sockets
// in one process are distinguishable in logs and metrics.
type Socket struct {
	c      conn
	engine *reliability.Engine
	log    *rlog.Logger
	tag    xid.ID

	recvBuf []byte
}

// Options configures a new Socket.
type Options struct {
	// Policy selects the retransmission-timeout strategy. Defaults to
	// a Constant policy seeded from pkg/rconfig if nil.
	Policy timeoutpolicy.Policy
	// Peers selects the per-peer state container paired with Policy.
	// Defaults to peercontainer.NewShared() if nil.
	Peers peercontainer.Container
	// MaxFrameSize bounds the receive buffer. Defaults to 2048.
	MaxFrameSize int
}

// Open binds localAddr and wires an Engine around it.
func Open(localAddr string, opts Options) (*Socket, error) {
	c, err := udpconn.Open(localAddr)
	if err != nil {
		return nil, errors.Wrap(err, "socket: open")
	}

	policy := opts.Policy
	peers := opts.Peers
	if policy == nil {
		policy = defaultPolicyFromConfig()
	}
	if peers == nil {
		peers = peercontainer.NewShared()
	}

	tag := xid.New()
	log := rlog.New("socket", map[string]interface{}{"socket_id": tag.String()})

	maxFrame := opts.MaxFrameSize
	if maxFrame <= 0 {
		maxFrame = 2048
	}

	return &Socket{
		c:       c,
		engine:  reliability.New(policy, peers, log),
		log:     log,
		tag:     tag,
		recvBuf: make([]byte, maxFrame),
	}, nil
}

// defaultPolicyFromConfig builds the Constant policy Open falls back to
// when the caller doesn't supply one, reading the process-wide timeout
// and send-try-count so pkg/rconfig's setters (and the CLI flags that
// call them) actually take effect on new sockets.
func defaultPolicyFromConfig() timeoutpolicy.Policy {
	cfg := rconfig.Snapshot()
	return &timeoutpolicy.Constant{Timeout: cfg.Timeout, Retries: cfg.SendTryCount}
}

// SetTerminalCallback installs the callback invoked exactly once per
// registered outbound datagram with its SUCCESS/TIMEOUT/FAILURE outcome.
func (s *Socket) SetTerminalCallback(cb reliability.TerminalCallback) {
	s.engine.SetTerminalCallback(cb)
}

// Send implements the §4.5 send loop: drain queued acks/resends
// first, then (if buf is non-nil) register and send the new payload.
func (s *Socket) Send(buf []byte, dst string) (int, error) {
	now := time.Now()
	failedDuringDrain := false

	for s.engine.HasPendingSend(now) {
		frame, ok := s.engine.DrainReady()
		if !ok {
			break
		}
		sent, err := s.writeFrame(frame, now)
		if err != nil {
			failedDuringDrain = true
		}
		if !sent {
			// WOULDBLOCK (or a terminal error): the frame is left at the
			// head of its queue, so draining again now would just spin
			// on the same entry. Stop and let the caller retry later.
			break
		}
	}

	if buf == nil {
		return 0, nil
	}

	dstAddr, err := net.ResolveUDPAddr("udp", dst)
	if err != nil {
		return -1, errors.Wrap(err, "socket: resolve destination")
	}

	aux := s.engine.RegisterNew(dst)
	if failedDuringDrain {
		// A prior queued datagram failed terminally before we got to
		// the caller's own payload; don't silently drop this one too.
		s.engine.OnSendFailure(buf, dst, aux, false, now)
		return -1, errors.New("socket: a queued datagram failed before this send")
	}

	frame := reliability.QueuedFrame{Payload: buf, Dest: dst, Aux: aux}
	if _, err := s.writeUserFrame(frame, dstAddr, now); err != nil {
		return -1, err
	}
	return len(buf), nil
}

// writeFrame reports (sent, err): sent is false whenever the frame did
// not actually go out — WOULDBLOCK or a resolve/send error — which
// tells the drain loop in Send to stop rather than re-attempt the same
// queue head. err is the terminal application-facing error, if any;
// WOULDBLOCK is not terminal, so it comes back as sent=false, err=nil.
func (s *Socket) writeFrame(frame reliability.QueuedFrame, now time.Time) (bool, error) {
	addr, err := net.ResolveUDPAddr("udp", frame.Dest)
	if err != nil {
		return false, err
	}
	return s.writeUserFrame(frame, addr, now)
}

func (s *Socket) writeUserFrame(frame reliability.QueuedFrame, dstAddr *net.UDPAddr, now time.Time) (bool, error) {
	wireBuf := wire.AppendHeader(nil, frame.Aux.Type, frame.Aux.Sequence, frame.Payload)

	n, sendErr := s.c.Send(wireBuf, dstAddr)
	if sendErr == nil {
		_, err := s.engine.OnSendSuccess(frame.Payload, frame.Dest, frame.Aux, now)
		return true, err
	}

	wouldBlock := errors.Is(sendErr, udpconn.ErrWouldBlock)
	if !wouldBlock {
		s.log.Warn("send to %s failed: %v", frame.Dest, sendErr)
	}
	if _, err := s.engine.OnSendFailure(frame.Payload, frame.Dest, frame.Aux, wouldBlock, now); err != nil {
		return false, err
	}
	if !wouldBlock {
		return false, sendErr
	}
	_ = n
	return false, nil
}

// Recv implements the §4.5 recv loop: read one frame, dispatch it
// through the engine, and keep looping past acks/malformed/unknown
// frames until a USER payload is available (or the socket errors).
func (s *Socket) Recv(buf []byte) (int, string, error) {
	for {
		n, src, err := s.c.Recv(s.recvBuf)
		if err != nil {
			return -1, "", err
		}

		frameType, seq, payload, decodeErr := wire.DecodeHeader(s.recvBuf[:n])
		if decodeErr != nil {
			s.log.Warn("dropping malformed frame from %s: %v", src, decodeErr)
			continue
		}

		aux := reliability.AuxData{Type: frameType, Sequence: seq}
		appBytes := s.engine.OnReceived(payload, src.String(), aux, time.Now())
		if aux.Type != wire.User || appBytes == 0 {
			continue
		}

		copy(buf, payload[:appBytes])
		return appBytes, src.String(), nil
	}
}

// HasPendingSend reports whether the engine has queued acks or
// resends awaiting a drain.
func (s *Socket) HasPendingSend() bool {
	return s.engine.HasPendingSend(time.Now())
}

// NextWakeup returns the earliest retransmission deadline, or the
// zero Time with ok=false if no retransmission deadline is scheduled.
func (s *Socket) NextWakeup() (time.Time, bool) {
	return s.engine.NextWakeup()
}

// LocalAddr reports the address the underlying socket is bound to.
func (s *Socket) LocalAddr() net.Addr {
	return s.c.LocalAddr()
}

// Handle returns the socket's xid tag, used to disambiguate multiple
// Socket instances in logs and metrics within one process.
func (s *Socket) Handle() string {
	return s.tag.String()
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.c.Close()
}
