package socket

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arjalkanen/reudp-go/internal/udpconn"
	"github.com/arjalkanen/reudp-go/pkg/rconfig"
	"github.com/arjalkanen/reudp-go/pkg/reliability"
	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
	"github.com/arjalkanen/reudp-go/pkg/reliability/timeoutpolicy"
	"github.com/arjalkanen/reudp-go/pkg/rlog"
	"github.com/arjalkanen/reudp-go/pkg/wire"
)

// fakeConn is an in-memory stand-in for *udpconn.Conn, letting tests
// drive send/recv deterministically instead of binding real sockets.
type fakeConn struct {
	local    *net.UDPAddr
	sent     []sentFrame
	inbox    []inboxFrame
	forceErr error
}

type sentFrame struct {
	buf []byte
	dst *net.UDPAddr
}

type inboxFrame struct {
	buf []byte
	src *net.UDPAddr
}

func newFakeConn() *fakeConn {
	return &fakeConn{local: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}}
}

func (f *fakeConn) Send(buf []byte, dst *net.UDPAddr) (int, error) {
	if f.forceErr != nil {
		err := f.forceErr
		f.forceErr = nil
		return -1, err
	}
	cp := append([]byte(nil), buf...)
	f.sent = append(f.sent, sentFrame{buf: cp, dst: dst})
	return len(buf), nil
}

func (f *fakeConn) Recv(buf []byte) (int, *net.UDPAddr, error) {
	if len(f.inbox) == 0 {
		return -1, nil, errWouldBlockTest
	}
	frame := f.inbox[0]
	f.inbox = f.inbox[1:]
	n := copy(buf, frame.buf)
	return n, frame.src, nil
}

func (f *fakeConn) LocalAddr() net.Addr { return f.local }
func (f *fakeConn) Close() error        { return nil }

var errWouldBlockTest = &testWouldBlockErr{}

type testWouldBlockErr struct{}

func (*testWouldBlockErr) Error() string { return "fake: would block" }

func newTestSocket(t *testing.T, fc *fakeConn) *Socket {
	t.Helper()
	return &Socket{
		c:       fc,
		engine:  reliability.New(&timeoutpolicy.Constant{Timeout: 2 * time.Second, Retries: 3}, peercontainer.NewShared(), nil),
		recvBuf: make([]byte, 2048),
		log:     rlog.New("socket-test", nil),
	}
}

// S1 — happy path through the façade.
func TestFacadeHappyPath(t *testing.T) {
	fc := newFakeConn()
	s := newTestSocket(t, fc)

	var outcomes []reliability.Outcome
	s.SetTerminalCallback(func(o reliability.Outcome, addr string, payload []byte) {
		outcomes = append(outcomes, o)
	})

	n, err := s.Send([]byte("1234"), "127.0.0.1:80")
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Len(t, fc.sent, 1)

	frameType, seq, _, decodeErr := wire.DecodeHeader(fc.sent[0].buf)
	require.NoError(t, decodeErr)
	require.Equal(t, wire.User, frameType)
	require.Equal(t, uint32(0), seq)

	ackBuf := wire.AppendHeader(nil, wire.Ack, 0, nil)
	fc.inbox = append(fc.inbox, inboxFrame{buf: ackBuf, src: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 80}})

	recvBuf := make([]byte, 64)
	_, _, recvErr := s.Recv(recvBuf)
	require.ErrorIs(t, recvErr, errWouldBlockTest)

	require.Equal(t, []reliability.Outcome{reliability.Success}, outcomes)
}

// S5 — a received USER datagram queues an ack the next flush-only send drains.
func TestFacadeReceivedUserQueuesAck(t *testing.T) {
	fc := newFakeConn()
	s := newTestSocket(t, fc)

	peerAddr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 81}
	userBuf := wire.AppendHeader(nil, wire.User, 1, []byte("1234"))
	fc.inbox = append(fc.inbox, inboxFrame{buf: userBuf, src: peerAddr})

	recvBuf := make([]byte, 64)
	n, src, err := s.Recv(recvBuf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, peerAddr.String(), src)
	require.True(t, s.HasPendingSend())

	_, err = s.Send(nil, "unused")
	require.NoError(t, err)
	require.Len(t, fc.sent, 1)

	frameType, seq, _, decodeErr := wire.DecodeHeader(fc.sent[0].buf)
	require.NoError(t, decodeErr)
	require.Equal(t, wire.Ack, frameType)
	require.Equal(t, uint32(1), seq)
	require.Equal(t, peerAddr.String(), fc.sent[0].dst.String())
}

// A WOULDBLOCK while draining a queued resend must stop the drain loop
// instead of spinning forever on the same un-popped queue head.
func TestFacadeSendStopsDrainingOnWouldBlock(t *testing.T) {
	fc := newFakeConn()
	s := newTestSocket(t, fc)

	// Queue one datagram for resend: its first send fails with
	// WOULDBLOCK before ever reaching the wire, landing it in the
	// resend queue.
	aux1 := s.engine.RegisterNew("127.0.0.1:80")
	_, err := s.engine.OnSendFailure([]byte("first"), "127.0.0.1:80", aux1, true, time.Now())
	require.NoError(t, err)
	require.True(t, s.HasPendingSend())

	fc.forceErr = udpconn.ErrWouldBlock

	n, err := s.Send(nil, "unused")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// The forced WOULDBLOCK kept the queued resend off the wire, and
	// Send returned instead of looping back on the same un-popped head.
	require.Len(t, fc.sent, 0)
	require.True(t, s.HasPendingSend(), "the failed resend must remain queued for a later drain")
}

// Open's default policy must actually read pkg/rconfig, so the
// --timeout/--send-try-count flags the example binaries wire into
// rconfig's setters take effect on sockets opened with no explicit Policy.
func TestDefaultPolicyFromConfigReadsRconfig(t *testing.T) {
	rconfig.SetTimeout(7 * time.Second)
	rconfig.SetSendTryCount(9)
	t.Cleanup(func() {
		rconfig.SetTimeout(3 * time.Second)
		rconfig.SetSendTryCount(3)
	})

	policy := defaultPolicyFromConfig()
	constant, ok := policy.(*timeoutpolicy.Constant)
	require.True(t, ok, "expected a Constant policy by default")
	require.Equal(t, 7*time.Second, constant.Timeout)
	require.Equal(t, uint32(9), constant.Retries)
}
