// Package udpconn adapts *net.UDPConn to the datagram socket contract
// the reliability engine's façade expects: Send/Recv
// report WOULDBLOCK and ICMP-unreachable-on-recv as distinct,
// recoverable conditions rather than opaque errors.
package udpconn

import (
	"errors"
	"net"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Conn wraps a *net.UDPConn and classifies its errors the way the
// engine's error taxonomy requires.
type Conn struct {
	pc *net.UDPConn
}

// Open binds a UDP socket at localAddr ("" picks an ephemeral port on
// all interfaces). The socket stays in Go's usual blocking mode: Recv
// waits for a datagram unless a deadline set with SetReadDeadline has
// passed, which Recv reports as ErrWouldBlock.
func Open(localAddr string) (*Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "resolve local address")
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open udp socket")
	}
	return &Conn{pc: pc}, nil
}

// Send writes buf to dst. It reports WouldBlock distinctly so the
// caller can defer the datagram to the resend queue instead of
// treating it as a terminal failure.
func (c *Conn) Send(buf []byte, dst *net.UDPAddr) (int, error) {
	n, err := c.pc.WriteToUDP(buf, dst)
	if err == nil {
		return n, nil
	}
	if IsWouldBlock(err) {
		return -1, ErrWouldBlock
	}
	return -1, err
}

// Recv reads one datagram into buf, transparently retrying once a
// transient ICMP-unreachable-on-recv indication is observed (the
// connectionless-socket equivalent of Windows error 10054, surfaced
// on POSIX systems as ECONNREFUSED from a prior ICMP port-unreachable).
func (c *Conn) Recv(buf []byte) (int, *net.UDPAddr, error) {
	for {
		n, src, err := c.pc.ReadFromUDP(buf)
		if err == nil {
			return n, src, nil
		}
		if IsWouldBlock(err) {
			return -1, nil, ErrWouldBlock
		}
		if isTransientPeerLoss(err) {
			continue
		}
		return -1, nil, err
	}
}

// SetReadDeadline lets the caller bound how long Recv may block,
// matching the engine's need to wake at next_wakeup().
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.pc.SetReadDeadline(t)
}

// LocalAddr reports the address the socket is bound to.
func (c *Conn) LocalAddr() net.Addr {
	return c.pc.LocalAddr()
}

// Close releases the underlying socket.
func (c *Conn) Close() error {
	return c.pc.Close()
}

// ErrWouldBlock is returned by Send/Recv when the operation would
// have blocked and was deferred instead.
var ErrWouldBlock = errors.New("udpconn: operation would block")

// IsWouldBlock reports whether err represents the underlying socket's
// EWOULDBLOCK/EAGAIN condition, unwrapping net.OpError and os.SyscallError.
func IsWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWouldBlock) {
		return true
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// isTransientPeerLoss reports whether err is the POSIX analogue of
// Windows error 10054: a previous send to this socket provoked an
// ICMP port-unreachable, which a subsequent recv on a connectionless
// socket surfaces as ECONNREFUSED. The read should simply be retried.
func isTransientPeerLoss(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED) || errors.Is(syscallErrConnRefused(err), unix.ECONNREFUSED)
}

// syscallErrConnRefused extracts a wrapped os.SyscallError's errno for
// comparison against ECONNREFUSED when errors.Is's unwrap chain
// doesn't reach the unix.Errno directly (e.g. through os.PathError).
func syscallErrConnRefused(err error) error {
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Err
	}
	return nil
}
