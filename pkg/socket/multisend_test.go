package socket

import (
	"testing"

	"github.com/arjalkanen/reudp-go/pkg/rlog"
	"github.com/arjalkanen/reudp-go/pkg/reliability"
	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
	"github.com/arjalkanen/reudp-go/pkg/reliability/timeoutpolicy"
)

func TestMultiSendCallsEachAddress(t *testing.T) {
	fc := newFakeConn()
	s := &Socket{
		c:       fc,
		engine:  reliability.New(&timeoutpolicy.Constant{Timeout: 2000000000, Retries: 3}, peercontainer.NewShared(), nil),
		recvBuf: make([]byte, 2048),
		log:     rlog.New("multisend-test", nil),
	}

	addrs := NewSliceAddrSource([]string{"127.0.0.1:1", "127.0.0.1:2", "127.0.0.1:3"})
	n := s.MultiSend([]byte("hi"), addrs)

	if n != 3 {
		t.Fatalf("expected 3 successful sends, got %d", n)
	}
	if len(fc.sent) != 3 {
		t.Fatalf("expected 3 frames written to the fake socket, got %d", len(fc.sent))
	}
}
