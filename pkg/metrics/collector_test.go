package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/arjalkanen/reudp-go/pkg/reliability"
	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
	"github.com/arjalkanen/reudp-go/pkg/reliability/timeoutpolicy"
)

type fakeEngine struct {
	counters reliability.Counters
	inFlight int
}

func (f *fakeEngine) CountersSnapshot() reliability.Counters { return f.counters }
func (f *fakeEngine) InFlightCount() int                     { return f.inFlight }

func TestEngineCollectorReportsRegisteredEngines(t *testing.T) {
	c := NewEngineCollector()
	c.Add("sock-1", &fakeEngine{counters: reliability.Counters{Successes: 3, Timeouts: 1}, inFlight: 2}, nil)

	count := testutil.CollectAndCount(c)
	if count == 0 {
		t.Fatalf("expected collector to emit metrics")
	}
}

func TestEngineCollectorReportsPeerRTOForJacobsonKarnPeers(t *testing.T) {
	c := NewEngineCollector()

	jk := &timeoutpolicy.JacobsonKarn{Retries: 3}
	peers := peercontainer.NewPerAddr()
	peers.GetOrDefault("127.0.0.1:9000", jk.NewPeerState)

	c.Add("sock-1", &fakeEngine{}, peers)

	expected := `
# HELP reudp_peer_rto_ms Current retransmission timeout per peer, Jacobson/Karn policy only.
# TYPE reudp_peer_rto_ms gauge
reudp_peer_rto_ms{peer="127.0.0.1:9000",socket="sock-1"} 3000
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "reudp_peer_rto_ms"); err != nil {
		t.Fatalf("unexpected collector output: %v", err)
	}
}

func TestEngineCollectorOmitsPeerRTOForSharedContainer(t *testing.T) {
	c := NewEngineCollector()
	c.Add("sock-1", &fakeEngine{}, nil)

	count := testutil.CollectAndCount(c, "reudp_peer_rto_ms")
	if count != 0 {
		t.Fatalf("expected no reudp_peer_rto_ms samples without a PerAddr container, got %d", count)
	}
}

func TestEngineCollectorRemove(t *testing.T) {
	c := NewEngineCollector()
	c.Add("sock-1", &fakeEngine{}, nil)
	c.Remove("sock-1")

	count := testutil.CollectAndCount(c)
	if count != 0 {
		t.Fatalf("expected no metrics after removal, got %d", count)
	}
}
