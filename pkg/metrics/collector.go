// Package metrics exposes a reliability engine's activity counters as
// Prometheus metrics, following the Collector pattern used for
// TCP_INFO stats elsewhere in the ecosystem: metrics are pulled from
// the engine on every scrape rather than pushed as they happen.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arjalkanen/reudp-go/pkg/reliability"
	"github.com/arjalkanen/reudp-go/pkg/reliability/peercontainer"
	"github.com/arjalkanen/reudp-go/pkg/reliability/timeoutpolicy"
)

// EngineSource is the subset of *reliability.Engine the collector reads.
type EngineSource interface {
	CountersSnapshot() reliability.Counters
	InFlightCount() int
}

var (
	descRegistered  = prometheus.NewDesc("reudp_registered_total", "Total USER datagrams registered.", []string{"socket"}, nil)
	descSent        = prometheus.NewDesc("reudp_sent_total", "Total first-attempt USER datagrams sent.", []string{"socket"}, nil)
	descRetransmits = prometheus.NewDesc("reudp_retransmits_total", "Total USER datagram retransmissions.", []string{"socket"}, nil)
	descAcksSent    = prometheus.NewDesc("reudp_acks_sent_total", "Total ACK frames sent.", []string{"socket"}, nil)
	descSuccesses   = prometheus.NewDesc("reudp_successes_total", "Total datagrams acknowledged.", []string{"socket"}, nil)
	descTimeouts    = prometheus.NewDesc("reudp_timeouts_total", "Total datagrams that exhausted their retry budget.", []string{"socket"}, nil)
	descFailures    = prometheus.NewDesc("reudp_failures_total", "Total datagrams that failed terminally.", []string{"socket"}, nil)
	descWouldBlocks = prometheus.NewDesc("reudp_wouldblocks_total", "Total sends deferred due to socket back-pressure.", []string{"socket"}, nil)
	descInFlight    = prometheus.NewDesc("reudp_in_flight", "Current number of unacknowledged USER datagrams.", []string{"socket"}, nil)
	descPeerCount   = prometheus.NewDesc("reudp_tracked_peers", "Current number of peers with retransmission state.", []string{"socket"}, nil)
	descPeerRTO     = prometheus.NewDesc("reudp_peer_rto_ms", "Current retransmission timeout per peer, Jacobson/Karn policy only.", []string{"socket", "peer"}, nil)
)

// EngineCollector implements prometheus.Collector over one or more
// registered reliability engines, each identified by a socket label
// (typically a Socket's xid Handle()).
type EngineCollector struct {
	mu      sync.Mutex
	engines map[string]EngineSource
	peers   map[string]*peercontainer.PerAddr
}

// NewEngineCollector constructs an empty collector. Register engines
// with Add as sockets are opened.
func NewEngineCollector() *EngineCollector {
	return &EngineCollector{
		engines: make(map[string]EngineSource),
		peers:   make(map[string]*peercontainer.PerAddr),
	}
}

// Add registers an engine under label, to be scraped on every Collect.
// peers is optional: pass the container backing a Jacobson/Karn policy
// to also report reudp_tracked_peers for that socket.
func (c *EngineCollector) Add(label string, engine EngineSource, peers *peercontainer.PerAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.engines[label] = engine
	if peers != nil {
		c.peers[label] = peers
	}
}

// Remove unregisters a socket's engine, e.g. on Close.
func (c *EngineCollector) Remove(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.engines, label)
	delete(c.peers, label)
}

func (c *EngineCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- descRegistered
	descs <- descSent
	descs <- descRetransmits
	descs <- descAcksSent
	descs <- descSuccesses
	descs <- descTimeouts
	descs <- descFailures
	descs <- descWouldBlocks
	descs <- descInFlight
	descs <- descPeerCount
	descs <- descPeerRTO
}

func (c *EngineCollector) Collect(out chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for label, engine := range c.engines {
		counters := engine.CountersSnapshot()
		out <- prometheus.MustNewConstMetric(descRegistered, prometheus.CounterValue, float64(counters.Registered), label)
		out <- prometheus.MustNewConstMetric(descSent, prometheus.CounterValue, float64(counters.Sent), label)
		out <- prometheus.MustNewConstMetric(descRetransmits, prometheus.CounterValue, float64(counters.Retransmits), label)
		out <- prometheus.MustNewConstMetric(descAcksSent, prometheus.CounterValue, float64(counters.AcksSent), label)
		out <- prometheus.MustNewConstMetric(descSuccesses, prometheus.CounterValue, float64(counters.Successes), label)
		out <- prometheus.MustNewConstMetric(descTimeouts, prometheus.CounterValue, float64(counters.Timeouts), label)
		out <- prometheus.MustNewConstMetric(descFailures, prometheus.CounterValue, float64(counters.Failures), label)
		out <- prometheus.MustNewConstMetric(descWouldBlocks, prometheus.CounterValue, float64(counters.WouldBlocks), label)
		out <- prometheus.MustNewConstMetric(descInFlight, prometheus.GaugeValue, float64(engine.InFlightCount()), label)

		if peers, ok := c.peers[label]; ok {
			out <- prometheus.MustNewConstMetric(descPeerCount, prometheus.GaugeValue, float64(peers.Len()), label)

			peers.Range(func(addr string, state *peercontainer.PeerState) {
				state.Lock()
				jk, ok := state.Data.(*timeoutpolicy.JacobsonKarnState)
				state.Unlock()
				if !ok {
					// Constant-policy peers (or any non-Jacobson/Karn
					// state) have no RTO to report.
					return
				}
				out <- prometheus.MustNewConstMetric(descPeerRTO, prometheus.GaugeValue, float64(jk.RTOMs), label, addr)
			})
		}
	}
}
