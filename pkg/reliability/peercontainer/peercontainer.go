// Package peercontainer provides per-peer timeout state storage for
// the reliability engine: a shared single record (used by the
// constant timeout policy) or an address-keyed map with
// default-on-first-access (used by Jacobson/Karn).
package peercontainer

import "sync"

// PeerState is the mutable per-peer RTT/RTO state owned by the
// timeout policy. Its fields are defined by the policy package;
// peercontainer only stores and retrieves it.
type PeerState struct {
	mu   sync.Mutex
	Data interface{}
}

// Lock/Unlock let a policy treat a borrowed PeerState as
// single-writer for the duration of one engine call: state is
// borrowed by the timeout policy only for that call, never retained
// across calls.
func (p *PeerState) Lock()   { p.mu.Lock() }
func (p *PeerState) Unlock() { p.mu.Unlock() }

// Container maps a peer address to its per-peer state, constructing a
// default value on first access.
type Container interface {
	// GetOrDefault returns the state for addr, creating it via newDefault
	// if this is the first time addr has been seen.
	GetOrDefault(addr string, newDefault func() interface{}) *PeerState
}

// Shared is a Container backed by a single record shared by every
// peer address. Used with the constant timeout policy, which needs no
// per-peer data.
type Shared struct {
	once  sync.Once
	state *PeerState
}

// NewShared constructs a Shared container.
func NewShared() *Shared {
	return &Shared{}
}

func (s *Shared) GetOrDefault(_ string, newDefault func() interface{}) *PeerState {
	s.once.Do(func() {
		s.state = &PeerState{Data: newDefault()}
	})
	return s.state
}

// PerAddr is a Container backed by an address-keyed map, each entry
// default-constructed the first time its address is seen. Used with
// the Jacobson/Karn timeout policy.
type PerAddr struct {
	mu    sync.Mutex
	peers map[string]*PeerState
}

// NewPerAddr constructs an empty PerAddr container.
func NewPerAddr() *PerAddr {
	return &PerAddr{peers: make(map[string]*PeerState)}
}

func (p *PerAddr) GetOrDefault(addr string, newDefault func() interface{}) *PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.peers[addr]
	if !ok {
		state = &PeerState{Data: newDefault()}
		p.peers[addr] = state
	}
	return state
}

// Len reports how many distinct peers are currently tracked. Used by
// the metrics collector.
func (p *PerAddr) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Range calls fn once per currently-tracked peer, holding the
// container lock for the duration of the snapshot (not for the
// individual fn calls). Used by the metrics collector to export
// per-peer state such as Jacobson/Karn's current RTO.
func (p *PerAddr) Range(fn func(addr string, state *PeerState)) {
	p.mu.Lock()
	snapshot := make(map[string]*PeerState, len(p.peers))
	for addr, state := range p.peers {
		snapshot[addr] = state
	}
	p.mu.Unlock()

	for addr, state := range snapshot {
		fn(addr, state)
	}
}
