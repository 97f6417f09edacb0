package peercontainer

import "testing"

func TestSharedReturnsSameStateForAnyAddr(t *testing.T) {
	s := NewShared()
	calls := 0
	newDefault := func() interface{} { calls++; return calls }

	a := s.GetOrDefault("10.0.0.1:1", newDefault)
	b := s.GetOrDefault("10.0.0.2:2", newDefault)

	if a != b {
		t.Fatalf("expected Shared to return the same *PeerState regardless of address")
	}
	if calls != 1 {
		t.Fatalf("expected newDefault to run exactly once, ran %d times", calls)
	}
}

func TestPerAddrIsolatesStateByAddress(t *testing.T) {
	p := NewPerAddr()
	a := p.GetOrDefault("10.0.0.1:1", func() interface{} { return 1 })
	b := p.GetOrDefault("10.0.0.2:2", func() interface{} { return 2 })

	if a == b {
		t.Fatalf("expected distinct *PeerState per address")
	}
	if p.Len() != 2 {
		t.Fatalf("expected Len() == 2, got %d", p.Len())
	}

	// Re-fetching an existing address must not construct a new default.
	again := p.GetOrDefault("10.0.0.1:1", func() interface{} { t.Fatal("newDefault should not run again"); return nil })
	if again != a {
		t.Fatalf("expected the existing state to be returned")
	}
}

func TestPerAddrRangeVisitsEveryPeer(t *testing.T) {
	p := NewPerAddr()
	p.GetOrDefault("10.0.0.1:1", func() interface{} { return "a" })
	p.GetOrDefault("10.0.0.2:2", func() interface{} { return "b" })

	seen := make(map[string]interface{})
	p.Range(func(addr string, state *PeerState) {
		seen[addr] = state.Data
	})

	if len(seen) != 2 {
		t.Fatalf("expected Range to visit 2 peers, got %d", len(seen))
	}
	if seen["10.0.0.1:1"] != "a" || seen["10.0.0.2:2"] != "b" {
		t.Fatalf("unexpected Range contents: %+v", seen)
	}
}
