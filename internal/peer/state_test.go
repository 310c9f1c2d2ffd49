package peer

import (
	"sync"
	"testing"

	"github.com/danmuck/ledgerlink/internal/testutil/testlog"
)

func TestPhaseOnlyMovesForward(t *testing.T) {
	testlog.Start(t)
	p := New(NewRegistry(), Config{}, newTestNode(t, hashN(1)), nil)
	p.mu.Lock()
	p.setPhaseLocked(PhaseEstablished)
	p.setPhaseLocked(PhaseConnecting)
	got := p.phase
	p.mu.Unlock()
	if got != PhaseEstablished {
		t.Fatalf("phase = %s, want established", got)
	}
}

func TestFlagsString(t *testing.T) {
	testlog.Start(t)
	f := FlagHelloSent | FlagTrusted | FlagDownlevel
	if got := f.String(); got != "hello_sent|trusted|downlevel" {
		t.Fatalf("flags = %q", got)
	}
	if !f.Has(FlagTrusted) || f.Has(FlagMember) {
		t.Fatalf("Has mismatch")
	}
}

func TestRegistryAssignsUniqueOrderedIDs(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	local := newTestNode(t, hashN(1))
	a := New(reg, Config{}, local, nil)
	b := New(reg, Config{}, local, nil)
	c := New(reg, Config{}, local, nil)
	if a.ID() == b.ID() || b.ID() == c.ID() {
		t.Fatalf("duplicate ids")
	}

	b.Detach("gone")
	waitClosed(t, b)
	if _, ok := reg.Get(b.ID()); ok {
		t.Fatalf("detached peer still registered")
	}
	peers := reg.Peers()
	if len(peers) != 2 || peers[0] != a || peers[1] != c {
		t.Fatalf("peers = %v", peers)
	}

	d := New(reg, Config{}, local, nil)
	if d.ID() <= c.ID() {
		t.Fatalf("id %s reused or out of order", d.ID())
	}
}

func TestEndpointString(t *testing.T) {
	testlog.Start(t)
	if got := (Endpoint{Host: "::1", Port: 51235}).String(); got != "[::1]:51235" {
		t.Fatalf("endpoint = %q", got)
	}
	if !(Endpoint{}).IsZero() {
		t.Fatalf("zero endpoint not zero")
	}
}

func TestRegistryPublishesIDWithPeer(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	local := newTestNode(t, hashN(1))
	const n = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			New(reg, Config{}, local, nil)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			for _, p := range reg.Peers() {
				if p.ID() == 0 {
					t.Errorf("registered peer without id")
					return
				}
				_ = p.Snapshot()
			}
		}
	}()
	wg.Wait()

	peers := reg.Peers()
	if len(peers) != n {
		t.Fatalf("registry len = %d, want %d", len(peers), n)
	}
	for i, p := range peers {
		if p.ID() != ID(i+1) {
			t.Fatalf("peers[%d].ID() = %s, want %d", i, p.ID(), i+1)
		}
	}
}
