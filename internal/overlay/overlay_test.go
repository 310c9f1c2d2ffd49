package overlay

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/testutil/testlog"
	"github.com/danmuck/ledgerlink/internal/testutil/tlstest"
)

type recordingPool struct {
	mu  sync.Mutex
	txs [][]byte
}

func (r *recordingPool) AddTransaction(_ peer.Origin, m *message.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, m.Raw)
	return nil
}

func (r *recordingPool) has(raw string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, tx := range r.txs {
		if string(tx) == raw {
			n++
		}
	}
	return n
}

type recordingConsensus struct {
	nopSubsystems
	mu        sync.Mutex
	proposals int
}

func (r *recordingConsensus) Proposal(peer.Origin, *message.ProposeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals++
	return nil
}

func (r *recordingConsensus) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proposals
}

type testOverlay struct {
	*Overlay
	id   *identity.Identity
	addr string
	port int
}

func startOverlay(t *testing.T, cfg Config, subs Subsystems) *testOverlay {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	serverTLS, clientTLS := tlstest.PipeConfigs(t)
	cfg.Peer.ServerTLS = serverTLS
	cfg.Peer.ClientTLS = clientTLS
	cfg.Peer.ListenPort = uint32(port)
	o, err := New(cfg, id, subs)
	if err != nil {
		t.Fatalf("new overlay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.Start(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Listen(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		closeCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = o.Close(closeCtx)
		<-done
	})
	return &testOverlay{Overlay: o, id: id, addr: ln.Addr().String(), port: port}
}

func (o *testOverlay) dial(t *testing.T, to *testOverlay) *peer.Peer {
	t.Helper()
	p, err := o.Connect(context.Background(), "127.0.0.1", to.port)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	return p
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func activeCount(o *testOverlay) func() bool {
	return func() bool { return len(o.Active()) > 0 }
}

func TestOverlaysConnectAndExchangePeers(t *testing.T) {
	testlog.Start(t)
	hub := startOverlay(t, Config{}, Subsystems{})
	b := startOverlay(t, Config{}, Subsystems{})
	c := startOverlay(t, Config{}, Subsystems{})

	toHubFromB := b.dial(t, hub)
	c.dial(t, hub)
	waitFor(t, "hub sees two members", func() bool { return len(hub.Active()) == 2 })
	waitFor(t, "b active", activeCount(b))

	if !toHubFromB.SendGetPeers() {
		t.Fatalf("get peers not queued")
	}
	want := "127.0.0.1:" + strconv.Itoa(c.port)
	waitFor(t, "b learns c", func() bool {
		for _, ep := range b.KnownEndpoints() {
			if ep == want {
				return true
			}
		}
		return false
	})

	snaps := hub.Snapshot()
	if len(snaps) != 2 || snaps[0].ID >= snaps[1].ID {
		t.Fatalf("snapshot = %+v", snaps)
	}
	for _, s := range snaps {
		if s.Phase != peer.PhaseEstablished.String() || s.Identity == "" {
			t.Fatalf("snapshot entry = %+v", s)
		}
	}
}

func TestTransactionsRelayOnceThroughHub(t *testing.T) {
	testlog.Start(t)
	hubPool, cPool := &recordingPool{}, &recordingPool{}
	hub := startOverlay(t, Config{}, Subsystems{TxPool: hubPool})
	b := startOverlay(t, Config{}, Subsystems{})
	c := startOverlay(t, Config{}, Subsystems{TxPool: cPool})

	fromB := b.dial(t, hub)
	c.dial(t, hub)
	waitFor(t, "hub sees two members", func() bool { return len(hub.Active()) == 2 })
	waitFor(t, "c active", activeCount(c))

	fromB.Send(&message.Transaction{Raw: []byte("tx-1")})
	waitFor(t, "c receives relayed tx", func() bool { return cPool.has("tx-1") == 1 })

	fromB.Send(&message.Transaction{Raw: []byte("tx-1")})
	fromB.Send(&message.Transaction{Raw: []byte("tx-2")})
	waitFor(t, "hub sees tx-2", func() bool { return hubPool.has("tx-2") == 1 })
	waitFor(t, "c sees tx-2", func() bool { return cPool.has("tx-2") == 1 })

	if got := hubPool.has("tx-1"); got != 1 {
		t.Fatalf("hub pool saw tx-1 %d times, want 1", got)
	}
	if got := cPool.has("tx-1"); got != 1 {
		t.Fatalf("c pool saw tx-1 %d times, want 1", got)
	}
}

func TestForgedProposalIsPunished(t *testing.T) {
	testlog.Start(t)
	cons := &recordingConsensus{}
	hub := startOverlay(t, Config{}, Subsystems{Consensus: cons})
	b := startOverlay(t, Config{}, Subsystems{})

	fromB := b.dial(t, hub)
	waitFor(t, "hub active", activeCount(hub))

	prop := &message.ProposeSet{
		ProposeSeq:     3,
		TxSetHash:      message.Hash{1},
		PreviousLedger: message.Hash{2},
		CloseTime:      99,
		NodePublic:     b.id.Public(),
	}
	prop.Signature = b.id.Sign([]byte("something else"))
	fromB.Send(prop)

	waitFor(t, "punishment recorded", func() bool {
		snaps := hub.Snapshot()
		return len(snaps) == 1 && snaps[0].Punishments["invalid_request"] == 1
	})
	if cons.count() != 0 {
		t.Fatalf("forged proposal reached consensus")
	}

	good := *prop
	good.Signature = b.id.Sign(good.SigningData())
	fromB.Send(&good)
	waitFor(t, "valid proposal delivered", func() bool { return cons.count() == 1 })
}

func TestSecondConnectionFromSameNodeIsRefused(t *testing.T) {
	testlog.Start(t)
	hub := startOverlay(t, Config{}, Subsystems{})
	b := startOverlay(t, Config{}, Subsystems{})

	b.dial(t, hub)
	waitFor(t, "first connection admitted", activeCount(hub))
	second := b.dial(t, hub)

	select {
	case <-second.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("duplicate connection not closed")
	}
	waitFor(t, "hub keeps one connection", func() bool { return hub.Registry().Len() == 1 })
	if got := len(hub.Active()); got != 1 {
		t.Fatalf("hub active = %d, want 1", got)
	}
}

func TestMaxPeersRefusesExtraConnections(t *testing.T) {
	testlog.Start(t)
	hub := startOverlay(t, Config{MaxPeers: 1}, Subsystems{})
	b := startOverlay(t, Config{}, Subsystems{})
	c := startOverlay(t, Config{}, Subsystems{})

	b.dial(t, hub)
	waitFor(t, "b admitted", activeCount(hub))
	refused := c.dial(t, hub)

	select {
	case <-refused.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("extra connection not closed")
	}
	if got := len(hub.Active()); got != 1 {
		t.Fatalf("hub active = %d, want 1", got)
	}
	if !bytes.Equal(hub.Active()[0].Identity(), b.id.Public()) {
		t.Fatalf("wrong node kept")
	}
}

func TestFixedPeerIsRedialedAfterDetach(t *testing.T) {
	testlog.Start(t)
	hub := startOverlay(t, Config{}, Subsystems{})
	cfg := Config{
		FixedPeers: []string{hub.addr},
		Backoff:    BackoffConfig{InitialDelay: 20 * time.Millisecond, Multiplier: 2, MaxDelay: 100 * time.Millisecond},
	}
	b := startOverlay(t, cfg, Subsystems{})

	waitFor(t, "fixed peer connected", activeCount(b))
	first := b.Active()[0].ID()

	waitFor(t, "hub admitted b", activeCount(hub))
	if err := hub.Detach(hub.Active()[0].ID(), "kick"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	waitFor(t, "fixed peer redialed", func() bool {
		active := b.Active()
		return len(active) == 1 && active[0].ID() != first
	})
}

func TestCycleStatusAndPeersWithLedger(t *testing.T) {
	testlog.Start(t)
	hub := startOverlay(t, Config{}, Subsystems{})
	b := startOverlay(t, Config{}, Subsystems{})
	closed := message.Hash{0xC1}
	b.SetClosedLedger(peer.LedgerCursor{Closed: closed, Seq: 5})

	b.dial(t, hub)
	waitFor(t, "hub active", activeCount(hub))

	if got := hub.PeersWithLedger(closed); len(got) != 1 {
		t.Fatalf("peers with ledger = %d, want 1", len(got))
	}
	hub.CycleStatus()
	if got := hub.PeersWithLedger(closed); len(got) != 1 {
		t.Fatalf("previous ledger no longer held after one cycle")
	}
	hub.CycleStatus()
	if got := hub.PeersWithLedger(closed); len(got) != 0 {
		t.Fatalf("ledger still held after two cycles")
	}
}

func TestAdminOperationsOnUnknownPeer(t *testing.T) {
	testlog.Start(t)
	hub := startOverlay(t, Config{}, Subsystems{})
	if err := hub.Detach(99, "x"); err == nil {
		t.Fatalf("expected error for unknown peer")
	}
	if err := hub.Punish(99, peer.PunishUnwantedData, "x"); err == nil {
		t.Fatalf("expected error for unknown peer")
	}
}
