package peer

import (
	"context"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/protocol/frame"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/testutil/tlstest"
	"github.com/danmuck/ledgerlink/internal/transport"
)

type testNode struct {
	id     *identity.Identity
	cursor LedgerCursor
}

func newTestNode(t *testing.T, closed message.Hash) *testNode {
	t.Helper()
	id, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return &testNode{id: id, cursor: LedgerCursor{Closed: closed, Seq: 1}}
}

func (n *testNode) Public() []byte             { return n.id.Public() }
func (n *testNode) Sign(data []byte) []byte    { return n.id.Sign(data) }
func (n *testNode) ClosedLedger() LedgerCursor { return n.cursor }

type recorder struct {
	NopHandler

	mu          sync.Mutex
	admit       error
	established []Origin
	detached    []string
	proposals   []*message.ProposeSet
	statuses    int
	served      []message.Message
	replies     []message.Message
	serveErr    error
}

func (r *recorder) Established(o Origin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.established = append(r.established, o)
	return r.admit
}

func (r *recorder) Detached(_ Origin, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = append(r.detached, reason)
}

func (r *recorder) Proposal(_ Origin, m *message.ProposeSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals = append(r.proposals, m)
	return nil
}

func (r *recorder) StatusChanged(Origin, *message.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses++
	return nil
}

func (r *recorder) Serve(_ Origin, m message.Message) ([]message.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.served = append(r.served, m)
	return r.replies, r.serveErr
}

func (r *recorder) counts() (established, detached, proposals, statuses, served int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.established), len(r.detached), len(r.proposals), r.statuses, len(r.served)
}

func (r *recorder) detachReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.detached...)
}

func hashN(n int) message.Hash {
	var h message.Hash
	h[0] = byte(n >> 8)
	h[1] = byte(n)
	h[31] = 0xAA
	return h
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

func waitClosed(t *testing.T, p *Peer) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("peer %s did not close (phase=%s)", p.ID(), p.Phase())
	}
}

// remote drives the far end of an accepted connection by hand.
type remote struct {
	t      *testing.T
	conn   *tls.Conn
	node   *testNode
	cookie []byte
	seq    uint64
}

// acceptRemote starts p on an accepted loopback connection and completes TLS
// from the dialing side.
func acceptRemote(t *testing.T, p *Peer, clientTLS *tls.Config) *remote {
	t.Helper()
	accepted, dialed := tlstest.TCPPair(t)
	if err := p.Accept(context.Background(), accepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	conn := tls.Client(dialed, clientTLS)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.HandshakeContext(ctx); err != nil {
		t.Fatalf("remote tls handshake: %v", err)
	}
	cookie, err := transport.SessionCookie(conn)
	if err != nil {
		t.Fatalf("remote cookie: %v", err)
	}
	return &remote{t: t, conn: conn, node: newTestNode(t, hashN(1000)), cookie: cookie}
}

// newAcceptedPeer registers a peer with test TLS configs and attaches a
// remote to it.
func newAcceptedPeer(t *testing.T, cfg Config, h Handler) (*Peer, *remote) {
	t.Helper()
	serverTLS, clientTLS := tlstest.PipeConfigs(t)
	cfg.ServerTLS = serverTLS
	p := New(NewRegistry(), cfg, newTestNode(t, hashN(1)), h)
	t.Cleanup(func() { p.Detach("test cleanup") })
	return p, acceptRemote(t, p, clientTLS)
}

func (r *remote) hello(mutate func(*message.Hello)) *message.Hello {
	h := &message.Hello{
		ProtoVersion:    ProtoVersion,
		ProtoVersionMin: ProtoVersionMin,
		NodePublic:      r.node.Public(),
		NodeProof:       r.node.Sign(r.cookie),
		ClosedLedger:    r.node.cursor.Closed,
		LedgerSeq:       r.node.cursor.Seq,
		ListenPort:      51235,
		Services:        message.ServiceLedgers | message.ServiceTransactions,
		SessionCookie:   r.cookie,
	}
	if mutate != nil {
		mutate(h)
	}
	return h
}

func (r *remote) send(m message.Message) {
	r.t.Helper()
	r.seq++
	b, err := message.Encode(r.seq, m, frame.DefaultLimits())
	if err != nil {
		r.t.Fatalf("encode %T: %v", m, err)
	}
	r.write(b)
}

func (r *remote) sendRaw(messageType uint32, payload []byte) error {
	r.seq++
	b, err := frame.Encode(frame.Frame{
		Header:  frame.Header{Sequence: r.seq, MessageType: messageType},
		Payload: payload,
	}, frame.DefaultLimits())
	if err != nil {
		return err
	}
	_, err = r.conn.Write(b)
	return err
}

func (r *remote) write(b []byte) {
	r.t.Helper()
	if _, err := r.conn.Write(b); err != nil {
		r.t.Fatalf("remote write: %v", err)
	}
}

// read returns the next frame header and decoded message from the peer.
func (r *remote) read() (frame.Header, message.Message) {
	r.t.Helper()
	_ = r.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	f, err := frame.ReadFrame(r.conn, frame.DefaultLimits())
	if err != nil {
		r.t.Fatalf("remote read frame: %v", err)
	}
	m, err := message.Decode(f.Header, f.Payload)
	if err != nil {
		r.t.Fatalf("remote decode: %v", err)
	}
	return f.Header, m
}

// expectHello reads the peer's hello and checks its proof over the cookie.
func (r *remote) expectHello() *message.Hello {
	r.t.Helper()
	_, m := r.read()
	h, ok := m.(*message.Hello)
	if !ok {
		r.t.Fatalf("first frame = %T, want hello", m)
	}
	if !identity.Verify(h.NodePublic, r.cookie, h.NodeProof) {
		r.t.Fatalf("peer hello proof does not verify")
	}
	return h
}

// establish completes the hello exchange and waits for the peer to admit it.
func (r *remote) establish(p *Peer) {
	r.t.Helper()
	r.expectHello()
	r.send(r.hello(nil))
	waitFor(r.t, "established", func() bool { return p.Flags().Has(FlagMember) })
}

// sync round-trips a ping so every frame sent before it has been dispatched.
func (r *remote) sync(seq uint32) {
	r.t.Helper()
	r.send(&message.Ping{Kind: message.PingRequest, Seq: seq})
	for {
		_, m := r.read()
		if ping, ok := m.(*message.Ping); ok && ping.Kind == message.PingReply && ping.Seq == seq {
			return
		}
	}
}
