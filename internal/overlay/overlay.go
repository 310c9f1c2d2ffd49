package overlay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/transport"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrPeerLimit     = errors.New("overlay: peer limit reached")
	ErrDuplicatePeer = errors.New("overlay: node already connected")
	ErrBanned        = errors.New("overlay: host is banned")
	ErrUnknownPeer   = errors.New("overlay: no such peer")
	ErrClosed        = errors.New("overlay: closed")
)

const defaultPeersReply = 32

// localNode is this node as its connections see it.
type localNode struct {
	id     *identity.Identity
	cursor atomic.Pointer[peer.LedgerCursor]
}

func (n *localNode) Public() []byte {
	return n.id.Public()
}

func (n *localNode) Sign(data []byte) []byte {
	return n.id.Sign(data)
}

func (n *localNode) ClosedLedger() peer.LedgerCursor {
	if c := n.cursor.Load(); c != nil {
		return *c
	}
	return peer.LedgerCursor{}
}

type fixedPeer struct {
	endpoint peer.Endpoint
	attempt  int
	current  peer.ID
	timer    *time.Timer
}

// Overlay is the active peer set of one node.
type Overlay struct {
	cfg        Config
	peerCfg    peer.Config
	local      *localNode
	peers      *peer.Registry
	subs       Subsystems
	trusted    mapset.Set[string]
	known      mapset.Set[string]
	reputation *Reputation
	relay      *relayFilter

	admitMu sync.Mutex
	members map[peer.ID]string

	mu     sync.Mutex
	ctx    context.Context
	rng    *rand.Rand
	fixed  map[string]*fixedPeer
	closed bool
}

// New builds an overlay for the node holding id. cfg.Peer must carry the
// TLS configs used for accepted and dialed connections.
func New(cfg Config, id *identity.Identity, subs Subsystems) (*Overlay, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reputation, err := NewReputation(cfg.Reputation, cfg.Now)
	if err != nil {
		return nil, fmt.Errorf("overlay: reputation table: %w", err)
	}
	relay, err := newRelayFilter(cfg.RelayCacheSize)
	if err != nil {
		return nil, fmt.Errorf("overlay: relay filter: %w", err)
	}

	o := &Overlay{
		cfg:        cfg,
		local:      &localNode{id: id},
		peers:      peer.NewRegistry(),
		subs:       subs.withDefaults(),
		trusted:    mapset.NewSet[string](cfg.TrustedNodes...),
		known:      mapset.NewSet[string](),
		reputation: reputation,
		relay:      relay,
		ctx:        context.Background(),
		rng:        rand.New(rand.NewSource(cfg.Now().UnixNano())),
		fixed:      make(map[string]*fixedPeer),
		members:    make(map[peer.ID]string),
	}
	o.peerCfg = cfg.Peer
	o.peerCfg.Trusted = o.isTrusted
	o.peerCfg.Reputation = reputation
	if o.peerCfg.Now == nil {
		o.peerCfg.Now = cfg.Now
	}
	o.local.cursor.Store(&peer.LedgerCursor{})

	for _, raw := range cfg.FixedPeers {
		ep, _ := ParseEndpoint(raw)
		o.fixed[ep.String()] = &fixedPeer{endpoint: ep}
	}
	return o, nil
}

func (o *Overlay) isTrusted(public []byte) bool {
	return o.trusted.Contains(identity.EncodeID(public))
}

// Registry is the arena holding every live connection.
func (o *Overlay) Registry() *peer.Registry {
	return o.peers
}

func (o *Overlay) Reputation() *Reputation {
	return o.reputation
}

// NodeID is this node's encoded public key.
func (o *Overlay) NodeID() string {
	return o.local.id.ID()
}

// SetClosedLedger updates the ledger cursor advertised in new hellos.
func (o *Overlay) SetClosedLedger(c peer.LedgerCursor) {
	o.local.cursor.Store(&c)
}

// Start dials every fixed peer. Connections made later, and redials, run
// under ctx.
func (o *Overlay) Start(ctx context.Context) {
	o.mu.Lock()
	o.ctx = ctx
	fixed := make([]*fixedPeer, 0, len(o.fixed))
	for _, fp := range o.fixed {
		fixed = append(fixed, fp)
	}
	o.mu.Unlock()

	for _, fp := range fixed {
		o.dialFixed(fp)
	}
}

// Listen accepts connections on ln until ctx ends.
func (o *Overlay) Listen(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("overlay listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if _, err := o.Accept(ctx, conn); err != nil {
			log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("inbound refused")
			_ = conn.Close()
		}
	}
}

// Accept starts a connection on an accepted stream unless its host is
// banned or the overlay is full.
func (o *Overlay) Accept(ctx context.Context, conn net.Conn) (*peer.Peer, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	host, _ := transport.RemoteEndpoint(conn.RemoteAddr())
	if o.reputation.Banned(host) {
		return nil, ErrBanned
	}
	if o.peers.Len() >= o.cfg.MaxPeers {
		return nil, ErrPeerLimit
	}
	p := peer.New(o.peers, o.peerCfg, o.local, o)
	if err := p.Accept(ctx, conn); err != nil {
		p.Detach("accept failed")
		return nil, err
	}
	return p, nil
}

// Connect dials host:port.
func (o *Overlay) Connect(ctx context.Context, host string, port int) (*peer.Peer, error) {
	if o.isClosed() {
		return nil, ErrClosed
	}
	if o.reputation.Banned(host) {
		return nil, ErrBanned
	}
	p := peer.New(o.peers, o.peerCfg, o.local, o)
	if err := p.Connect(ctx, host, port); err != nil {
		p.Detach("connect failed")
		return nil, err
	}
	return p, nil
}

func (o *Overlay) dialFixed(fp *fixedPeer) {
	o.mu.Lock()
	if o.closed || o.ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	ctx := o.ctx
	p := peer.New(o.peers, o.peerCfg, o.local, o)
	fp.current = p.ID()
	fp.timer = nil
	o.mu.Unlock()

	if err := p.Connect(ctx, fp.endpoint.Host, fp.endpoint.Port); err != nil {
		log.Error().Err(err).Str("endpoint", fp.endpoint.String()).Msg("fixed peer dial failed")
		p.Detach("connect failed")
	}
}

// scheduleRedial is called when the connection serving a fixed peer closes.
func (o *Overlay) scheduleRedial(id peer.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.ctx.Err() != nil {
		return
	}
	for _, fp := range o.fixed {
		if fp.current != id {
			continue
		}
		fp.attempt++
		delay := NextBackoffDelay(o.cfg.Backoff, fp.attempt, o.rng)
		log.Info().
			Str("endpoint", fp.endpoint.String()).
			Int("attempt", fp.attempt).
			Dur("delay", delay).
			Msg("fixed peer redial scheduled")
		fp.timer = time.AfterFunc(delay, func() { o.dialFixed(fp) })
		return
	}
}

func (o *Overlay) fixedEstablished(id peer.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, fp := range o.fixed {
		if fp.current == id {
			fp.attempt = 0
			return
		}
	}
}

func (o *Overlay) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close detaches every connection and stops redials, then waits for the
// connections to finish or ctx to end.
func (o *Overlay) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, fp := range o.fixed {
		if fp.timer != nil {
			fp.timer.Stop()
		}
	}
	o.mu.Unlock()

	peers := o.peers.Peers()
	for _, p := range peers {
		p.Detach("overlay closing")
	}
	for _, p := range peers {
		if err := p.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Peer returns the live connection with id.
func (o *Overlay) Peer(id peer.ID) (*peer.Peer, error) {
	p, ok := o.peers.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return p, nil
}

// Detach tears down the connection with id.
func (o *Overlay) Detach(id peer.ID, reason string) error {
	p, err := o.Peer(id)
	if err != nil {
		return err
	}
	p.Detach(reason)
	return nil
}

// Punish charges the connection with id.
func (o *Overlay) Punish(id peer.ID, kind peer.Punishment, reason string) error {
	p, err := o.Peer(id)
	if err != nil {
		return err
	}
	p.Punish(kind, reason)
	return nil
}

// Snapshot describes every live connection ordered by id.
func (o *Overlay) Snapshot() []peer.Snapshot {
	peers := o.peers.Peers()
	out := make([]peer.Snapshot, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.Snapshot())
	}
	return out
}

// CycleStatus moves every connection's closed ledger to previous at a
// consensus round boundary.
func (o *Overlay) CycleStatus() {
	o.peers.Each(func(p *peer.Peer) { p.CycleStatus() })
}

// Active returns established member connections.
func (o *Overlay) Active() []*peer.Peer {
	var out []*peer.Peer
	o.peers.Each(func(p *peer.Peer) {
		if p.IsConnected() && p.Flags().Has(peer.FlagMember) {
			out = append(out, p)
		}
	})
	return out
}

// PeersWithLedger returns active connections holding the ledger with hash.
func (o *Overlay) PeersWithLedger(hash message.Hash) []*peer.Peer {
	var out []*peer.Peer
	for _, p := range o.Active() {
		if p.HasLedger(hash) {
			out = append(out, p)
		}
	}
	return out
}

// Broadcast sends m to every active connection except the one with except
// and those keep rejects. It returns how many accepted the message.
func (o *Overlay) Broadcast(m message.Message, except peer.ID, keep func(*peer.Peer) bool) int {
	sent := 0
	for _, p := range o.Active() {
		if p.ID() == except || (keep != nil && !keep(p)) {
			continue
		}
		if p.Send(m) {
			sent++
		}
	}
	return sent
}

// KnownEndpoints lists endpoints learned from other nodes.
func (o *Overlay) KnownEndpoints() []string {
	return o.known.ToSlice()
}

func (o *Overlay) learn(raw string) bool {
	ep, err := ParseEndpoint(raw)
	if err != nil {
		return false
	}
	if o.known.Cardinality() >= o.cfg.MaxKnown {
		return false
	}
	return o.known.Add(ep.String())
}
