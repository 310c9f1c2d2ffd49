// Package peer implements one encrypted link to a remote ledger node: its
// lifecycle, the hello handshake, framed reads and writes, message dispatch
// and violation scoring.
//
// Each connection runs a read task and a write task. Inbound frames are
// dispatched one at a time in wire order; outbound frames are written one at
// a time in enqueue order. Detach may be called from anywhere, any number of
// times, and tears the connection down exactly once.
package peer

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/ledgerlink/internal/observability"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotIdle        = errors.New("peer: connection already started")
	ErrNotEstablished = errors.New("peer: handshake not complete")
	ErrNoLedgers      = errors.New("peer: remote does not serve ledgers")
	ErrNoTLS          = errors.New("peer: tls config required")
)

// Peer is one connection to a remote node.
type Peer struct {
	id       ID
	cfg      Config
	registry *Registry
	local    LocalNode
	handler  Handler
	logp     atomic.Pointer[zerolog.Logger]
	seq      atomic.Uint64

	mu             sync.Mutex
	phase          Phase
	flags          Flags
	outbound       bool
	started        bool
	detaching      bool
	detachReason   string
	target         Endpoint
	observed       Endpoint
	identity       []byte
	cookie         []byte
	closedLedger   message.Hash
	previousLedger message.Hash
	lastStatus     *message.StatusChange
	lastHello      *message.Hello
	conn           net.Conn
	queue          sendQueue
	queueWarned    bool
	verifyTimer    *time.Timer
	verifyFired    bool
	policy         *policy
	cancel         context.CancelFunc
	startedAt      time.Time
	establishedAt  time.Time

	wake      chan struct{}
	detached  chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// New registers an idle connection in reg. Start it with Connect or Accept.
func New(reg *Registry, cfg Config, local LocalNode, handler Handler) *Peer {
	cfg = cfg.WithDefaults()
	if handler == nil {
		handler = NopHandler{}
	}
	p := &Peer{
		cfg:      cfg,
		registry: reg,
		local:    local,
		handler:  handler,
		policy:   newPolicy(cfg.Punish, cfg.Now()),
		wake:     make(chan struct{}, 1),
		detached: make(chan struct{}),
		closed:   make(chan struct{}),
	}
	base := log.Logger
	p.logp.Store(&base)
	reg.add(p)
	logger := log.With().Str("peer", p.id.String()).Logger()
	p.logp.Store(&logger)
	observability.RecordPhaseChange("", PhaseIdle.String())
	return p
}

func (p *Peer) ID() ID {
	return p.id
}

func (p *Peer) logger() *zerolog.Logger {
	return p.logp.Load()
}

func (p *Peer) withLogField(key, value string) {
	logger := p.logger().With().Str(key, value).Logger()
	p.logp.Store(&logger)
}

// Connect dials host:port and runs the connection until it closes. It
// returns once the dial is under way; cancelling ctx detaches the
// connection.
func (p *Peer) Connect(ctx context.Context, host string, port int) error {
	if p.cfg.ClientTLS == nil {
		return ErrNoTLS
	}
	p.mu.Lock()
	if p.phase != PhaseIdle || p.detaching {
		p.mu.Unlock()
		return ErrNotIdle
	}
	p.outbound = true
	p.target = Endpoint{Host: host, Port: port}
	runCtx := p.startLocked(ctx)
	p.mu.Unlock()

	p.withLogField("remote", p.target.String())
	p.logger().Debug().Msg("peer connecting")
	go p.run(runCtx, nil)
	return nil
}

// Accept runs an inbound connection on conn until it closes. conn is the raw
// accepted stream; TLS is negotiated here.
func (p *Peer) Accept(ctx context.Context, conn net.Conn) error {
	if p.cfg.ServerTLS == nil {
		return ErrNoTLS
	}
	p.mu.Lock()
	if p.phase != PhaseIdle || p.detaching {
		p.mu.Unlock()
		return ErrNotIdle
	}
	host, port := transport.RemoteEndpoint(conn.RemoteAddr())
	p.observed = Endpoint{Host: host, Port: port}
	runCtx := p.startLocked(ctx)
	p.mu.Unlock()

	p.withLogField("remote", p.observed.String())
	p.logger().Debug().Msg("peer accepted")
	go p.run(runCtx, conn)
	return nil
}

func (p *Peer) startLocked(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true
	p.startedAt = p.cfg.Now()
	p.setPhaseLocked(PhaseConnecting)
	return runCtx
}

func (p *Peer) setPhaseLocked(next Phase) {
	if next <= p.phase {
		return
	}
	observability.RecordPhaseChange(p.phase.String(), next.String())
	p.phase = next
}

func (p *Peer) run(ctx context.Context, raw net.Conn) {
	defer p.finish()

	if raw == nil {
		dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		conn, err := p.cfg.Dialer.DialContext(dialCtx, "tcp", p.target.String())
		cancel()
		if err != nil {
			p.transportFault("dial", err)
			return
		}
		raw = conn
	}

	var tlsConn *tls.Conn
	if p.outbound {
		cfg := p.cfg.ClientTLS.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = p.target.Host
		}
		tlsConn = tls.Client(raw, cfg)
	} else {
		tlsConn = tls.Server(raw, p.cfg.ServerTLS)
	}

	p.mu.Lock()
	if p.detaching {
		p.mu.Unlock()
		_ = raw.Close()
		return
	}
	p.conn = tlsConn
	p.mu.Unlock()

	hsCtx, cancel := context.WithTimeout(ctx, p.cfg.HandshakeTimeout)
	err := tlsConn.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		p.transportFault("tls handshake", err)
		return
	}
	cookie, err := transport.SessionCookie(tlsConn)
	if err != nil {
		p.transportFault("session cookie", err)
		return
	}
	if !p.beginHandshake(cookie, raw.RemoteAddr()) {
		return
	}

	var g errgroup.Group
	g.Go(func() error { return p.readLoop(tlsConn) })
	g.Go(func() error { return p.writeLoop(tlsConn) })
	g.Go(func() error {
		select {
		case <-ctx.Done():
			p.Detach("shutdown")
		case <-p.detached:
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		p.logger().Debug().Err(err).Msg("peer tasks ended")
	}
}

// Detach tears the connection down. Only the first call has any effect.
func (p *Peer) Detach(reason string) {
	p.detach(reason, "admin")
}

func (p *Peer) transportFault(op string, err error) {
	p.detach("transport: "+op+": "+err.Error(), "transport")
}

func (p *Peer) detach(reason, cause string) bool {
	p.mu.Lock()
	if p.detaching {
		p.mu.Unlock()
		return false
	}
	p.detaching = true
	p.detachReason = reason
	p.setPhaseLocked(PhaseDetaching)
	if p.verifyTimer != nil {
		p.verifyTimer.Stop()
	}
	dropped := p.queue.close()
	conn := p.conn
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()

	close(p.detached)
	observability.RecordDetach(cause)
	p.logger().Info().
		Str("reason", reason).
		Str("cause", cause).
		Int("dropped_frames", dropped).
		Msg("peer detaching")

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if !started {
		p.finish()
	}
	return true
}

// finish moves the connection to Closed once every task has returned.
func (p *Peer) finish() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if !p.detaching {
			p.detaching = true
			p.detachReason = "closed"
			close(p.detached)
		}
		p.setPhaseLocked(PhaseClosed)
		reason := p.detachReason
		origin := p.originLocked()
		p.mu.Unlock()

		observability.RecordPhaseChange(PhaseClosed.String(), "")
		p.registry.remove(p.id)
		p.handler.Detached(origin, reason)
		p.logger().Debug().Str("reason", reason).Msg("peer closed")
		close(p.closed)
	})
}

func (p *Peer) isDetaching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.detaching
}

// Done is closed once the connection reaches Closed.
func (p *Peer) Done() <-chan struct{} {
	return p.closed
}

// Wait blocks until the connection reaches Closed or ctx ends.
func (p *Peer) Wait(ctx context.Context) error {
	select {
	case <-p.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Peer) originLocked() Origin {
	return Origin{
		ID:       p.id,
		Identity: p.identity,
		Addr:     p.addrLocked(),
		Trusted:  p.flags.Has(FlagTrusted),
	}
}

func (p *Peer) addrLocked() string {
	if !p.observed.IsZero() {
		return p.observed.String()
	}
	return p.target.String()
}

// Origin describes this connection for collaborators.
func (p *Peer) Origin() Origin {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.originLocked()
}

func (p *Peer) now() time.Time {
	return p.cfg.Now()
}
