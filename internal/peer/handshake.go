package peer

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/observability"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/danmuck/ledgerlink/internal/transport"
)

var (
	ErrMalformedKey   = errors.New("peer: malformed node public key")
	ErrSelfConnection = errors.New("peer: connected to self")
	ErrCookieMismatch = errors.New("peer: session cookie mismatch")
	ErrBadProof       = errors.New("peer: node proof does not verify")
	ErrVersionTooOld  = errors.New("peer: protocol version below minimum")
)

func (p *Peer) buildHello(cookie []byte) *message.Hello {
	cursor := p.local.ClosedLedger()
	return &message.Hello{
		ProtoVersion:    p.cfg.ProtoVersion,
		ProtoVersionMin: p.cfg.ProtoVersionMin,
		NodePublic:      p.local.Public(),
		NodeProof:       p.local.Sign(cookie),
		ClosedLedger:    cursor.Closed,
		PreviousLedger:  cursor.Previous,
		LedgerSeq:       cursor.Seq,
		NetTime:         uint64(p.now().Unix()),
		ListenPort:      p.cfg.ListenPort,
		Services:        p.cfg.Services,
		SessionCookie:   cookie,
	}
}

// beginHandshake queues our hello as the first frame and arms the verify
// timer. It reports false when the connection was detached meanwhile.
func (p *Peer) beginHandshake(cookie []byte, remote net.Addr) bool {
	hello := p.buildHello(cookie)
	b, err := message.Encode(p.nextSeq(), hello, p.cfg.limits())
	if err != nil {
		p.detach("encode hello: "+err.Error(), "internal")
		return false
	}

	p.mu.Lock()
	if p.detaching {
		p.mu.Unlock()
		return false
	}
	p.cookie = cookie
	if host, port := transport.RemoteEndpoint(remote); host != "" {
		p.observed = Endpoint{Host: host, Port: port}
	}
	p.setPhaseLocked(PhaseAwaitingHandshake)
	p.queue.pushFront(b)
	p.flags |= FlagHelloSent
	id, reg := p.id, p.registry
	p.verifyTimer = time.AfterFunc(p.cfg.VerifyTimeout, func() {
		if live, ok := reg.Get(id); ok {
			live.verifyExpired()
		}
	})
	p.mu.Unlock()

	p.signalWriter()
	p.logger().Debug().Msg("hello queued")
	return true
}

// verifyExpired fires when no acceptable hello arrived in time.
func (p *Peer) verifyExpired() {
	p.mu.Lock()
	stalled := !p.detaching && p.phase == PhaseAwaitingHandshake
	if stalled {
		p.verifyFired = true
	}
	p.mu.Unlock()
	if !stalled {
		return
	}
	p.punishAndDetach(PunishUnknownRequest, "hello verification timed out")
}

func (p *Peer) verifyHelloLocked(h *message.Hello) error {
	if !identity.ValidPublicKey(h.NodePublic) {
		return fmt.Errorf("%w: %d bytes", ErrMalformedKey, len(h.NodePublic))
	}
	if bytes.Equal(h.NodePublic, p.local.Public()) {
		return ErrSelfConnection
	}
	if !bytes.Equal(h.SessionCookie, p.cookie) {
		return ErrCookieMismatch
	}
	if !identity.Verify(h.NodePublic, p.cookie, h.NodeProof) {
		return ErrBadProof
	}
	if h.ProtoVersion < p.cfg.ProtoVersionMin {
		return fmt.Errorf("%w: %d < %d", ErrVersionTooOld, h.ProtoVersion, p.cfg.ProtoVersionMin)
	}
	if h.ProtoVersionMin > p.cfg.ProtoVersion {
		return fmt.Errorf("%w: remote requires %d, we speak %d", ErrVersionTooOld, h.ProtoVersionMin, p.cfg.ProtoVersion)
	}
	return nil
}

func (p *Peer) recvHello(h *message.Hello) {
	p.mu.Lock()
	if p.detaching || p.verifyFired {
		p.mu.Unlock()
		return
	}
	if p.identity != nil {
		p.mu.Unlock()
		p.Punish(PunishUnwantedData, "duplicate hello")
		return
	}
	if err := p.verifyHelloLocked(h); err != nil {
		p.mu.Unlock()
		p.punishAndDetach(PunishInvalidRequest, "hello rejected: "+err.Error())
		return
	}
	if p.verifyTimer != nil {
		p.verifyTimer.Stop()
	}
	p.identity = append([]byte(nil), h.NodePublic...)
	p.lastHello = h
	p.closedLedger = h.ClosedLedger
	p.previousLedger = h.PreviousLedger
	if h.ProtoVersion < p.cfg.ProtoVersion {
		p.flags |= FlagDownlevel
	}
	if h.Services&message.ServiceLedgers == 0 {
		p.flags |= FlagNoLedgers
	}
	if h.Services&message.ServiceTransactions == 0 {
		p.flags |= FlagNoTransactions
	}
	if p.cfg.Trusted(p.identity) {
		p.flags |= FlagTrusted
	}
	p.setPhaseLocked(PhaseEstablished)
	p.establishedAt = p.now()
	elapsed := p.establishedAt.Sub(p.startedAt)
	origin := p.originLocked()
	flags := p.flags
	p.mu.Unlock()

	node := identity.EncodeID(origin.Identity)
	p.withLogField("node", node)
	observability.RecordHandshake(elapsed)
	p.logger().Info().
		Uint32("proto_version", h.ProtoVersion).
		Str("closed_ledger", h.ClosedLedger.Short()).
		Str("flags", flags.String()).
		Msg("peer established")

	if err := p.handler.Established(origin); err != nil {
		p.detach("not admitted: "+err.Error(), "admission")
		return
	}
	p.mu.Lock()
	if !p.detaching {
		p.flags |= FlagMember
	}
	p.mu.Unlock()
}
