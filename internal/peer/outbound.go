package peer

import (
	"github.com/danmuck/ledgerlink/internal/observability"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
)

// Punish charges one violation. Crossing the configured threshold detaches
// the connection.
func (p *Peer) Punish(kind Punishment, reason string) {
	p.mu.Lock()
	if p.detaching {
		p.mu.Unlock()
		return
	}
	score, exceeded := p.policy.record(kind, p.now())
	addr := p.addrLocked()
	p.mu.Unlock()

	observability.RecordPunishment(kind.String())
	p.logger().Warn().
		Str("kind", kind.String()).
		Str("reason", reason).
		Float64("score", score).
		Msg("peer punished")
	if p.cfg.Reputation != nil {
		p.cfg.Reputation.Punished(addr, kind)
	}
	if exceeded {
		p.detach("punishment threshold exceeded: "+reason, "punishment")
	}
}

// punishAndDetach handles faults that end the connection regardless of score.
func (p *Peer) punishAndDetach(kind Punishment, reason string) {
	p.Punish(kind, reason)
	p.detach(reason, "protocol")
}

// SendLedgerProposal signs and queues a proposal built from ledger.
func (p *Peer) SendLedgerProposal(ledger Ledger) bool {
	prop := &message.ProposeSet{
		ProposeSeq:     ledger.Seq,
		TxSetHash:      ledger.TxSetHash,
		PreviousLedger: ledger.ParentHash,
		CloseTime:      ledger.CloseTime,
		NodePublic:     p.local.Public(),
	}
	prop.Signature = p.local.Sign(prop.SigningData())
	return p.Send(prop)
}

// SendFullLedger pushes every node of ledger, header first.
func (p *Peer) SendFullLedger(ledger Ledger) bool {
	return p.Send(&message.LedgerData{
		Ledger:         ledger.Hash,
		LedgerSeq:      ledger.Seq,
		ItemType:       message.ItemBase,
		PreviousLedger: ledger.ParentHash,
		TxSetHash:      ledger.TxSetHash,
		CloseTime:      ledger.CloseTime,
		Nodes:          ledger.Nodes,
	})
}

// SendGetFullLedger asks the remote for every node of the ledger with hash.
func (p *Peer) SendGetFullLedger(hash message.Hash) error {
	p.mu.Lock()
	established := p.identity != nil
	noLedgers := p.flags.Has(FlagNoLedgers)
	p.mu.Unlock()
	if !established {
		return ErrNotEstablished
	}
	if noLedgers {
		return ErrNoLedgers
	}
	if !p.Send(&message.GetLedger{ItemType: message.ItemBase, Ledger: hash}) {
		return ErrNotEstablished
	}
	return nil
}

func (p *Peer) SendGetPeers() bool {
	return p.Send(&message.GetPeers{})
}

// ClosedLedgerHash is the remote's last reported closed ledger.
func (p *Peer) ClosedLedgerHash() message.Hash {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closedLedger
}

// LedgerCursors returns closed and previous ledger hashes as one consistent
// pair.
func (p *Peer) LedgerCursors() (closed, previous message.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closedLedger, p.previousLedger
}

// HasLedger reports whether hash is one of the remote's two most recent
// closed ledgers.
func (p *Peer) HasLedger(hash message.Hash) bool {
	if hash.IsZero() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return hash == p.closedLedger || hash == p.previousLedger
}

// CycleStatus shifts closed into previous and clears closed, as one step.
func (p *Peer) CycleStatus() {
	p.mu.Lock()
	p.previousLedger = p.closedLedger
	p.closedLedger = message.Hash{}
	p.mu.Unlock()
}

// Identity is the remote node public key, nil until the hello is accepted.
func (p *Peer) Identity() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// IsConnected reports an accepted hello on a connection that is not
// detaching.
func (p *Peer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity != nil && !p.detaching
}

func (p *Peer) Trusted() bool {
	return p.Flags().Has(FlagTrusted)
}

func (p *Peer) Flags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flags
}

func (p *Peer) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

func (p *Peer) Outbound() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbound
}

// Target is the dialed endpoint of an outbound connection.
func (p *Peer) Target() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// Observed is the endpoint the transport reports for the remote.
func (p *Peer) Observed() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observed
}

// ListenEndpoint is where the remote accepts connections: its observed host
// with the port advertised in its hello. Zero until the hello is accepted.
func (p *Peer) ListenEndpoint() Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastHello == nil || p.lastHello.ListenPort == 0 || p.observed.Host == "" {
		return Endpoint{}
	}
	return Endpoint{Host: p.observed.Host, Port: int(p.lastHello.ListenPort)}
}

func (p *Peer) LastStatus() *message.StatusChange {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStatus
}

func (p *Peer) Score() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy.current(p.now())
}
