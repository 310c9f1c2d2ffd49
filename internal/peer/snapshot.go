package peer

import (
	"time"

	"github.com/danmuck/ledgerlink/internal/identity"
)

// Snapshot is a point-in-time view of one connection for status reporting.
type Snapshot struct {
	ID             ID                `json:"id"`
	Phase          string            `json:"phase"`
	Outbound       bool              `json:"outbound"`
	Identity       string            `json:"identity,omitempty"`
	Target         string            `json:"target,omitempty"`
	Observed       string            `json:"observed,omitempty"`
	Flags          string            `json:"flags,omitempty"`
	Trusted        bool              `json:"trusted"`
	Downlevel      bool              `json:"downlevel"`
	ProtoVersion   uint32            `json:"proto_version,omitempty"`
	ClosedLedger   string            `json:"closed_ledger,omitempty"`
	PreviousLedger string            `json:"previous_ledger,omitempty"`
	LastStatus     uint8             `json:"last_status,omitempty"`
	LedgerSeq      uint32            `json:"ledger_seq,omitempty"`
	Score          float64           `json:"score"`
	Punishments    map[string]uint64 `json:"punishments,omitempty"`
	SendQueue      int               `json:"send_queue"`
	FramesWritten  uint64            `json:"frames_written"`
	DetachReason   string            `json:"detach_reason,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	EstablishedAt  *time.Time        `json:"established_at,omitempty"`
}

func (p *Peer) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		ID:            p.id,
		Phase:         p.phase.String(),
		Outbound:      p.outbound,
		Target:        p.target.String(),
		Observed:      p.observed.String(),
		Flags:         p.flags.String(),
		Trusted:       p.flags.Has(FlagTrusted),
		Downlevel:     p.flags.Has(FlagDownlevel),
		Score:         p.policy.current(p.now()),
		Punishments:   p.policy.snapshot(),
		SendQueue:     p.queue.len(),
		FramesWritten: p.queue.written,
		DetachReason:  p.detachReason,
	}
	if p.identity != nil {
		s.Identity = identity.EncodeID(p.identity)
	}
	if p.lastHello != nil {
		s.ProtoVersion = p.lastHello.ProtoVersion
	}
	if !p.closedLedger.IsZero() {
		s.ClosedLedger = p.closedLedger.String()
	}
	if !p.previousLedger.IsZero() {
		s.PreviousLedger = p.previousLedger.String()
	}
	if p.lastStatus != nil {
		s.LastStatus = p.lastStatus.Status
		s.LedgerSeq = p.lastStatus.LedgerSeq
	}
	if !p.startedAt.IsZero() {
		t := p.startedAt
		s.StartedAt = &t
	}
	if !p.establishedAt.IsZero() {
		t := p.establishedAt
		s.EstablishedAt = &t
	}
	return s
}
