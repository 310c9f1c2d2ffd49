package overlay

import (
	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
)

// TxPool receives transactions seen for the first time.
type TxPool interface {
	AddTransaction(peer.Origin, *message.Transaction) error
}

// Consensus receives consensus traffic. Input from untrusted origins is
// advisory.
type Consensus interface {
	Proposal(peer.Origin, *message.ProposeSet) error
	Validation(peer.Origin, *message.Validation) error
	TransactionSet(peer.Origin, *message.HaveTransactionSet) error
	StatusChanged(peer.Origin, *message.StatusChange) error
}

// LedgerStore holds ledger, account and object data and answers requests
// for them.
type LedgerStore interface {
	LedgerData(peer.Origin, *message.LedgerData) error
	AccountData(peer.Origin, *message.Account) error
	ObjectData(peer.Origin, message.Message) error
	Serve(peer.Origin, message.Message) ([]message.Message, error)
}

// Subsystems are the local collaborators traffic is handed to. Nil members
// drop their traffic.
type Subsystems struct {
	TxPool    TxPool
	Consensus Consensus
	Ledgers   LedgerStore
}

type nopSubsystems struct{}

func (nopSubsystems) AddTransaction(peer.Origin, *message.Transaction) error { return nil }
func (nopSubsystems) Proposal(peer.Origin, *message.ProposeSet) error { return nil }
func (nopSubsystems) Validation(peer.Origin, *message.Validation) error { return nil }
func (nopSubsystems) TransactionSet(peer.Origin, *message.HaveTransactionSet) error { return nil }
func (nopSubsystems) StatusChanged(peer.Origin, *message.StatusChange) error { return nil }
func (nopSubsystems) LedgerData(peer.Origin, *message.LedgerData) error { return nil }
func (nopSubsystems) AccountData(peer.Origin, *message.Account) error { return nil }
func (nopSubsystems) ObjectData(peer.Origin, message.Message) error { return nil }
func (nopSubsystems) Serve(peer.Origin, message.Message) ([]message.Message, error) { return nil, nil }

func (s Subsystems) withDefaults() Subsystems {
	if s.TxPool == nil {
		s.TxPool = nopSubsystems{}
	}
	if s.Consensus == nil {
		s.Consensus = nopSubsystems{}
	}
	if s.Ledgers == nil {
		s.Ledgers = nopSubsystems{}
	}
	return s
}
