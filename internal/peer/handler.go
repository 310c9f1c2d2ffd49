package peer

import (
	"errors"

	"github.com/danmuck/ledgerlink/internal/protocol/message"
)

var (
	// ErrUnwantedData returned by a Handler charges the sender
	// PunishUnwantedData.
	ErrUnwantedData = errors.New("peer: unwanted data")
	// ErrInvalidData returned by a Handler charges the sender
	// PunishInvalidRequest.
	ErrInvalidData = errors.New("peer: invalid data")
)

// Origin identifies the connection a message arrived on.
type Origin struct {
	ID       ID
	Identity []byte
	Addr     string
	Trusted  bool
}

// Handler receives decoded inbound traffic. Calls for one connection are made
// one at a time in wire order; calls for different connections may run
// concurrently.
//
// Consensus data (Proposal, Validation) from an origin that is not Trusted is
// advisory input only.
type Handler interface {
	// Established is called once the remote hello is accepted. Returning an
	// error detaches the connection; nil admits it to the active set.
	Established(Origin) error
	// Detached is called exactly once per connection, after teardown.
	Detached(origin Origin, reason string)

	Transaction(Origin, *message.Transaction) error
	Validation(Origin, *message.Validation) error
	Proposal(Origin, *message.ProposeSet) error
	StatusChanged(Origin, *message.StatusChange) error
	LedgerData(Origin, *message.LedgerData) error
	AccountData(Origin, *message.Account) error
	// ObjectData receives *message.ObjectByHash and *message.IndexedObject.
	ObjectData(Origin, message.Message) error
	TransactionSet(Origin, *message.HaveTransactionSet) error
	PeersReceived(Origin, *message.Peers) error
	ContactReceived(Origin, *message.Contact) error

	// Serve answers a request message. Replies are sent back in order.
	Serve(Origin, message.Message) ([]message.Message, error)
}

// NopHandler accepts everything and answers nothing. Embed it to implement
// only the callbacks you need.
type NopHandler struct{}

func (NopHandler) Established(Origin) error { return nil }
func (NopHandler) Detached(Origin, string) {}
func (NopHandler) Transaction(Origin, *message.Transaction) error { return nil }
func (NopHandler) Validation(Origin, *message.Validation) error { return nil }
func (NopHandler) Proposal(Origin, *message.ProposeSet) error { return nil }
func (NopHandler) StatusChanged(Origin, *message.StatusChange) error { return nil }
func (NopHandler) LedgerData(Origin, *message.LedgerData) error { return nil }
func (NopHandler) AccountData(Origin, *message.Account) error { return nil }
func (NopHandler) ObjectData(Origin, message.Message) error { return nil }
func (NopHandler) TransactionSet(Origin, *message.HaveTransactionSet) error { return nil }
func (NopHandler) PeersReceived(Origin, *message.Peers) error { return nil }
func (NopHandler) ContactReceived(Origin, *message.Contact) error { return nil }
func (NopHandler) Serve(Origin, message.Message) ([]message.Message, error) { return nil, nil }

// LedgerCursor is a node's view of its own recent ledgers.
type LedgerCursor struct {
	Closed   message.Hash
	Previous message.Hash
	Seq      uint32
}

// LocalNode is this node as seen by its connections.
type LocalNode interface {
	Public() []byte
	Sign(data []byte) []byte
	ClosedLedger() LedgerCursor
}

// Ledger is the subset of a closed ledger a connection can propose or send.
type Ledger struct {
	Hash       message.Hash
	Seq        uint32
	ParentHash message.Hash
	CloseTime  uint64
	TxSetHash  message.Hash
	// Nodes are serialized ledger nodes, header first.
	Nodes [][]byte
}

// Reputation is told about every punishment. It may keep cross-connection
// state such as ban lists; the connection itself keeps none.
type Reputation interface {
	Punished(addr string, kind Punishment)
}
