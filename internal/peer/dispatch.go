package peer

import (
	"errors"
	"fmt"

	"github.com/danmuck/ledgerlink/internal/protocol/message"
)

// dispatch routes one decoded inbound message. Only a hello is accepted
// before the handshake completes.
func (p *Peer) dispatch(m message.Message) {
	p.mu.Lock()
	detaching := p.detaching
	established := p.identity != nil
	origin := p.originLocked()
	p.mu.Unlock()
	if detaching {
		return
	}
	if m.Class() != message.ClassHandshake && !established {
		p.Punish(PunishInvalidRequest, fmt.Sprintf("message type %d before hello", m.Type()))
		return
	}

	var err error
	switch msg := m.(type) {
	case *message.Hello:
		p.recvHello(msg)
	case *message.ErrorMsg:
		p.logger().Warn().
			Uint32("code", msg.Code).
			Str("message", msg.Message).
			Msg("remote reported error")
	case *message.Ping:
		p.recvPing(msg)
	case *message.GetPeers, *message.GetContacts, *message.SearchTransaction,
		*message.GetAccount, *message.GetLedger, *message.GetObjectByHash,
		*message.GetValidations:
		err = p.serve(origin, m)
	case *message.Peers:
		err = p.handler.PeersReceived(origin, msg)
	case *message.Contact:
		err = p.handler.ContactReceived(origin, msg)
	case *message.Account:
		err = p.handler.AccountData(origin, msg)
	case *message.Transaction:
		err = p.handler.Transaction(origin, msg)
	case *message.LedgerData:
		err = p.handler.LedgerData(origin, msg)
	case *message.StatusChange:
		p.recvStatus(msg)
		err = p.handler.StatusChanged(origin, msg)
	case *message.HaveTransactionSet:
		err = p.handler.TransactionSet(origin, msg)
	case *message.ObjectByHash, *message.IndexedObject:
		err = p.handler.ObjectData(origin, m)
	case *message.ProposeSet:
		err = p.handler.Proposal(origin, msg)
	case *message.Validation:
		err = p.handler.Validation(origin, msg)
	default:
		p.Punish(PunishUnknownRequest, fmt.Sprintf("no handler for message type %d", m.Type()))
		return
	}
	if err != nil {
		p.handlerFailed(m, err)
	}
}

func (p *Peer) handlerFailed(m message.Message, err error) {
	switch {
	case errors.Is(err, ErrUnwantedData):
		p.Punish(PunishUnwantedData, err.Error())
	case errors.Is(err, ErrInvalidData):
		p.Punish(PunishInvalidRequest, err.Error())
	default:
		p.logger().Debug().Err(err).Uint32("message_type", m.Type()).Msg("handler declined message")
	}
}

// ErrorCodeDeclined is sent in an ErrorMsg when a request could not be
// served for reasons that are not the remote's fault.
const ErrorCodeDeclined uint32 = 1

func (p *Peer) serve(origin Origin, req message.Message) error {
	replies, err := p.handler.Serve(origin, req)
	for _, reply := range replies {
		if !p.sendReply(reply) {
			break
		}
	}
	if err != nil && !errors.Is(err, ErrUnwantedData) && !errors.Is(err, ErrInvalidData) {
		p.sendReply(&message.ErrorMsg{Code: ErrorCodeDeclined, Message: err.Error()})
	}
	return err
}

func (p *Peer) recvPing(m *message.Ping) {
	if m.Kind != message.PingRequest {
		return
	}
	p.sendReply(&message.Ping{
		Kind:    message.PingReply,
		Seq:     m.Seq,
		NetTime: uint64(p.now().Unix()),
	})
}

// recvStatus records the status and cycles the ledger cursors in one step.
func (p *Peer) recvStatus(m *message.StatusChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastStatus = m
	next := m.Ledger
	if m.Event == message.EventLostSync {
		next = message.Hash{}
	}
	p.previousLedger = p.closedLedger
	p.closedLedger = next
}
