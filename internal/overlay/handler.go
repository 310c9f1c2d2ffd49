package overlay

import (
	"bytes"
	"fmt"

	"github.com/danmuck/ledgerlink/internal/identity"
	"github.com/danmuck/ledgerlink/internal/observability"
	"github.com/danmuck/ledgerlink/internal/peer"
	"github.com/danmuck/ledgerlink/internal/protocol/message"
	"github.com/rs/zerolog/log"
)

var _ peer.Handler = (*Overlay)(nil)

// Established admits a connection unless its node is already connected or
// the overlay is full. Trusted nodes are admitted past the limit.
func (o *Overlay) Established(origin peer.Origin) error {
	node := identity.EncodeID(origin.Identity)
	o.admitMu.Lock()
	defer o.admitMu.Unlock()

	for _, admitted := range o.members {
		if admitted == node {
			return ErrDuplicatePeer
		}
	}
	if len(o.members) >= o.cfg.MaxPeers && !origin.Trusted {
		return ErrPeerLimit
	}
	o.members[origin.ID] = node
	o.fixedEstablished(origin.ID)
	log.Info().
		Str("node", node).
		Str("addr", origin.Addr).
		Bool("trusted", origin.Trusted).
		Int("members", len(o.members)).
		Msg("peer admitted")
	return nil
}

func (o *Overlay) Detached(origin peer.Origin, reason string) {
	o.admitMu.Lock()
	delete(o.members, origin.ID)
	o.admitMu.Unlock()
	log.Debug().Str("peer", origin.ID.String()).Str("reason", reason).Msg("peer left overlay")
	o.scheduleRedial(origin.ID)
}

// relayFirst reports whether m is new and, if not, counts the suppression.
func (o *Overlay) relayFirst(m message.Message) bool {
	if o.relay.first(m) {
		return true
	}
	observability.RecordRelaySuppressed(m.Type())
	return false
}

func (o *Overlay) Transaction(origin peer.Origin, m *message.Transaction) error {
	if !o.relayFirst(m) {
		return nil
	}
	if err := o.subs.TxPool.AddTransaction(origin, m); err != nil {
		o.relay.forget(m)
		return err
	}
	o.Broadcast(m, origin.ID, func(p *peer.Peer) bool {
		return !p.Flags().Has(peer.FlagNoTransactions)
	})
	return nil
}

func (o *Overlay) Proposal(origin peer.Origin, m *message.ProposeSet) error {
	if !identity.Verify(m.NodePublic, m.SigningData(), m.Signature) {
		return fmt.Errorf("%w: proposal signature", peer.ErrInvalidData)
	}
	if !o.relayFirst(m) {
		return nil
	}
	if err := o.subs.Consensus.Proposal(origin, m); err != nil {
		o.relay.forget(m)
		return err
	}
	o.Broadcast(m, origin.ID, nil)
	return nil
}

func (o *Overlay) Validation(origin peer.Origin, m *message.Validation) error {
	if !o.relayFirst(m) {
		return nil
	}
	if err := o.subs.Consensus.Validation(origin, m); err != nil {
		o.relay.forget(m)
		return err
	}
	o.Broadcast(m, origin.ID, nil)
	return nil
}

func (o *Overlay) StatusChanged(origin peer.Origin, m *message.StatusChange) error {
	return o.subs.Consensus.StatusChanged(origin, m)
}

func (o *Overlay) TransactionSet(origin peer.Origin, m *message.HaveTransactionSet) error {
	return o.subs.Consensus.TransactionSet(origin, m)
}

func (o *Overlay) LedgerData(origin peer.Origin, m *message.LedgerData) error {
	return o.subs.Ledgers.LedgerData(origin, m)
}

func (o *Overlay) AccountData(origin peer.Origin, m *message.Account) error {
	return o.subs.Ledgers.AccountData(origin, m)
}

func (o *Overlay) ObjectData(origin peer.Origin, m message.Message) error {
	return o.subs.Ledgers.ObjectData(origin, m)
}

func (o *Overlay) PeersReceived(origin peer.Origin, m *message.Peers) error {
	learned := 0
	for _, ep := range m.Endpoints {
		if o.learn(ep) {
			learned++
		}
	}
	if learned > 0 {
		log.Debug().Str("peer", origin.ID.String()).Int("learned", learned).Msg("endpoints learned")
	}
	return nil
}

func (o *Overlay) ContactReceived(origin peer.Origin, m *message.Contact) error {
	if !identity.ValidPublicKey(m.NodePublic) {
		return fmt.Errorf("%w: contact key", peer.ErrInvalidData)
	}
	o.learn(m.Endpoint)
	return nil
}

// Serve answers peer discovery from the registry and hands every other
// request to the ledger store.
func (o *Overlay) Serve(origin peer.Origin, req message.Message) ([]message.Message, error) {
	switch m := req.(type) {
	case *message.GetPeers:
		return []message.Message{o.peersReply(origin.ID, m.Limit)}, nil
	case *message.GetContacts:
		return o.contactsReply(origin.ID, m.NodeIDs), nil
	default:
		return o.subs.Ledgers.Serve(origin, req)
	}
}

func (o *Overlay) peersReply(except peer.ID, limit uint32) *message.Peers {
	if limit == 0 || limit > defaultPeersReply {
		limit = defaultPeersReply
	}
	reply := &message.Peers{}
	for _, p := range o.Active() {
		if uint32(len(reply.Endpoints)) >= limit {
			break
		}
		if p.ID() == except {
			continue
		}
		if ep := p.ListenEndpoint(); !ep.IsZero() {
			reply.Endpoints = append(reply.Endpoints, ep.String())
		}
	}
	return reply
}

// contactsReply describes active nodes; with wanted set, only those nodes.
func (o *Overlay) contactsReply(except peer.ID, wanted [][]byte) []message.Message {
	var out []message.Message
	for _, p := range o.Active() {
		if p.ID() == except {
			continue
		}
		node := p.Identity()
		if len(wanted) > 0 && !containsKey(wanted, node) {
			continue
		}
		out = append(out, &message.Contact{
			NodePublic: node,
			Endpoint:   p.ListenEndpoint().String(),
			Score:      uint32(p.Score()),
		})
	}
	return out
}

func containsKey(keys [][]byte, k []byte) bool {
	for _, x := range keys {
		if bytes.Equal(x, k) {
			return true
		}
	}
	return false
}
