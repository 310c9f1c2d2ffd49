package message

import (
	"github.com/danmuck/ledgerlink/internal/protocol/schema"
	"github.com/danmuck/ledgerlink/internal/protocol/tlv"
)

// Service bits advertised in Hello.Services.
const (
	ServiceLedgers      uint32 = 1 << 0
	ServiceTransactions uint32 = 1 << 1
)

// NodeStatus values carried by StatusChange.
const (
	StatusConnecting uint8 = iota + 1
	StatusConnected
	StatusMonitoring
	StatusValidating
	StatusShutting
)

// NodeEvent values carried by StatusChange.
const (
	EventClosingLedger uint8 = iota + 1
	EventAcceptedLedger
	EventSwitchedLedger
	EventLostSync
)

// Transaction set availability carried by HaveTransactionSet.
const (
	TxSetHave uint8 = iota + 1
	TxSetCanGet
	TxSetNeed
)

// Ledger item types for GetLedger and LedgerData.
const (
	ItemBase uint8 = iota
	ItemTxNodes
	ItemAccountNodes
	ItemTxSetCandidate
)

// Object types for GetObjectByHash and ObjectByHash.
const (
	ObjectUnknown uint8 = iota
	ObjectLedger
	ObjectTransaction
	ObjectTxNode
	ObjectStateNode
)

// Ping kinds.
const (
	PingRequest uint8 = iota
	PingReply
)

// Hello opens every connection. It carries protocol version bounds, the
// sender's node identity bound to the TLS session, and its ledger cursors.
type Hello struct {
	ProtoVersion    uint32
	ProtoVersionMin uint32
	NodePublic      []byte
	NodeProof       []byte
	ClosedLedger    Hash
	PreviousLedger  Hash
	LedgerSeq       uint32
	NetTime         uint64
	ListenPort      uint32
	Services        uint32
	SessionCookie   []byte
}

func (*Hello) Type() uint32 { return schema.MsgHello }
func (*Hello) Class() Class { return ClassHandshake }

func (m *Hello) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.U32(schema.FieldProtoVersion, m.ProtoVersion),
		tlv.U32(schema.FieldProtoVersionMin, m.ProtoVersionMin),
		tlv.Bytes(schema.FieldNodePublic, m.NodePublic),
		tlv.Bytes(schema.FieldNodeProof, m.NodeProof),
		tlv.Bytes(schema.FieldSessionCookie, m.SessionCookie),
		tlv.U32(schema.FieldLedgerSeq, m.LedgerSeq),
		tlv.U64(schema.FieldNetTime, m.NetTime),
		tlv.U32(schema.FieldListenPort, m.ListenPort),
		tlv.U32(schema.FieldServices, m.Services),
	}
	out = appendHash(out, schema.FieldLedgerHash, m.ClosedLedger)
	out = appendHash(out, schema.FieldPreviousLedger, m.PreviousLedger)
	return out
}

func (m *Hello) decode(r *reader) {
	m.ProtoVersion = r.U32(schema.FieldProtoVersion, true)
	m.ProtoVersionMin = r.U32(schema.FieldProtoVersionMin, true)
	m.NodePublic = r.Bytes(schema.FieldNodePublic, true)
	m.NodeProof = r.Bytes(schema.FieldNodeProof, true)
	m.SessionCookie = r.Bytes(schema.FieldSessionCookie, true)
	m.LedgerSeq = r.U32(schema.FieldLedgerSeq, false)
	m.NetTime = r.U64(schema.FieldNetTime, false)
	m.ListenPort = r.U32(schema.FieldListenPort, false)
	m.Services = r.U32(schema.FieldServices, false)
	m.ClosedLedger = r.Hash(schema.FieldLedgerHash, false)
	m.PreviousLedger = r.Hash(schema.FieldPreviousLedger, false)
}

// ErrorMsg reports a remote-side error. Purely informational.
type ErrorMsg struct {
	Code    uint32
	Message string
}

func (*ErrorMsg) Type() uint32 { return schema.MsgErrorMsg }
func (*ErrorMsg) Class() Class { return ClassUtility }

func (m *ErrorMsg) fields() []tlv.Field {
	return []tlv.Field{
		tlv.U32(schema.FieldErrorCode, m.Code),
		tlv.String(schema.FieldErrorMessage, m.Message),
	}
}

func (m *ErrorMsg) decode(r *reader) {
	m.Code = r.U32(schema.FieldErrorCode, true)
	m.Message = r.String(schema.FieldErrorMessage, false)
}

type Ping struct {
	Kind    uint8
	Seq     uint32
	NetTime uint64
}

func (*Ping) Type() uint32 { return schema.MsgPing }
func (*Ping) Class() Class { return ClassUtility }

func (m *Ping) fields() []tlv.Field {
	return []tlv.Field{
		tlv.U8(schema.FieldPingType, m.Kind),
		tlv.U32(schema.FieldPingSeq, m.Seq),
		tlv.U64(schema.FieldPingTime, m.NetTime),
	}
}

func (m *Ping) decode(r *reader) {
	m.Kind = r.U8(schema.FieldPingType, true)
	m.Seq = r.U32(schema.FieldPingSeq, false)
	m.NetTime = r.U64(schema.FieldPingTime, false)
}

type GetPeers struct {
	Limit uint32
}

func (*GetPeers) Type() uint32 { return schema.MsgGetPeers }
func (*GetPeers) Class() Class { return ClassEstablished }

func (m *GetPeers) fields() []tlv.Field {
	return []tlv.Field{tlv.U32(schema.FieldPeerLimit, m.Limit)}
}

func (m *GetPeers) decode(r *reader) {
	m.Limit = r.U32(schema.FieldPeerLimit, false)
}

// Peers lists reachable "host:port" endpoints.
type Peers struct {
	Endpoints []string
}

func (*Peers) Type() uint32 { return schema.MsgPeers }
func (*Peers) Class() Class { return ClassEstablished }

func (m *Peers) fields() []tlv.Field {
	out := make([]tlv.Field, 0, len(m.Endpoints))
	for _, ep := range m.Endpoints {
		out = append(out, tlv.String(schema.FieldEndpoint, ep))
	}
	return out
}

func (m *Peers) decode(r *reader) {
	m.Endpoints = r.StringList(schema.FieldEndpoint)
}

// GetContacts asks for contact records. An empty NodeIDs list asks for all.
type GetContacts struct {
	NodeIDs [][]byte
}

func (*GetContacts) Type() uint32 { return schema.MsgGetContacts }
func (*GetContacts) Class() Class { return ClassEstablished }

func (m *GetContacts) fields() []tlv.Field {
	return appendBytesList(nil, schema.FieldNodeID, m.NodeIDs)
}

func (m *GetContacts) decode(r *reader) {
	m.NodeIDs = r.BytesList(schema.FieldNodeID)
}

type Contact struct {
	NodePublic []byte
	Endpoint   string
	Score      uint32
}

func (*Contact) Type() uint32 { return schema.MsgContact }
func (*Contact) Class() Class { return ClassEstablished }

func (m *Contact) fields() []tlv.Field {
	return []tlv.Field{
		tlv.Bytes(schema.FieldNodePublic, m.NodePublic),
		tlv.String(schema.FieldEndpoint, m.Endpoint),
		tlv.U32(schema.FieldScore, m.Score),
	}
}

func (m *Contact) decode(r *reader) {
	m.NodePublic = r.Bytes(schema.FieldNodePublic, true)
	m.Endpoint = r.String(schema.FieldEndpoint, true)
	m.Score = r.U32(schema.FieldScore, false)
}

type SearchTransaction struct {
	Account   []byte
	LedgerSeq uint32
}

func (*SearchTransaction) Type() uint32 { return schema.MsgSearchTx }
func (*SearchTransaction) Class() Class { return ClassEstablished }

func (m *SearchTransaction) fields() []tlv.Field {
	return []tlv.Field{
		tlv.Bytes(schema.FieldAccount, m.Account),
		tlv.U32(schema.FieldLedgerSeq, m.LedgerSeq),
	}
}

func (m *SearchTransaction) decode(r *reader) {
	m.Account = r.Bytes(schema.FieldAccount, true)
	m.LedgerSeq = r.U32(schema.FieldLedgerSeq, false)
}

type GetAccount struct {
	Account []byte
	Ledger  Hash
}

func (*GetAccount) Type() uint32 { return schema.MsgGetAccount }
func (*GetAccount) Class() Class { return ClassEstablished }

func (m *GetAccount) fields() []tlv.Field {
	out := []tlv.Field{tlv.Bytes(schema.FieldAccount, m.Account)}
	return appendHash(out, schema.FieldLedgerHash, m.Ledger)
}

func (m *GetAccount) decode(r *reader) {
	m.Account = r.Bytes(schema.FieldAccount, true)
	m.Ledger = r.Hash(schema.FieldLedgerHash, false)
}

type Account struct {
	Account []byte
	Data    []byte
	Ledger  Hash
}

func (*Account) Type() uint32 { return schema.MsgAccount }
func (*Account) Class() Class { return ClassEstablished }

func (m *Account) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.Bytes(schema.FieldAccount, m.Account),
		tlv.Bytes(schema.FieldData, m.Data),
	}
	return appendHash(out, schema.FieldLedgerHash, m.Ledger)
}

func (m *Account) decode(r *reader) {
	m.Account = r.Bytes(schema.FieldAccount, true)
	m.Data = r.Bytes(schema.FieldData, true)
	m.Ledger = r.Hash(schema.FieldLedgerHash, false)
}

// Transaction relays one serialized signed transaction.
type Transaction struct {
	Raw []byte
}

func (*Transaction) Type() uint32 { return schema.MsgTransaction }
func (*Transaction) Class() Class { return ClassEstablished }

func (m *Transaction) fields() []tlv.Field {
	return []tlv.Field{tlv.Bytes(schema.FieldRawTx, m.Raw)}
}

func (m *Transaction) decode(r *reader) {
	m.Raw = r.Bytes(schema.FieldRawTx, true)
}

// GetLedger requests ledger nodes. An empty NodeIDs list requests every node
// of ItemType.
type GetLedger struct {
	ItemType  uint8
	Ledger    Hash
	LedgerSeq uint32
	NodeIDs   [][]byte
}

func (*GetLedger) Type() uint32 { return schema.MsgGetLedger }
func (*GetLedger) Class() Class { return ClassEstablished }

func (m *GetLedger) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.U8(schema.FieldItemType, m.ItemType),
		tlv.U32(schema.FieldLedgerSeq, m.LedgerSeq),
	}
	out = appendHash(out, schema.FieldLedgerHash, m.Ledger)
	return appendBytesList(out, schema.FieldNodeID, m.NodeIDs)
}

func (m *GetLedger) decode(r *reader) {
	m.ItemType = r.U8(schema.FieldItemType, true)
	m.LedgerSeq = r.U32(schema.FieldLedgerSeq, false)
	m.Ledger = r.Hash(schema.FieldLedgerHash, false)
	m.NodeIDs = r.BytesList(schema.FieldNodeID)
}

type LedgerData struct {
	Ledger         Hash
	LedgerSeq      uint32
	ItemType       uint8
	PreviousLedger Hash
	TxSetHash      Hash
	CloseTime      uint64
	Nodes          [][]byte
}

func (*LedgerData) Type() uint32 { return schema.MsgLedgerData }
func (*LedgerData) Class() Class { return ClassEstablished }

func (m *LedgerData) fields() []tlv.Field {
	out := []tlv.Field{
		hashField(schema.FieldLedgerHash, m.Ledger),
		tlv.U32(schema.FieldLedgerSeq, m.LedgerSeq),
		tlv.U8(schema.FieldItemType, m.ItemType),
		tlv.U64(schema.FieldCloseTime, m.CloseTime),
	}
	out = appendHash(out, schema.FieldPreviousLedger, m.PreviousLedger)
	out = appendHash(out, schema.FieldTxSetHash, m.TxSetHash)
	return appendBytesList(out, schema.FieldData, m.Nodes)
}

func (m *LedgerData) decode(r *reader) {
	m.Ledger = r.Hash(schema.FieldLedgerHash, true)
	m.LedgerSeq = r.U32(schema.FieldLedgerSeq, false)
	m.ItemType = r.U8(schema.FieldItemType, true)
	m.CloseTime = r.U64(schema.FieldCloseTime, false)
	m.PreviousLedger = r.Hash(schema.FieldPreviousLedger, false)
	m.TxSetHash = r.Hash(schema.FieldTxSetHash, false)
	m.Nodes = r.BytesList(schema.FieldData)
}

// StatusChange announces a ledger transition on the sender.
type StatusChange struct {
	Status         uint8
	Event          uint8
	LedgerSeq      uint32
	Ledger         Hash
	PreviousLedger Hash
	NetTime        uint64
}

func (*StatusChange) Type() uint32 { return schema.MsgStatusChange }
func (*StatusChange) Class() Class { return ClassEstablished }

func (m *StatusChange) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.U8(schema.FieldStatus, m.Status),
		tlv.U8(schema.FieldNewEvent, m.Event),
		tlv.U32(schema.FieldLedgerSeq, m.LedgerSeq),
		tlv.U64(schema.FieldNetTime, m.NetTime),
	}
	out = appendHash(out, schema.FieldLedgerHash, m.Ledger)
	return appendHash(out, schema.FieldPreviousLedger, m.PreviousLedger)
}

func (m *StatusChange) decode(r *reader) {
	m.Status = r.U8(schema.FieldStatus, true)
	m.Event = r.U8(schema.FieldNewEvent, false)
	m.LedgerSeq = r.U32(schema.FieldLedgerSeq, false)
	m.NetTime = r.U64(schema.FieldNetTime, false)
	m.Ledger = r.Hash(schema.FieldLedgerHash, false)
	m.PreviousLedger = r.Hash(schema.FieldPreviousLedger, false)
}

type HaveTransactionSet struct {
	Status uint8
	Hash   Hash
}

func (*HaveTransactionSet) Type() uint32 { return schema.MsgHaveTxSet }
func (*HaveTransactionSet) Class() Class { return ClassEstablished }

func (m *HaveTransactionSet) fields() []tlv.Field {
	return []tlv.Field{
		tlv.U8(schema.FieldStatus, m.Status),
		hashField(schema.FieldHash, m.Hash),
	}
}

func (m *HaveTransactionSet) decode(r *reader) {
	m.Status = r.U8(schema.FieldStatus, true)
	m.Hash = r.Hash(schema.FieldHash, true)
}

type GetObjectByHash struct {
	ObjectType uint8
	Cookie     uint32
	Ledger     Hash
	Hashes     [][]byte
}

func (*GetObjectByHash) Type() uint32 { return schema.MsgGetObjects }
func (*GetObjectByHash) Class() Class { return ClassEstablished }

func (m *GetObjectByHash) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.U8(schema.FieldObjectType, m.ObjectType),
		tlv.Bool(schema.FieldQuery, true),
		tlv.U32(schema.FieldCookie, m.Cookie),
	}
	out = appendHash(out, schema.FieldLedgerHash, m.Ledger)
	return appendBytesList(out, schema.FieldHash, m.Hashes)
}

func (m *GetObjectByHash) decode(r *reader) {
	m.ObjectType = r.U8(schema.FieldObjectType, true)
	m.Cookie = r.U32(schema.FieldCookie, false)
	m.Ledger = r.Hash(schema.FieldLedgerHash, false)
	m.Hashes = r.BytesList(schema.FieldHash)
}

// ObjectByHash answers GetObjectByHash. Hashes and Data are parallel lists.
type ObjectByHash struct {
	ObjectType uint8
	Cookie     uint32
	Ledger     Hash
	Hashes     [][]byte
	Data       [][]byte
}

func (*ObjectByHash) Type() uint32 { return schema.MsgObjects }
func (*ObjectByHash) Class() Class { return ClassEstablished }

func (m *ObjectByHash) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.U8(schema.FieldObjectType, m.ObjectType),
		tlv.Bool(schema.FieldQuery, false),
		tlv.U32(schema.FieldCookie, m.Cookie),
	}
	out = appendHash(out, schema.FieldLedgerHash, m.Ledger)
	out = appendBytesList(out, schema.FieldHash, m.Hashes)
	return appendBytesList(out, schema.FieldData, m.Data)
}

func (m *ObjectByHash) decode(r *reader) {
	m.ObjectType = r.U8(schema.FieldObjectType, true)
	m.Cookie = r.U32(schema.FieldCookie, false)
	m.Ledger = r.Hash(schema.FieldLedgerHash, false)
	m.Hashes = r.BytesList(schema.FieldHash)
	m.Data = r.BytesList(schema.FieldData)
}

type IndexedObject struct {
	Hash  Hash
	Data  []byte
	Index []byte
}

func (*IndexedObject) Type() uint32 { return schema.MsgIndexedObj }
func (*IndexedObject) Class() Class { return ClassEstablished }

func (m *IndexedObject) fields() []tlv.Field {
	out := []tlv.Field{
		hashField(schema.FieldHash, m.Hash),
		tlv.Bytes(schema.FieldData, m.Data),
	}
	if len(m.Index) > 0 {
		out = append(out, tlv.Bytes(schema.FieldIndex, m.Index))
	}
	return out
}

func (m *IndexedObject) decode(r *reader) {
	m.Hash = r.Hash(schema.FieldHash, true)
	m.Data = r.Bytes(schema.FieldData, true)
	m.Index = r.Bytes(schema.FieldIndex, false)
}

// ProposeSet is a consensus proposal for the next ledger.
type ProposeSet struct {
	ProposeSeq     uint32
	TxSetHash      Hash
	PreviousLedger Hash
	CloseTime      uint64
	NodePublic     []byte
	Signature      []byte
}

func (*ProposeSet) Type() uint32 { return schema.MsgProposeSet }
func (*ProposeSet) Class() Class { return ClassConsensus }

// SigningData is the byte string the proposer signs: every field except the
// signature, in wire order.
func (m *ProposeSet) SigningData() []byte {
	return tlv.EncodeFields(m.unsigned())
}

func (m *ProposeSet) unsigned() []tlv.Field {
	return []tlv.Field{
		tlv.U32(schema.FieldProposeSeq, m.ProposeSeq),
		hashField(schema.FieldTxSetHash, m.TxSetHash),
		hashField(schema.FieldPreviousLedger, m.PreviousLedger),
		tlv.U64(schema.FieldCloseTime, m.CloseTime),
		tlv.Bytes(schema.FieldNodePublic, m.NodePublic),
	}
}

func (m *ProposeSet) fields() []tlv.Field {
	return append(m.unsigned(), tlv.Bytes(schema.FieldSignature, m.Signature))
}

func (m *ProposeSet) decode(r *reader) {
	m.ProposeSeq = r.U32(schema.FieldProposeSeq, true)
	m.TxSetHash = r.Hash(schema.FieldTxSetHash, true)
	m.PreviousLedger = r.Hash(schema.FieldPreviousLedger, true)
	m.CloseTime = r.U64(schema.FieldCloseTime, true)
	m.NodePublic = r.Bytes(schema.FieldNodePublic, true)
	m.Signature = r.Bytes(schema.FieldSignature, true)
}

// Validation carries one serialized signed validation.
type Validation struct {
	Validation []byte
}

func (*Validation) Type() uint32 { return schema.MsgValidation }
func (*Validation) Class() Class { return ClassConsensus }

func (m *Validation) fields() []tlv.Field {
	return []tlv.Field{tlv.Bytes(schema.FieldValidation, m.Validation)}
}

func (m *Validation) decode(r *reader) {
	m.Validation = r.Bytes(schema.FieldValidation, true)
}

type GetValidations struct {
	Ledger Hash
}

func (*GetValidations) Type() uint32 { return schema.MsgGetValidations }
func (*GetValidations) Class() Class { return ClassEstablished }

func (m *GetValidations) fields() []tlv.Field {
	return []tlv.Field{hashField(schema.FieldLedgerHash, m.Ledger)}
}

func (m *GetValidations) decode(r *reader) {
	m.Ledger = r.Hash(schema.FieldLedgerHash, true)
}
