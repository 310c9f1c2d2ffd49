// Package message defines the typed peer messages carried inside frames.
//
// Message is a sealed interface: only variants declared in this package
// satisfy it, and every variant names its precondition Class. The peer
// dispatcher switches over the concrete types exhaustively.
package message

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/danmuck/ledgerlink/internal/protocol/frame"
	"github.com/danmuck/ledgerlink/internal/protocol/schema"
	"github.com/danmuck/ledgerlink/internal/protocol/tlv"
)

// HashLen is the byte length of ledger, transaction set and object hashes.
const HashLen = 32

var (
	ErrInvalidHash  = errors.New("message: invalid hash length")
	ErrFlagMismatch = errors.New("message: frame flags do not match message type")
)

// Hash identifies a ledger, transaction set or stored object.
type Hash [HashLen]byte

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

// HashFromBytes copies b into a Hash. b must be exactly HashLen bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLen {
		return h, fmt.Errorf("%w: %d", ErrInvalidHash, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash decodes a hex encoded hash.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("message: parse hash: %w", err)
	}
	return HashFromBytes(b)
}

// Class is the dispatch precondition class of a message type.
type Class uint8

const (
	// ClassHandshake messages are the only ones accepted before the hello
	// exchange completes.
	ClassHandshake Class = iota + 1
	// ClassEstablished messages require an accepted handshake.
	ClassEstablished
	// ClassConsensus messages require an accepted handshake and are advisory
	// when the sender is not trusted.
	ClassConsensus
	// ClassUtility messages require an accepted handshake and never touch
	// ledger-sync state.
	ClassUtility
)

func (c Class) String() string {
	switch c {
	case ClassHandshake:
		return "handshake"
	case ClassEstablished:
		return "established"
	case ClassConsensus:
		return "consensus"
	case ClassUtility:
		return "utility"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Message is one typed peer protocol message.
type Message interface {
	Type() uint32
	Class() Class

	fields() []tlv.Field
	decode(r *reader)
}

// UnknownTypeError is returned by Decode for well-framed messages whose type
// is not registered. It is not a framing failure.
type UnknownTypeError struct {
	MessageType uint32
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("message: unknown message_type %d", e.MessageType)
}

// IsUnknownType reports whether err is an *UnknownTypeError.
func IsUnknownType(err error) bool {
	var target *UnknownTypeError
	return errors.As(err, &target)
}

// New returns an empty message of messageType, or false when the type is not
// registered.
func New(messageType uint32) (Message, bool) {
	switch messageType {
	case schema.MsgHello:
		return &Hello{}, true
	case schema.MsgErrorMsg:
		return &ErrorMsg{}, true
	case schema.MsgPing:
		return &Ping{}, true
	case schema.MsgGetPeers:
		return &GetPeers{}, true
	case schema.MsgPeers:
		return &Peers{}, true
	case schema.MsgGetContacts:
		return &GetContacts{}, true
	case schema.MsgContact:
		return &Contact{}, true
	case schema.MsgSearchTx:
		return &SearchTransaction{}, true
	case schema.MsgGetAccount:
		return &GetAccount{}, true
	case schema.MsgAccount:
		return &Account{}, true
	case schema.MsgTransaction:
		return &Transaction{}, true
	case schema.MsgGetLedger:
		return &GetLedger{}, true
	case schema.MsgLedgerData:
		return &LedgerData{}, true
	case schema.MsgStatusChange:
		return &StatusChange{}, true
	case schema.MsgHaveTxSet:
		return &HaveTransactionSet{}, true
	case schema.MsgGetObjects:
		return &GetObjectByHash{}, true
	case schema.MsgObjects:
		return &ObjectByHash{}, true
	case schema.MsgIndexedObj:
		return &IndexedObject{}, true
	case schema.MsgProposeSet:
		return &ProposeSet{}, true
	case schema.MsgValidation:
		return &Validation{}, true
	case schema.MsgGetValidations:
		return &GetValidations{}, true
	default:
		return nil, false
	}
}

// Payload renders the TLV body of m.
func Payload(m Message) []byte {
	return tlv.EncodeFields(m.fields())
}

// Encode renders m as one complete wire frame. ErrorMsg frames carry
// frame.FlagIsError.
func Encode(seq uint64, m Message, limits frame.Limits) ([]byte, error) {
	return encodeFlags(seq, m, 0, limits)
}

// EncodeReply renders m as the answer to a request.
func EncodeReply(seq uint64, m Message, limits frame.Limits) ([]byte, error) {
	return encodeFlags(seq, m, frame.FlagIsResponse, limits)
}

// encodeFlags renders m with the given header flags.
func encodeFlags(seq uint64, m Message, flags uint32, limits frame.Limits) ([]byte, error) {
	if _, ok := m.(*ErrorMsg); ok {
		flags |= frame.FlagIsError
	}
	return frame.Encode(frame.Frame{
		Header: frame.Header{
			Sequence:    seq,
			MessageType: m.Type(),
			Flags:       flags,
		},
		Payload: Payload(m),
	}, limits)
}

// Decode parses a frame body into the typed message named by h.
//
// Unregistered types yield *UnknownTypeError. Any other error means the body
// is malformed for its declared type.
func Decode(h frame.Header, body []byte) (Message, error) {
	m, ok := New(h.MessageType)
	if !ok {
		return nil, &UnknownTypeError{MessageType: h.MessageType}
	}
	if _, isErr := m.(*ErrorMsg); h.Flags&frame.FlagIsError != 0 && !isErr {
		return nil, fmt.Errorf("%w: type %d flagged as error", ErrFlagMismatch, h.MessageType)
	}
	fields, err := tlv.DecodeFields(body)
	if err != nil {
		return nil, fmt.Errorf("message: decode type %d: %w", h.MessageType, err)
	}
	if err := schema.Validate(h.MessageType, fields); err != nil {
		return nil, err
	}
	r := &reader{Reader: tlv.NewReader(fields)}
	m.decode(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("message: decode type %d: %w", h.MessageType, err)
	}
	return m, nil
}

// reader adds hash handling on top of tlv.Reader, keeping the first error.
type reader struct {
	*tlv.Reader
	err error
}

func (r *reader) Err() error {
	if err := r.Reader.Err(); err != nil {
		return err
	}
	return r.err
}

func (r *reader) Hash(id uint16, required bool) Hash {
	b := r.Bytes(id, required)
	if b == nil || r.err != nil {
		return Hash{}
	}
	h, err := HashFromBytes(b)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", id, err)
	}
	return h
}

func hashField(id uint16, h Hash) tlv.Field {
	return tlv.Bytes(id, h[:])
}

func appendHash(fields []tlv.Field, id uint16, h Hash) []tlv.Field {
	if h.IsZero() {
		return fields
	}
	return append(fields, hashField(id, h))
}

func appendBytesList(fields []tlv.Field, id uint16, items [][]byte) []tlv.Field {
	for _, item := range items {
		fields = append(fields, tlv.Bytes(id, item))
	}
	return fields
}
