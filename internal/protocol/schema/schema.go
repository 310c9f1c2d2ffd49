package schema

import (
	"fmt"

	"github.com/danmuck/ledgerlink/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs from the peer wire contract.
const (
	MsgHello          uint32 = 1
	MsgErrorMsg       uint32 = 2
	MsgPing           uint32 = 3
	MsgGetPeers       uint32 = 10
	MsgPeers          uint32 = 11
	MsgGetContacts    uint32 = 12
	MsgContact        uint32 = 13
	MsgSearchTx       uint32 = 20
	MsgGetAccount     uint32 = 21
	MsgAccount        uint32 = 22
	MsgTransaction    uint32 = 30
	MsgGetLedger      uint32 = 40
	MsgLedgerData     uint32 = 41
	MsgStatusChange   uint32 = 42
	MsgHaveTxSet      uint32 = 43
	MsgGetObjects     uint32 = 50
	MsgObjects        uint32 = 51
	MsgIndexedObj     uint32 = 52
	MsgProposeSet     uint32 = 60
	MsgValidation     uint32 = 61
	MsgGetValidations uint32 = 62
)

// Field IDs from the peer wire contract.
const (
	FieldLedgerHash     uint16 = 1
	FieldLedgerSeq      uint16 = 2
	FieldPreviousLedger uint16 = 3
	FieldNodePublic     uint16 = 4
	FieldSignature      uint16 = 5
	FieldNetTime        uint16 = 6
	FieldHash           uint16 = 7
	FieldStatus         uint16 = 8
	FieldData           uint16 = 9

	FieldProtoVersion    uint16 = 100
	FieldProtoVersionMin uint16 = 101
	FieldNodeProof       uint16 = 102
	FieldListenPort      uint16 = 103
	FieldServices        uint16 = 104
	FieldSessionCookie   uint16 = 105

	FieldErrorCode    uint16 = 200
	FieldErrorMessage uint16 = 201
	FieldPingType     uint16 = 210
	FieldPingSeq      uint16 = 211
	FieldPingTime     uint16 = 212

	FieldPeerLimit uint16 = 300
	FieldEndpoint  uint16 = 301
	FieldScore     uint16 = 302

	FieldAccount uint16 = 400

	FieldRawTx uint16 = 500

	FieldItemType uint16 = 600
	FieldNewEvent uint16 = 601
	FieldNodeID   uint16 = 602

	FieldObjectType uint16 = 700
	FieldQuery      uint16 = 701
	FieldCookie     uint16 = 702
	FieldIndex      uint16 = 703

	FieldProposeSeq uint16 = 800
	FieldTxSetHash  uint16 = 801
	FieldCloseTime  uint16 = 802
	FieldValidation uint16 = 803
)

type Requirement struct {
	ID   uint16
	Type uint8
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgHello: {
		{FieldProtoVersion, tlv.TypeU32},
		{FieldProtoVersionMin, tlv.TypeU32},
		{FieldNodePublic, tlv.TypeBytes},
		{FieldNodeProof, tlv.TypeBytes},
		{FieldSessionCookie, tlv.TypeBytes},
	},
	MsgErrorMsg: {
		{FieldErrorCode, tlv.TypeU32},
	},
	MsgPing: {
		{FieldPingType, tlv.TypeU8},
	},
	MsgGetPeers:    {},
	MsgPeers:       {},
	MsgGetContacts: {},
	MsgContact: {
		{FieldNodePublic, tlv.TypeBytes},
		{FieldEndpoint, tlv.TypeString},
	},
	MsgSearchTx: {
		{FieldAccount, tlv.TypeBytes},
	},
	MsgGetAccount: {
		{FieldAccount, tlv.TypeBytes},
	},
	MsgAccount: {
		{FieldAccount, tlv.TypeBytes},
		{FieldData, tlv.TypeBytes},
	},
	MsgTransaction: {
		{FieldRawTx, tlv.TypeBytes},
	},
	MsgGetLedger: {
		{FieldItemType, tlv.TypeU8},
	},
	MsgLedgerData: {
		{FieldLedgerHash, tlv.TypeBytes},
		{FieldItemType, tlv.TypeU8},
	},
	MsgStatusChange: {
		{FieldStatus, tlv.TypeU8},
	},
	MsgHaveTxSet: {
		{FieldStatus, tlv.TypeU8},
		{FieldHash, tlv.TypeBytes},
	},
	MsgGetObjects: {
		{FieldObjectType, tlv.TypeU8},
	},
	MsgObjects: {
		{FieldObjectType, tlv.TypeU8},
	},
	MsgIndexedObj: {
		{FieldHash, tlv.TypeBytes},
		{FieldData, tlv.TypeBytes},
	},
	MsgProposeSet: {
		{FieldProposeSeq, tlv.TypeU32},
		{FieldTxSetHash, tlv.TypeBytes},
		{FieldPreviousLedger, tlv.TypeBytes},
		{FieldCloseTime, tlv.TypeU64},
		{FieldNodePublic, tlv.TypeBytes},
		{FieldSignature, tlv.TypeBytes},
	},
	MsgValidation: {
		{FieldValidation, tlv.TypeBytes},
	},
	MsgGetValidations: {
		{FieldLedgerHash, tlv.TypeBytes},
	},
}

// Known reports whether messageType has a registered field contract.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// Types returns every registered message type.
func Types() []uint32 {
	out := make([]uint32, 0, len(requirements))
	for mt := range requirements {
		out = append(out, mt)
	}
	return out
}

// Validate enforces required fields and required field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Debug().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema.Validate missing field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
