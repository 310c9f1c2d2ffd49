package message

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/ledgerlink/internal/protocol/frame"
	"github.com/danmuck/ledgerlink/internal/protocol/schema"
	"github.com/danmuck/ledgerlink/internal/protocol/tlv"
	"github.com/danmuck/ledgerlink/internal/testutil/testlog"
)

func hashOf(b byte) Hash {
	var h Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func samples() []Message {
	return []Message{
		&Hello{
			ProtoVersion:    2,
			ProtoVersionMin: 1,
			NodePublic:      bytes.Repeat([]byte{1}, 32),
			NodeProof:       bytes.Repeat([]byte{2}, 64),
			ClosedLedger:    hashOf(3),
			PreviousLedger:  hashOf(4),
			LedgerSeq:       9,
			NetTime:         1700000000,
			ListenPort:      51235,
			Services:        ServiceLedgers | ServiceTransactions,
			SessionCookie:   bytes.Repeat([]byte{5}, 32),
		},
		&ErrorMsg{Code: 7, Message: "busy"},
		&Ping{Kind: PingReply, Seq: 3, NetTime: 44},
		&GetPeers{Limit: 16},
		&Peers{Endpoints: []string{"10.0.0.1:51235", "10.0.0.2:51235"}},
		&GetContacts{NodeIDs: [][]byte{{1, 2}}},
		&Contact{NodePublic: []byte{9, 9}, Endpoint: "10.0.0.3:51235", Score: 4},
		&SearchTransaction{Account: []byte("acct"), LedgerSeq: 12},
		&GetAccount{Account: []byte("acct"), Ledger: hashOf(6)},
		&Account{Account: []byte("acct"), Data: []byte("state"), Ledger: hashOf(6)},
		&Transaction{Raw: []byte("signed-tx")},
		&GetLedger{ItemType: ItemTxNodes, Ledger: hashOf(7), LedgerSeq: 8, NodeIDs: [][]byte{{0}, {1}}},
		&LedgerData{Ledger: hashOf(7), LedgerSeq: 8, ItemType: ItemBase, PreviousLedger: hashOf(6), TxSetHash: hashOf(5), CloseTime: 99, Nodes: [][]byte{[]byte("hdr")}},
		&StatusChange{Status: StatusValidating, Event: EventAcceptedLedger, LedgerSeq: 8, Ledger: hashOf(7), PreviousLedger: hashOf(6), NetTime: 10},
		&HaveTransactionSet{Status: TxSetHave, Hash: hashOf(5)},
		&GetObjectByHash{ObjectType: ObjectTransaction, Cookie: 3, Ledger: hashOf(7), Hashes: [][]byte{{1}}},
		&ObjectByHash{ObjectType: ObjectTransaction, Cookie: 3, Hashes: [][]byte{{1}}, Data: [][]byte{[]byte("obj")}},
		&IndexedObject{Hash: hashOf(8), Data: []byte("obj"), Index: []byte{1}},
		&ProposeSet{ProposeSeq: 1, TxSetHash: hashOf(5), PreviousLedger: hashOf(7), CloseTime: 100, NodePublic: []byte{1}, Signature: []byte{2}},
		&Validation{Validation: []byte("signed-validation")},
		&GetValidations{Ledger: hashOf(7)},
	}
}

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	b, err := Encode(11, m, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("encode %T: %v", m, err)
	}
	f, err := frame.ReadFrame(bytes.NewReader(b), frame.DefaultLimits())
	if err != nil {
		t.Fatalf("read frame %T: %v", m, err)
	}
	if f.Header.Sequence != 11 || f.Header.MessageType != m.Type() {
		t.Fatalf("header mismatch for %T: %+v", m, f.Header)
	}
	out, err := Decode(f.Header, f.Payload)
	if err != nil {
		t.Fatalf("decode %T: %v", m, err)
	}
	return out
}

func TestEveryRegisteredTypeRoundTrips(t *testing.T) {
	testlog.Start(t)
	seen := make(map[uint32]bool)
	for _, m := range samples() {
		out := roundTrip(t, m)
		if !reflect.DeepEqual(out, m) {
			t.Fatalf("round trip mismatch for %T:\n got=%+v\nwant=%+v", m, out, m)
		}
		seen[m.Type()] = true
	}
	for _, mt := range schema.Types() {
		if !seen[mt] {
			t.Fatalf("message type %d has no sample", mt)
		}
		m, ok := New(mt)
		if !ok || m.Type() != mt {
			t.Fatalf("New(%d) returned %T ok=%v", mt, m, ok)
		}
		if m.Class() == 0 {
			t.Fatalf("message type %d has no class", mt)
		}
	}
}

func TestClassAssignments(t *testing.T) {
	testlog.Start(t)
	cases := map[Message]Class{
		&Hello{}:        ClassHandshake,
		&Ping{}:         ClassUtility,
		&ErrorMsg{}:     ClassUtility,
		&ProposeSet{}:   ClassConsensus,
		&Validation{}:   ClassConsensus,
		&Transaction{}:  ClassEstablished,
		&StatusChange{}: ClassEstablished,
	}
	for m, want := range cases {
		if got := m.Class(); got != want {
			t.Fatalf("%T class=%s want %s", m, got, want)
		}
	}
}

func TestDecodeUnknownTypeIsNotFatal(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(frame.Header{MessageType: 999}, nil)
	var unknown *UnknownTypeError
	if !errors.As(err, &unknown) || unknown.MessageType != 999 {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
	if !IsUnknownType(err) {
		t.Fatalf("IsUnknownType should match")
	}
}

func readHeader(t *testing.T, b []byte) frame.Header {
	t.Helper()
	h, err := frame.DecodeHeader(b[:frame.HeaderLen])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	return h
}

func TestEncodeSetsHeaderFlags(t *testing.T) {
	testlog.Start(t)
	limits := frame.DefaultLimits()

	b, err := Encode(1, &Transaction{Raw: []byte("tx")}, limits)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if h := readHeader(t, b); h.Flags != 0 {
		t.Fatalf("plain message flags=%#x want 0", h.Flags)
	}

	b, err = Encode(2, &ErrorMsg{Code: 1, Message: "bad"}, limits)
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	if h := readHeader(t, b); h.Flags != frame.FlagIsError {
		t.Fatalf("error message flags=%#x want %#x", h.Flags, frame.FlagIsError)
	}

	b, err = EncodeReply(3, &Peers{Endpoints: []string{"10.0.0.1:51235"}}, limits)
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	if h := readHeader(t, b); h.Flags != frame.FlagIsResponse {
		t.Fatalf("reply flags=%#x want %#x", h.Flags, frame.FlagIsResponse)
	}

	b, err = EncodeReply(4, &ErrorMsg{Code: 2}, limits)
	if err != nil {
		t.Fatalf("encode error reply: %v", err)
	}
	if h := readHeader(t, b); h.Flags != frame.FlagIsResponse|frame.FlagIsError {
		t.Fatalf("error reply flags=%#x", h.Flags)
	}
}

func TestDecodeRejectsErrorFlagOnOtherTypes(t *testing.T) {
	testlog.Start(t)
	h := frame.Header{MessageType: schema.MsgTransaction, Flags: frame.FlagIsError}
	_, err := Decode(h, Payload(&Transaction{Raw: []byte("tx")}))
	if !errors.Is(err, ErrFlagMismatch) {
		t.Fatalf("expected ErrFlagMismatch, got %v", err)
	}

	h = frame.Header{MessageType: schema.MsgErrorMsg, Flags: frame.FlagIsError}
	if _, err := Decode(h, Payload(&ErrorMsg{Code: 3})); err != nil {
		t.Fatalf("flagged error message: %v", err)
	}
}

func TestDecodeRejectsMissingRequiredField(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(frame.Header{MessageType: schema.MsgTransaction}, nil)
	var verr schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected schema.ValidationError, got %v", err)
	}
	if IsUnknownType(err) {
		t.Fatalf("missing field must not be reported as unknown type")
	}
}

func TestDecodeRejectsShortHash(t *testing.T) {
	testlog.Start(t)
	body := tlv.EncodeFields([]tlv.Field{tlv.Bytes(schema.FieldLedgerHash, []byte{1, 2, 3})})
	_, err := Decode(frame.Header{MessageType: schema.MsgGetValidations}, body)
	if !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(frame.Header{MessageType: schema.MsgPing}, []byte{0, 1})
	if !errors.Is(err, tlv.ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestProposeSigningDataExcludesSignature(t *testing.T) {
	testlog.Start(t)
	p := &ProposeSet{ProposeSeq: 1, TxSetHash: hashOf(1), PreviousLedger: hashOf(2), CloseTime: 3, NodePublic: []byte{4}}
	before := p.SigningData()
	p.Signature = []byte("sig")
	if !bytes.Equal(before, p.SigningData()) {
		t.Fatalf("signing data must not depend on the signature")
	}
}

func TestParseHash(t *testing.T) {
	testlog.Start(t)
	h := hashOf(0xab)
	got, err := ParseHash(h.String())
	if err != nil || got != h {
		t.Fatalf("parse hash got=%s err=%v", got, err)
	}
	if _, err := ParseHash("abcd"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if h.Short() != "abababab" {
		t.Fatalf("unexpected short form %q", h.Short())
	}
}
