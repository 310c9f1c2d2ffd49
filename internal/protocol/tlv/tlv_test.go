package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsRoundTripPreservesUnknown(t *testing.T) {
	in := []Field{
		{ID: 1, Type: TypeString, Value: []byte("ledger-1")},
		{ID: 9999, Type: TypeBytes, Value: []byte{0xAA, 0xBB}}, // unknown field id
	}
	b := EncodeFields(in)
	out, err := DecodeFields(b)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
	if out[1].ID != 9999 || out[1].Type != TypeBytes || !bytes.Equal(out[1].Value, []byte{0xAA, 0xBB}) {
		t.Fatalf("unknown field not preserved: %+v", out[1])
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=string, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeString, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestReaderTypedValuesAndLists(t *testing.T) {
	fields := []Field{
		U32(1, 7),
		U64(2, 1<<40),
		Bool(3, true),
		String(4, "10.0.0.1:51235"),
		String(4, "10.0.0.2:51235"),
		Bytes(5, []byte{1}),
		Bytes(5, []byte{2}),
		U8(6, 9),
	}
	r := NewReader(fields)
	if v := r.U32(1, true); v != 7 {
		t.Fatalf("u32=%d", v)
	}
	if v := r.U64(2, true); v != 1<<40 {
		t.Fatalf("u64=%d", v)
	}
	if !r.Bool(3, true) {
		t.Fatalf("expected bool true")
	}
	if got := r.StringList(4); len(got) != 2 || got[1] != "10.0.0.2:51235" {
		t.Fatalf("unexpected string list: %v", got)
	}
	if got := r.BytesList(5); len(got) != 2 || got[0][0] != 1 {
		t.Fatalf("unexpected bytes list: %v", got)
	}
	if v := r.U8(6, true); v != 9 {
		t.Fatalf("u8=%d", v)
	}
	if v := r.U32(77, false); v != 0 || r.Err() != nil {
		t.Fatalf("optional missing field should be zero without error, v=%d err=%v", v, r.Err())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected reader err: %v", err)
	}
}

func TestReaderStickyErrors(t *testing.T) {
	r := NewReader([]Field{String(1, "x")})
	_ = r.U32(1, true)
	if r.Err() == nil {
		t.Fatalf("expected type mismatch error")
	}
	first := r.Err()
	_ = r.U64(99, true)
	if r.Err() != first {
		t.Fatalf("expected first error to be sticky")
	}

	r = NewReader(nil)
	_ = r.Bytes(4, true)
	if !errors.Is(r.Err(), ErrFieldMissing) {
		t.Fatalf("expected ErrFieldMissing, got %v", r.Err())
	}
}
