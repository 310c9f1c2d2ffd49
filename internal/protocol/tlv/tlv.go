package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrFieldMissing     = errors.New("tlv: field missing")
)

// Type IDs from tlv contract.
const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func EncodeField(f Field) []byte {
	buf := make([]byte, HeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
	copy(buf[7:], f.Value)
	return buf
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint32(len(payload)-i) < l {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		out = append(out, EncodeField(f)...)
	}
	return out
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// GetAll returns every field carrying id, in wire order. Repeated fields
// encode lists.
func GetAll(fields []Field, id uint16) []Field {
	var out []Field
	for _, f := range fields {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

func Bytes(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: TypeBytes, Value: buf}
}

func U32FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("tlv: invalid u32 length: %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// Reader pulls typed values out of a decoded field list. The first error is
// sticky so callers can read every field and check Err once.
type Reader struct {
	fields []Field
	err    error
}

func NewReader(fields []Field) *Reader {
	return &Reader{fields: fields}
}

func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) lookup(id uint16, typ uint8, required bool) (Field, bool) {
	if r.err != nil {
		return Field{}, false
	}
	f, ok := GetField(r.fields, id)
	if !ok {
		if required {
			r.err = fmt.Errorf("%w: %d", ErrFieldMissing, id)
		}
		return Field{}, false
	}
	if err := MustType(f, typ); err != nil {
		r.err = err
		return Field{}, false
	}
	return f, true
}

func (r *Reader) U8(id uint16, required bool) uint8 {
	f, ok := r.lookup(id, TypeU8, required)
	if !ok {
		return 0
	}
	if len(f.Value) != 1 {
		r.err = fmt.Errorf("tlv: invalid u8 length: %d", len(f.Value))
		return 0
	}
	return f.Value[0]
}

func (r *Reader) U32(id uint16, required bool) uint32 {
	f, ok := r.lookup(id, TypeU32, required)
	if !ok {
		return 0
	}
	v, err := U32FromBytes(f.Value)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *Reader) U64(id uint16, required bool) uint64 {
	f, ok := r.lookup(id, TypeU64, required)
	if !ok {
		return 0
	}
	if len(f.Value) != 8 {
		r.err = fmt.Errorf("tlv: invalid u64 length: %d", len(f.Value))
		return 0
	}
	return binary.BigEndian.Uint64(f.Value)
}

func (r *Reader) Bool(id uint16, required bool) bool {
	f, ok := r.lookup(id, TypeBool, required)
	if !ok {
		return false
	}
	if len(f.Value) != 1 || f.Value[0] > 1 {
		r.err = fmt.Errorf("tlv: invalid bool value for field %d", id)
		return false
	}
	return f.Value[0] == 1
}

func (r *Reader) String(id uint16, required bool) string {
	f, ok := r.lookup(id, TypeString, required)
	if !ok {
		return ""
	}
	return string(f.Value)
}

func (r *Reader) Bytes(id uint16, required bool) []byte {
	f, ok := r.lookup(id, TypeBytes, required)
	if !ok {
		return nil
	}
	return f.Value
}

// BytesList returns all repeated bytes fields with id.
func (r *Reader) BytesList(id uint16) [][]byte {
	if r.err != nil {
		return nil
	}
	var out [][]byte
	for _, f := range GetAll(r.fields, id) {
		if err := MustType(f, TypeBytes); err != nil {
			r.err = err
			return nil
		}
		out = append(out, f.Value)
	}
	return out
}

// StringList returns all repeated string fields with id.
func (r *Reader) StringList(id uint16) []string {
	if r.err != nil {
		return nil
	}
	var out []string
	for _, f := range GetAll(r.fields, id) {
		if err := MustType(f, TypeString); err != nil {
			r.err = err
			return nil
		}
		out = append(out, string(f.Value))
	}
	return out
}
