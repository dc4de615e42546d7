// Package tlv encodes ordered key/value record payloads: a two-byte field
// ID, a one-byte type, a four-byte length, then the value. Record types own
// their field IDs; this package owns only the field primitives.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const fieldHeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
	ErrInvalidValue     = errors.New("tlv: invalid field value")
)

// Field type octets.
const (
	TypeU8     uint8 = 1
	TypeU32    uint8 = 3
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one encoded or decoded field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
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

// AsU8 returns the value as uint8, checking type and length.
func (f Field) AsU8() (uint8, error) {
	if f.Type != TypeU8 {
		return 0, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 1 {
		return 0, fmt.Errorf("%w: field %d", ErrInvalidValue, f.ID)
	}
	return f.Value[0], nil
}

// AsU32 returns the value as uint32, checking type and length.
func (f Field) AsU32() (uint32, error) {
	if f.Type != TypeU32 {
		return 0, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("%w: field %d", ErrInvalidValue, f.ID)
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

// AsBool returns the value as bool. Only 0 and 1 are valid encodings.
func (f Field) AsBool() (bool, error) {
	if f.Type != TypeBool {
		return false, fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	if len(f.Value) != 1 || f.Value[0] > 1 {
		return false, fmt.Errorf("%w: field %d", ErrInvalidValue, f.ID)
	}
	return f.Value[0] == 1, nil
}

// AsString returns the value as string, checking type.
func (f Field) AsString() (string, error) {
	if f.Type != TypeString {
		return "", fmt.Errorf("%w: field %d", ErrTypeMismatch, f.ID)
	}
	return string(f.Value), nil
}

// Encode serializes fields in order.
func Encode(fields []Field) []byte {
	total := 0
	for _, f := range fields {
		total += fieldHeaderLen + len(f.Value)
	}
	out := make([]byte, 0, total)
	for _, f := range fields {
		out = append(out, encodeField(f)...)
	}
	return out
}

func encodeField(f Field) []byte {
	buf := make([]byte, fieldHeaderLen+len(f.Value))
	binary.BigEndian.PutUint16(buf[0:2], f.ID)
	buf[2] = f.Type
	binary.BigEndian.PutUint32(buf[3:7], uint32(len(f.Value)))
	copy(buf[7:], f.Value)
	return buf
}

// Decode parses the whole payload into fields, preserving order.
func Decode(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < fieldHeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += fieldHeaderLen
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

// Get returns the first field with the given ID.
func Get(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
