package device

import (
	"errors"
	"fmt"

	"github.com/danmuck/padlink/internal/protocol/tlv"
)

// ErrDecode reports a malformed descriptor record: a missing required
// field or an enum code outside the known range.
var ErrDecode = errors.New("device: malformed descriptor")

// Descriptor field IDs. Order on the wire follows ID order; unknown higher
// IDs are skipped on decode for forward compatibility.
const (
	fieldDeviceUID        uint16 = 1
	fieldVendorName       uint16 = 2
	fieldAttachedToDevice uint16 = 3
	fieldProfileType      uint16 = 4
	fieldControllerType   uint16 = 5
	fieldSupportsMotion   uint16 = 6
)

// Encode serializes the descriptor as ordered tlv fields.
func (d Descriptor) Encode() []byte {
	return tlv.Encode([]tlv.Field{
		tlv.String(fieldDeviceUID, d.UID),
		tlv.String(fieldVendorName, d.VendorName),
		tlv.Bool(fieldAttachedToDevice, d.Attached),
		tlv.U8(fieldProfileType, uint8(d.Profile)),
		tlv.U8(fieldControllerType, uint8(d.Controller)),
		tlv.Bool(fieldSupportsMotion, d.SupportsMotion),
	})
}

// DecodeDescriptor parses one descriptor record. Every field is required.
func DecodeDescriptor(payload []byte) (Descriptor, error) {
	fields, err := tlv.Decode(payload)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	var d Descriptor

	uid, err := requireString(fields, fieldDeviceUID)
	if err != nil {
		return Descriptor{}, err
	}
	d.UID = uid

	vendor, err := requireString(fields, fieldVendorName)
	if err != nil {
		return Descriptor{}, err
	}
	d.VendorName = vendor

	attached, err := requireBool(fields, fieldAttachedToDevice)
	if err != nil {
		return Descriptor{}, err
	}
	d.Attached = attached

	profile, err := requireU8(fields, fieldProfileType)
	if err != nil {
		return Descriptor{}, err
	}
	d.Profile = Profile(profile)
	if !d.Profile.Valid() {
		return Descriptor{}, fmt.Errorf("%w: profile code %d out of range", ErrDecode, profile)
	}

	kind, err := requireU8(fields, fieldControllerType)
	if err != nil {
		return Descriptor{}, err
	}
	d.Controller = ControllerKind(kind)
	if !d.Controller.Valid() {
		return Descriptor{}, fmt.Errorf("%w: controller code %d out of range", ErrDecode, kind)
	}

	motion, err := requireBool(fields, fieldSupportsMotion)
	if err != nil {
		return Descriptor{}, err
	}
	d.SupportsMotion = motion

	return d, nil
}

func requireString(fields []tlv.Field, id uint16) (string, error) {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return "", fmt.Errorf("%w: missing field %d", ErrDecode, id)
	}
	v, err := f.AsString()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

func requireBool(fields []tlv.Field, id uint16) (bool, error) {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return false, fmt.Errorf("%w: missing field %d", ErrDecode, id)
	}
	v, err := f.AsBool()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}

func requireU8(fields []tlv.Field, id uint16) (uint8, error) {
	f, ok := tlv.Get(fields, id)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %d", ErrDecode, id)
	}
	v, err := f.AsU8()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return v, nil
}
