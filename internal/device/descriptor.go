package device

import (
	"fmt"

	"github.com/danmuck/padlink/internal/logging"
)

// UnknownVendor is the terminal fallback when neither the caller nor the
// host supplies a vendor name.
const UnknownVendor = "Unknown"

// Profile is the input-element profile a controller exposes.
type Profile uint8

const (
	ProfileStandard Profile = iota
	ProfileExtended
	ProfileMicro
)

func (p Profile) Valid() bool { return p <= ProfileMicro }

func (p Profile) String() string {
	switch p {
	case ProfileStandard:
		return "standard"
	case ProfileExtended:
		return "extended"
	case ProfileMicro:
		return "micro"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// ControllerKind distinguishes the physical nature of a controller.
// Virtual controllers are software-rendered on the peripheral device.
type ControllerKind uint8

const (
	ControllerVirtual ControllerKind = iota
	ControllerGamepad
	ControllerRemote
)

func (k ControllerKind) Valid() bool { return k <= ControllerRemote }

func (k ControllerKind) String() string {
	switch k {
	case ControllerVirtual:
		return "virtual"
	case ControllerGamepad:
		return "gamepad"
	case ControllerRemote:
		return "remote"
	default:
		return fmt.Sprintf("controller(%d)", uint8(k))
	}
}

// Descriptor identifies one controller, hardware or software. Treated as
// immutable after construction; bridges forward a Duplicate, never the
// original, so the upstream copy survives local teardown.
type Descriptor struct {
	UID            string
	VendorName     string
	Attached       bool
	Profile        Profile
	Controller     ControllerKind
	SupportsMotion bool
}

// Resolve fills the blanks in a partially specified descriptor. An empty
// UID is looked up in (or generated into) the store so a software
// controller keeps its identity across process restarts; an empty vendor
// falls back to the host device name, then UnknownVendor.
func Resolve(d Descriptor, store UIDStore, host HostIdentity) (Descriptor, error) {
	if d.UID == "" {
		uid, err := store.GetOrCreate(deviceUIDKey, NewUID)
		if err != nil {
			return Descriptor{}, fmt.Errorf("device: resolve uid: %w", err)
		}
		d.UID = uid
	}
	if d.VendorName == "" {
		d.VendorName = host.LocalDeviceName()
		if d.VendorName == "" {
			d.VendorName = UnknownVendor
		}
	}
	if d.Profile == ProfileMicro && d.Controller == ControllerVirtual {
		log := logging.Component("device")
		log.Warn().Str("uid", d.UID).Msg("micro profile unsupported for virtual controllers")
	}
	return d, nil
}

// Duplicate returns a value copy sharing no mutable state with the
// original.
func (d Descriptor) Duplicate() Descriptor {
	return d
}
