package device

import "os"

// HostIdentity supplies the local device name for vendor fallback. The
// surrounding application injects a platform-appropriate implementation;
// OSHostIdentity is the portable default.
type HostIdentity interface {
	LocalDeviceName() string
}

type OSHostIdentity struct{}

func (OSHostIdentity) LocalDeviceName() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

// StaticHostIdentity returns a fixed name. Useful in tests and for
// platforms where the app supplies a user-visible device name.
type StaticHostIdentity string

func (s StaticHostIdentity) LocalDeviceName() string { return string(s) }
