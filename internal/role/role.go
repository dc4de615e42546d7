package role

import "fmt"

// Role selects which side of the link this process plays. Exactly one role
// per process; sessions capture it at creation.
type Role int

const (
	Central Role = iota
	Peripheral
	Bridge
	EnhancementBridge
)

func (r Role) String() string {
	switch r {
	case Central:
		return "central"
	case Peripheral:
		return "peripheral"
	case Bridge:
		return "bridge"
	case EnhancementBridge:
		return "enhancement-bridge"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Parse maps a config string onto a Role.
func Parse(raw string) (Role, error) {
	switch raw {
	case "central":
		return Central, nil
	case "peripheral":
		return Peripheral, nil
	case "bridge":
		return Bridge, nil
	case "enhancement-bridge", "enhancement_bridge":
		return EnhancementBridge, nil
	default:
		return Central, fmt.Errorf("role: unknown role %q", raw)
	}
}

// Advertises reports whether this role publishes a directory entry.
// Centrals and bridges advertise; peripherals browse.
func (r Role) Advertises() bool {
	return r == Central || r == Bridge || r == EnhancementBridge
}

// IsBridge reports whether the role relays peripheral input upstream.
func (r Role) IsBridge() bool {
	return r == Bridge || r == EnhancementBridge
}
