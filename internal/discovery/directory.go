package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/padlink/internal/role"
)

var (
	ErrDisabled     = errors.New("discovery: disabled, empty application identifier")
	ErrRoleMismatch = errors.New("discovery: role does not originate this advertisement")
	ErrResolve      = errors.New("discovery: endpoint resolve failed")
)

// Endpoint is a discovered or published peer. The address is the opaque
// transport handle; it is not retained past the resolve-connect step.
type Endpoint struct {
	DisplayName string
	Role        role.Role
	Addr        string
}

type EventKind int

const (
	EndpointAppeared EventKind = iota
	EndpointDisappeared
)

// Event is one browse observation.
type Event struct {
	Kind     EventKind
	Endpoint Endpoint
}

// Directory is the platform publish/browse/resolve primitive. Publish
// advertises this process under the type string for svcRole; Browse yields
// an effectively infinite event stream until ctx is done.
type Directory interface {
	Publish(svcRole role.Role, name string, port int) error
	Unpublish()
	Browse(ctx context.Context, svcRole role.Role) (<-chan Event, error)
}

// ServiceType derives the directory type string for an advertising role.
// Peripherals browse these; they advertise nothing themselves.
func ServiceType(appID string, r role.Role) string {
	if r.IsBridge() {
		return fmt.Sprintf("_%s_bridge._tcp.", appID)
	}
	return fmt.Sprintf("_%s_central._tcp.", appID)
}

// checkPublish applies the role gate shared by every Directory backend.
func checkPublish(state *role.State, svcRole role.Role) error {
	if !state.DiscoveryEnabled() {
		return ErrDisabled
	}
	if !svcRole.Advertises() {
		return ErrRoleMismatch
	}
	if svcRole != state.Role() {
		return ErrRoleMismatch
	}
	return nil
}
