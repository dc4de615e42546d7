package discovery

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/role"
)

// MemoryHub is an in-process directory fabric. Every MemoryDirectory
// attached to the same hub sees the same advertisements. Used by tests and
// single-process setups.
type MemoryHub struct {
	mu       sync.Mutex
	entries  map[string]Endpoint // keyed by service type + display name
	types    map[string]string   // entry key -> service type
	watchers map[string][]chan Event
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		entries:  make(map[string]Endpoint),
		types:    make(map[string]string),
		watchers: make(map[string][]chan Event),
	}
}

func (h *MemoryHub) publish(serviceType string, ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := serviceType + "/" + ep.DisplayName
	h.entries[key] = ep
	h.types[key] = serviceType
	for _, w := range h.watchers[serviceType] {
		w <- Event{Kind: EndpointAppeared, Endpoint: ep}
	}
}

func (h *MemoryHub) unpublish(serviceType, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := serviceType + "/" + name
	ep, ok := h.entries[key]
	if !ok {
		return
	}
	delete(h.entries, key)
	delete(h.types, key)
	for _, w := range h.watchers[serviceType] {
		w <- Event{Kind: EndpointDisappeared, Endpoint: ep}
	}
}

func (h *MemoryHub) watch(ctx context.Context, serviceType string) <-chan Event {
	h.mu.Lock()
	ch := make(chan Event, 16)
	h.watchers[serviceType] = append(h.watchers[serviceType], ch)
	for key, ep := range h.entries {
		if h.types[key] == serviceType {
			ch <- Event{Kind: EndpointAppeared, Endpoint: ep}
		}
	}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.watchers[serviceType]
		for i, w := range list {
			if w == ch {
				h.watchers[serviceType] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}()
	return ch
}

// MemoryDirectory is one process's view of a MemoryHub.
type MemoryDirectory struct {
	hub   *MemoryHub
	state *role.State
	log   zerolog.Logger

	mu        sync.Mutex
	published string // service type of the active advertisement
	name      string
	host      string
}

// Directory binds a role state to the hub. host is what browsers will see
// as the endpoint host for anything this directory publishes; the port
// comes from each Publish call.
func (h *MemoryHub) Directory(state *role.State, host string) *MemoryDirectory {
	return &MemoryDirectory{
		hub:   h,
		state: state,
		host:  host,
		log:   logging.Component("discovery"),
	}
}

func (d *MemoryDirectory) Publish(svcRole role.Role, name string, port int) error {
	if err := checkPublish(d.state, svcRole); err != nil {
		d.log.Error().Err(err).Stringer("role", svcRole).Msg("publish refused")
		return err
	}
	serviceType := ServiceType(d.state.AppID(), svcRole)
	d.mu.Lock()
	d.published = serviceType
	d.name = name
	d.mu.Unlock()
	addr := net.JoinHostPort(d.host, strconv.Itoa(port))
	d.hub.publish(serviceType, Endpoint{DisplayName: name, Role: svcRole, Addr: addr})
	return nil
}

func (d *MemoryDirectory) Unpublish() {
	d.mu.Lock()
	serviceType, name := d.published, d.name
	d.published, d.name = "", ""
	d.mu.Unlock()
	if serviceType == "" {
		d.log.Error().Msg("unpublish without active advertisement")
		return
	}
	d.hub.unpublish(serviceType, name)
}

func (d *MemoryDirectory) Browse(ctx context.Context, svcRole role.Role) (<-chan Event, error) {
	if !d.state.DiscoveryEnabled() {
		return nil, ErrDisabled
	}
	return d.hub.watch(ctx, ServiceType(d.state.AppID(), svcRole)), nil
}
