package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/role"
)

const mdnsDomain = "local."

// MDNSDirectory advertises and browses over multicast DNS.
type MDNSDirectory struct {
	state *role.State
	log   zerolog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

func NewMDNSDirectory(state *role.State) *MDNSDirectory {
	return &MDNSDirectory{
		state: state,
		log:   logging.Component("discovery"),
	}
}

func (d *MDNSDirectory) Publish(svcRole role.Role, name string, port int) error {
	if err := checkPublish(d.state, svcRole); err != nil {
		d.log.Error().Err(err).Stringer("role", svcRole).Msg("publish refused")
		return err
	}

	serviceType := ServiceType(d.state.AppID(), svcRole)
	server, err := zeroconf.Register(name, trimType(serviceType), mdnsDomain, port, nil, nil)
	if err != nil {
		return fmt.Errorf("discovery: register %s: %w", serviceType, err)
	}

	d.mu.Lock()
	if d.server != nil {
		d.server.Shutdown()
	}
	d.server = server
	d.mu.Unlock()

	d.log.Info().Str("type", serviceType).Str("name", name).Int("port", port).Msg("published")
	return nil
}

func (d *MDNSDirectory) Unpublish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.server == nil {
		d.log.Error().Msg("unpublish without active advertisement")
		return
	}
	d.server.Shutdown()
	d.server = nil
	d.log.Info().Msg("unpublished")
}

// Browse resolves endpoints of svcRole's type as they appear. One endpoint
// failing to resolve is logged and skipped; the stream continues.
func (d *MDNSDirectory) Browse(ctx context.Context, svcRole role.Role) (<-chan Event, error) {
	if !d.state.DiscoveryEnabled() {
		return nil, ErrDisabled
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}

	serviceType := ServiceType(d.state.AppID(), svcRole)
	entries := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, trimType(serviceType), mdnsDomain, entries); err != nil {
		return nil, fmt.Errorf("discovery: browse %s: %w", serviceType, err)
	}

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		for entry := range entries {
			ep, err := entryEndpoint(entry, svcRole)
			if err != nil {
				d.log.Warn().Err(err).Str("instance", entry.Instance).Msg("skipping endpoint")
				continue
			}
			kind := EndpointAppeared
			if entry.TTL == 0 {
				kind = EndpointDisappeared
			}
			select {
			case events <- Event{Kind: kind, Endpoint: ep}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func entryEndpoint(entry *zeroconf.ServiceEntry, svcRole role.Role) (Endpoint, error) {
	var ip net.IP
	switch {
	case len(entry.AddrIPv4) > 0:
		ip = entry.AddrIPv4[0]
	case len(entry.AddrIPv6) > 0:
		ip = entry.AddrIPv6[0]
	default:
		return Endpoint{}, fmt.Errorf("%w: %s has no address", ErrResolve, entry.Instance)
	}
	if entry.Port == 0 {
		return Endpoint{}, fmt.Errorf("%w: %s has no port", ErrResolve, entry.Instance)
	}
	return Endpoint{
		DisplayName: entry.Instance,
		Role:        svcRole,
		Addr:        net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port)),
	}, nil
}

// trimType drops the trailing dot for the resolver library; the canonical
// type string keeps it.
func trimType(serviceType string) string {
	return strings.TrimSuffix(serviceType, ".")
}
