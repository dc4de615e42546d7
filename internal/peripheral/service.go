// Package peripheral runs the input-producer side: browse, connect both
// channels, hand identity over, transmit.
package peripheral

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/discovery"
	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/observability"
	"github.com/danmuck/padlink/internal/relay"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/sessions"
	"github.com/danmuck/padlink/internal/transport"
)

var (
	ErrAppIDRequired = errors.New("peripheral: app identifier required")
	ErrNotConnected  = errors.New("peripheral: no active session")
)

type ServiceConfig struct {
	AppID string
	Name  string

	// StoreDir holds the persisted device UID.
	StoreDir string

	// TargetBridge browses for bridge advertisements instead of centrals.
	TargetBridge bool

	LoggingMode    bool
	MatchDeadline  time.Duration
	TransmitBuffer int
	ConnectTimeout time.Duration

	// Descriptor may be partial; UID and vendor are resolved at startup.
	Descriptor device.Descriptor

	Backoff sessions.BackoffConfig

	// Test seams. Nil selects mDNS, the file store, and the OS hostname.
	Directory discovery.Directory
	Store     device.UIDStore
	Host      device.HostIdentity
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:           "padlink-pad",
		StoreDir:       "data",
		MatchDeadline:  role.DefaultMatchDeadline,
		TransmitBuffer: role.DefaultTransmitBuffer,
		ConnectTimeout: 5 * time.Second,
		Backoff:        sessions.DefaultBackoffConfig(),
		Descriptor: device.Descriptor{
			Attached:   true,
			Profile:    device.ProfileExtended,
			Controller: device.ControllerVirtual,
		},
	}
}

// Service maintains one outbound session at a time and exposes the two
// transmit channels.
type Service struct {
	cfg   ServiceConfig
	state *role.State
	log   zerolog.Logger
	rng   *rand.Rand

	mu      sync.Mutex
	current *sessions.Session
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.AppID == "" {
		return nil, ErrAppIDRequired
	}
	state, err := role.Init(role.Peripheral, cfg.AppID,
		role.WithLoggingMode(cfg.LoggingMode),
		role.WithMatchDeadline(cfg.MatchDeadline),
		role.WithTransmitBuffer(cfg.TransmitBuffer),
	)
	if err != nil {
		return nil, err
	}
	return &Service{
		cfg:   cfg,
		state: state,
		log:   logging.Component("peripheral"),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Service) State() *role.State { return s.state }

// Session returns the active session, or nil.
func (s *Service) Session() *sessions.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SendControl transmits one input payload on the primary channel.
func (s *Service) SendControl(payload []byte) error {
	return s.send(transport.ChannelPrimary, payload)
}

// SendBulk transmits one payload on the secondary channel.
func (s *Service) SendBulk(payload []byte) error {
	return s.send(transport.ChannelSecondary, payload)
}

func (s *Service) send(ch transport.Channel, payload []byte) error {
	session := s.Session()
	if session == nil {
		return ErrNotConnected
	}
	if err := session.Send(ch, payload); err != nil {
		return err
	}
	observability.FrameSent(ch.String())
	return nil
}

// Run browses for a complementary endpoint, connects, and reconnects with
// backoff until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	store := s.cfg.Store
	if store == nil {
		store = device.NewFileStore(s.cfg.StoreDir)
	}
	host := s.cfg.Host
	if host == nil {
		host = device.OSHostIdentity{}
	}
	desc, err := device.Resolve(s.cfg.Descriptor, store, host)
	if err != nil {
		return err
	}
	if desc.VendorName == device.UnknownVendor && s.cfg.Name != "" {
		desc.VendorName = s.cfg.Name
	}

	dir := s.cfg.Directory
	if dir == nil {
		dir = discovery.NewMDNSDirectory(s.state)
	}
	target := role.Central
	if s.cfg.TargetBridge {
		target = role.Bridge
	}
	events, err := dir.Browse(ctx, target)
	if err != nil {
		return err
	}

	router := relay.NewRouter(s.state, nil)
	tun := s.state.Tunables()
	dialer := transport.Dialer{Timeout: s.cfg.ConnectTimeout, Sampling: tun.LoggingMode}

	attempt := 0
	var last *discovery.Endpoint
	for {
		endpoint, ok := s.nextEndpoint(ctx, events, last)
		if !ok {
			return nil
		}
		last = &endpoint

		conns, err := dialer.Open(ctx, endpoint.Addr)
		if err != nil {
			attempt++
			s.log.Warn().Err(err).Str("endpoint", endpoint.DisplayName).Int("attempt", attempt).Msg("connect failed")
			if !s.sleepBackoff(ctx, attempt) {
				return nil
			}
			continue
		}
		session, err := sessions.Initiate(conns, endpoint.Addr, desc.Duplicate(), s.state)
		if err != nil {
			attempt++
			s.log.Warn().Err(err).Str("endpoint", endpoint.DisplayName).Msg("handshake failed")
			conns.Close()
			if !s.sleepBackoff(ctx, attempt) {
				return nil
			}
			continue
		}

		attempt = 0
		s.mu.Lock()
		s.current = session
		s.mu.Unlock()
		s.log.Info().Str("endpoint", endpoint.DisplayName).Str("token", session.Token).Msg("connected")

		err = session.ReadLoop(ctx, router.Route(session))
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, sessions.ErrSessionClosed) {
			s.log.Warn().Err(err).Msg("session ended")
		}
	}
}

// nextEndpoint returns the freshest appeared endpoint, draining pending
// browse events first. With nothing new it falls back to the last known
// endpoint (a dropped session usually means the advertiser is still
// there), and only blocks when it has never seen one or the last one said
// goodbye.
func (s *Service) nextEndpoint(ctx context.Context, events <-chan discovery.Event, last *discovery.Endpoint) (discovery.Endpoint, bool) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return discovery.Endpoint{}, false
			}
			switch ev.Kind {
			case discovery.EndpointAppeared:
				return ev.Endpoint, true
			case discovery.EndpointDisappeared:
				if last != nil && last.Addr == ev.Endpoint.Addr {
					last = nil
				}
			}
		default:
			if last != nil {
				return *last, true
			}
			select {
			case <-ctx.Done():
				return discovery.Endpoint{}, false
			case ev, ok := <-events:
				if !ok {
					return discovery.Endpoint{}, false
				}
				if ev.Kind == discovery.EndpointAppeared {
					return ev.Endpoint, true
				}
			}
		}
	}
}

func (s *Service) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := sessions.NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
