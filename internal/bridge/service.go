// Package bridge runs the relay: peripherals attach downstream, frames
// flow upstream to a central.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/discovery"
	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/protocol"
	"github.com/danmuck/padlink/internal/relay"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/sessions"
	"github.com/danmuck/padlink/internal/transport"
)

var ErrAppIDRequired = errors.New("bridge: app identifier required")

type ServiceConfig struct {
	AppID      string
	Name       string
	ListenAddr string

	// Enhanced limits the bridge to one attached peripheral.
	Enhanced bool

	// RelayOnly forwards raw frame bytes without decoding.
	RelayOnly bool

	LoggingMode    bool
	MatchDeadline  time.Duration
	TransmitBuffer int
	ConnectTimeout time.Duration

	// Handler runs on decoded payloads in non-relay-only mode.
	Handler relay.Handler

	Backoff sessions.BackoffConfig

	// Directory overrides the mDNS default.
	Directory discovery.Directory
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:           "padlink-bridge",
		ListenAddr:     ":0",
		MatchDeadline:  role.DefaultMatchDeadline,
		TransmitBuffer: role.DefaultTransmitBuffer,
		ConnectTimeout: 5 * time.Second,
		Backoff:        sessions.DefaultBackoffConfig(),
	}
}

// Service accepts peripheral sessions downstream and maintains one
// central-facing session upstream. The upstream side plays the
// initiating, peripheral-like role of the handshake, forwarding a
// duplicate of the first attached descriptor.
type Service struct {
	cfg    ServiceConfig
	state  *role.State
	log    zerolog.Logger
	rng    *rand.Rand
	router *relay.Router

	mu       sync.Mutex
	upstream *sessions.Session
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.AppID == "" {
		return nil, ErrAppIDRequired
	}
	r := role.Bridge
	if cfg.Enhanced {
		r = role.EnhancementBridge
	}
	state, err := role.Init(r, cfg.AppID,
		role.WithLoggingMode(cfg.LoggingMode),
		role.WithMatchDeadline(cfg.MatchDeadline),
		role.WithTransmitBuffer(cfg.TransmitBuffer),
		role.WithBridgeRelayOnly(cfg.RelayOnly),
	)
	if err != nil {
		return nil, err
	}
	s := &Service{
		cfg:   cfg,
		state: state,
		log:   logging.Component("bridge"),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.router = relay.NewRouter(state, cfg.Handler)
	return s, nil
}

func (s *Service) State() *role.State { return s.state }

// Run serves until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	listener, err := transport.Listen(s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer listener.Close()

	dir := s.cfg.Directory
	if dir == nil {
		dir = discovery.NewMDNSDirectory(s.state)
	}
	if err := dir.Publish(s.state.Role(), s.cfg.Name, listener.Port()); err != nil {
		return fmt.Errorf("bridge: publish: %w", err)
	}
	defer dir.Unpublish()

	matcher := sessions.NewMatcher(s.state, clock.New())
	defer matcher.Close()

	s.log.Info().Str("app_id", s.cfg.AppID).Bool("enhanced", s.cfg.Enhanced).
		Bool("relay_only", s.cfg.RelayOnly).Int("port", listener.Port()).Msg("bridge up")

	for {
		select {
		case <-ctx.Done():
			return nil
		case stream, ok := <-listener.Streams():
			if !ok {
				return nil
			}
			matcher.Offer(stream)
		case session := <-matcher.Sessions():
			go s.serveDownstream(ctx, dir, session)
		}
	}
}

// serveDownstream admits one peripheral session, ensures an upstream
// exists for its descriptor, and pumps its frames through the router.
func (s *Service) serveDownstream(ctx context.Context, dir discovery.Directory, session *sessions.Session) {
	if err := s.router.Attach(session); err != nil {
		s.log.Warn().Err(err).Str("token", session.Token).Msg("peripheral refused")
		return
	}
	defer s.router.Detach(session)

	if err := s.ensureUpstream(ctx, dir, session.Descriptor); err != nil {
		s.log.Error().Err(err).Msg("no upstream central")
		session.Close()
		return
	}

	err := session.ReadLoop(ctx, s.router.Route(session))
	if err != nil && !errors.Is(err, sessions.ErrSessionClosed) {
		s.log.Warn().Err(err).Str("token", session.Token).Msg("downstream ended")
	}
}

// ensureUpstream browses for a central and initiates a session with a
// duplicate of the attached descriptor. The duplicate matters: the
// downstream session owns the original and may tear it down while the
// upstream copy lives on.
func (s *Service) ensureUpstream(ctx context.Context, dir discovery.Directory, desc device.Descriptor) error {
	s.mu.Lock()
	up := s.upstream
	s.mu.Unlock()
	if up != nil && up.State() == sessions.Active {
		return nil
	}

	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := dir.Browse(browseCtx, role.Central)
	if err != nil {
		return err
	}

	tun := s.state.Tunables()
	dialer := transport.Dialer{Timeout: s.cfg.ConnectTimeout, Sampling: tun.LoggingMode}

	for attempt := 1; ; attempt++ {
		var endpoint discovery.Endpoint
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("bridge: browse ended")
			}
			if ev.Kind != discovery.EndpointAppeared {
				continue
			}
			endpoint = ev.Endpoint
		}

		conns, err := dialer.Open(ctx, endpoint.Addr)
		if err != nil {
			s.log.Warn().Err(err).Str("endpoint", endpoint.DisplayName).Msg("upstream connect failed")
			if !s.sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}
		up, err := sessions.Initiate(conns, endpoint.Addr, desc.Duplicate(), s.state)
		if err != nil {
			conns.Close()
			s.log.Warn().Err(err).Str("endpoint", endpoint.DisplayName).Msg("upstream handshake failed")
			if !s.sleepBackoff(ctx, attempt) {
				return ctx.Err()
			}
			continue
		}

		s.mu.Lock()
		s.upstream = up
		s.mu.Unlock()
		s.router.SetUpstream(up)
		s.log.Info().Str("endpoint", endpoint.DisplayName).Str("token", up.Token).Msg("upstream connected")

		// The upstream read side only watches for teardown; centrals do
		// not talk back on this core.
		go func() {
			_ = up.ReadLoop(ctx, func(transport.Channel, protocol.Frame, []byte) error { return nil })
			s.mu.Lock()
			if s.upstream == up {
				s.upstream = nil
			}
			s.mu.Unlock()
		}()
		return nil
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
