// Package central runs the input-consumer side: advertise, accept, match,
// dispatch.
package central

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/discovery"
	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/relay"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/sessions"
	"github.com/danmuck/padlink/internal/transport"
)

var ErrAppIDRequired = errors.New("central: app identifier required")

type ServiceConfig struct {
	AppID          string
	Name           string
	ListenAddr     string
	LoggingMode    bool
	MatchDeadline  time.Duration
	TransmitBuffer int

	// Handler consumes decoded input payloads. Nil means log-and-drop.
	Handler relay.Handler

	// Directory overrides the mDNS default; tests plug a MemoryHub in.
	Directory discovery.Directory
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:           "padlink-central",
		ListenAddr:     ":0",
		MatchDeadline:  role.DefaultMatchDeadline,
		TransmitBuffer: role.DefaultTransmitBuffer,
	}
}

// Service is the central runtime: one listener, one matcher, one router,
// any number of peripheral or bridge sessions.
type Service struct {
	cfg   ServiceConfig
	state *role.State
	log   zerolog.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.AppID == "" {
		return nil, ErrAppIDRequired
	}
	state, err := role.Init(role.Central, cfg.AppID,
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
		log:   logging.Component("central"),
	}, nil
}

// State exposes the role state for wiring into shared components.
func (s *Service) State() *role.State { return s.state }

// Run serves until ctx ends. Failures on one session never take down
// another; only listener setup and publish errors are fatal here.
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
	if err := dir.Publish(role.Central, s.cfg.Name, listener.Port()); err != nil {
		return fmt.Errorf("central: publish: %w", err)
	}
	defer dir.Unpublish()

	matcher := sessions.NewMatcher(s.state, clock.New())
	defer matcher.Close()

	router := relay.NewRouter(s.state, s.cfg.Handler)

	s.log.Info().Str("app_id", s.cfg.AppID).Int("port", listener.Port()).Msg("central up")

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
			go s.serve(ctx, router, session)
		}
	}
}

func (s *Service) serve(ctx context.Context, router *relay.Router, session *sessions.Session) {
	err := session.ReadLoop(ctx, router.Route(session))
	if err != nil && !errors.Is(err, sessions.ErrSessionClosed) {
		s.log.Warn().Err(err).Str("token", session.Token).Msg("session ended")
		return
	}
	s.log.Info().Str("token", session.Token).Msg("session closed")
}
