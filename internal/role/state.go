package role

import (
	"errors"
	"sync"
	"time"

	"github.com/danmuck/padlink/internal/logging"
)

var ErrConfig = errors.New("role: invalid configuration")

const (
	DefaultTransmitBuffer = 2048
	DefaultMatchDeadline  = 5 * time.Second
)

// Tunables are the process-wide knobs that must be fixed before any
// discovery or session activity.
type Tunables struct {
	// TransmitBuffer is the per-stream outbound buffer size in bytes.
	TransmitBuffer int

	// LoggingMode widens the frame header with a send timestamp and a
	// running sample counter for cross-session latency measurement.
	LoggingMode bool

	// MatchDeadline bounds how long two streams from one endpoint may
	// take to correlate into a session.
	MatchDeadline time.Duration

	// IncludesPeerToPeer allows the lower-throughput, higher-compatibility
	// secondary transport during discovery.
	IncludesPeerToPeer bool

	// BridgeRelayOnly forwards raw frame bytes upstream without decoding.
	BridgeRelayOnly bool
}

func DefaultTunables() Tunables {
	return Tunables{
		TransmitBuffer: DefaultTransmitBuffer,
		MatchDeadline:  DefaultMatchDeadline,
	}
}

// State is the set-once process configuration handed to every component at
// construction. Discovery and session components freeze it at first use;
// later writes are advisory no-ops with respect to anything already running.
type State struct {
	role  Role
	appID string
	tun   Tunables

	mu     sync.Mutex
	frozen bool
}

// Option adjusts tunables during Init.
type Option func(*Tunables)

func WithTransmitBuffer(n int) Option {
	return func(t *Tunables) { t.TransmitBuffer = n }
}

func WithLoggingMode(on bool) Option {
	return func(t *Tunables) { t.LoggingMode = on }
}

func WithMatchDeadline(d time.Duration) Option {
	return func(t *Tunables) { t.MatchDeadline = d }
}

func WithPeerToPeer(on bool) Option {
	return func(t *Tunables) { t.IncludesPeerToPeer = on }
}

func WithBridgeRelayOnly(on bool) Option {
	return func(t *Tunables) { t.BridgeRelayOnly = on }
}

// Init builds the process role state. An empty application identifier is a
// configuration error but not fatal: the state is still returned with
// discovery disabled, matching the degrade-only failure policy.
func Init(r Role, appID string, opts ...Option) (*State, error) {
	tun := DefaultTunables()
	for _, opt := range opts {
		opt(&tun)
	}
	if tun.TransmitBuffer <= 0 {
		tun.TransmitBuffer = DefaultTransmitBuffer
	}
	if tun.MatchDeadline <= 0 {
		tun.MatchDeadline = DefaultMatchDeadline
	}

	st := &State{role: r, appID: appID, tun: tun}
	if appID == "" {
		log := logging.Component("role")
		log.Error().Msg("empty application identifier; discovery disabled")
		return st, ErrConfig
	}
	return st, nil
}

func (s *State) Role() Role { return s.role }

func (s *State) AppID() string { return s.appID }

// DiscoveryEnabled reports whether the state carries a usable application
// identifier for directory type strings.
func (s *State) DiscoveryEnabled() bool { return s.appID != "" }

// Tunables returns the frozen tunables. The first call freezes them.
func (s *State) Tunables() Tunables {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frozen = true
	return s.tun
}

// SetPeerToPeer updates the peer-to-peer allowance. After the tunables have
// been read by a running component the write is dropped and logged.
func (s *State) SetPeerToPeer(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		log := logging.Component("role")
		log.Warn().Bool("peer_to_peer", on).Msg("tunables already in use; write ignored")
		return
	}
	s.tun.IncludesPeerToPeer = on
}

// SetLoggingMode updates the frame-header logging mode, subject to the same
// freeze rule as SetPeerToPeer. Both sides of a link must agree on this
// before any stream opens.
func (s *State) SetLoggingMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		log := logging.Component("role")
		log.Warn().Bool("logging_mode", on).Msg("tunables already in use; write ignored")
		return
	}
	s.tun.LoggingMode = on
}
