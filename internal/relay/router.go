package relay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/observability"
	"github.com/danmuck/padlink/internal/protocol"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/sessions"
	"github.com/danmuck/padlink/internal/transport"
)

var (
	// ErrExclusivity refuses a second peripheral while one is attached to
	// an enhancement bridge. Only the new connection closes.
	ErrExclusivity = errors.New("relay: peripheral already attached")

	ErrNoUpstream = errors.New("relay: no upstream session")
)

// Handler consumes one decoded payload on the local side. Element-value
// interpretation lives outside this core.
type Handler func(ch transport.Channel, payload []byte) error

type routeFunc func(r *Router, s *sessions.Session, ch transport.Channel, f protocol.Frame, raw []byte) error

// routes is the role dispatch table. Evaluated per frame on an active
// session.
var routes = map[role.Role]routeFunc{
	role.Central:           (*Router).routeCentral,
	role.Peripheral:        (*Router).routePeripheral,
	role.Bridge:            (*Router).routeBridge,
	role.EnhancementBridge: (*Router).routeBridge,
}

// Router is the role-conditioned frame consumer for one process.
type Router struct {
	state     *role.State
	handler   Handler
	relayOnly bool
	log       zerolog.Logger

	mu       sync.Mutex
	upstream *sessions.Session
	attached *sessions.Session
}

func NewRouter(state *role.State, handler Handler) *Router {
	return &Router{
		state:     state,
		handler:   handler,
		relayOnly: state.Tunables().BridgeRelayOnly,
		log:       logging.Component("relay"),
	}
}

// SetUpstream points bridge forwarding at the central-facing session.
func (r *Router) SetUpstream(s *sessions.Session) {
	r.mu.Lock()
	r.upstream = s
	r.mu.Unlock()
}

// Attach admits a downstream peripheral session. The enhancement bridge
// admits at most one at a time; a second is refused with ErrExclusivity
// and the refused session is closed, leaving the first untouched.
func (r *Router) Attach(s *sessions.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Role() == role.EnhancementBridge && r.attached != nil && r.attached.State() == sessions.Active {
		observability.ExclusivityRejected()
		s.Close()
		return fmt.Errorf("%w: token %s refused", ErrExclusivity, s.Token)
	}
	r.attached = s
	return nil
}

// Detach clears the attached session if it is the one given.
func (r *Router) Detach(s *sessions.Session) {
	r.mu.Lock()
	if r.attached == s {
		r.attached = nil
	}
	r.mu.Unlock()
}

// Route is the sessions.FrameHandler for one session. Bind with the
// session it serves.
func (r *Router) Route(s *sessions.Session) sessions.FrameHandler {
	return func(ch transport.Channel, f protocol.Frame, raw []byte) error {
		observability.FrameReceived(ch.String())
		fn, ok := routes[r.state.Role()]
		if !ok {
			return fmt.Errorf("relay: no route for role %s", r.state.Role())
		}
		return fn(r, s, ch, f, raw)
	}
}

func (r *Router) routeCentral(s *sessions.Session, ch transport.Channel, f protocol.Frame, raw []byte) error {
	if s.RecvCodec().Sampling() {
		observability.ObserveFrameLatency(f.Header.Latency(time.Now()))
	}
	if r.handler == nil {
		return nil
	}
	return r.handler(ch, f.Payload)
}

func (r *Router) routePeripheral(s *sessions.Session, ch transport.Channel, f protocol.Frame, raw []byte) error {
	// Peripherals produce; inbound frames have no consumer here.
	r.log.Debug().Str("token", s.Token).Stringer("channel", ch).Msg("dropping inbound frame on peripheral")
	return nil
}

func (r *Router) routeBridge(s *sessions.Session, ch transport.Channel, f protocol.Frame, raw []byte) error {
	r.mu.Lock()
	upstream := r.upstream
	r.mu.Unlock()
	if upstream == nil {
		return ErrNoUpstream
	}

	if r.relayOnly {
		// Forward the exact wire bytes; no decode, no handlers.
		if err := upstream.SendRaw(ch, raw); err != nil {
			return err
		}
		observability.RelayForwarded("raw")
		observability.FrameSent(ch.String())
		return nil
	}

	if r.handler != nil {
		if err := r.handler(ch, f.Payload); err != nil {
			return err
		}
	}
	if err := upstream.Send(ch, f.Payload); err != nil {
		return err
	}
	observability.RelayForwarded("decoded")
	observability.FrameSent(ch.String())
	return nil
}
