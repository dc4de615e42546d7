package sessions

import (
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/logging"
	"github.com/danmuck/padlink/internal/observability"
	"github.com/danmuck/padlink/internal/protocol"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/transport"
)

// pending is one endpoint still inside its matching window.
type pending struct {
	token      string
	remoteAddr string
	sampling   bool
	primary    net.Conn
	secondary  net.Conn
	timer      *clock.Timer
}

// Matcher pairs labeled incoming channels into sessions within the
// matching deadline. One lock guards the awaiting table, so exactly one
// reader promotes any endpoint; the other observes the promotion and
// attaches as the counterpart.
type Matcher struct {
	state *role.State
	clock clock.Clock
	log   zerolog.Logger

	deadline time.Duration
	writeBuf int
	sampling bool

	mu       sync.Mutex
	awaiting map[string]*pending
	closed   bool

	sessions chan *Session
}

func NewMatcher(state *role.State, clk clock.Clock) *Matcher {
	tun := state.Tunables()
	return &Matcher{
		state:    state,
		clock:    clk,
		log:      logging.Component("sessions"),
		deadline: tun.MatchDeadline,
		writeBuf: tun.TransmitBuffer,
		sampling: tun.LoggingMode,
		awaiting: make(map[string]*pending),
		sessions: make(chan *Session, 4),
	}
}

// Sessions yields sessions that completed both matching and the descriptor
// handshake, already Active.
func (m *Matcher) Sessions() <-chan *Session {
	return m.sessions
}

// Offer hands the matcher one identified channel. The first channel of a
// token opens its matching window; the second completes the pair and
// triggers the handshake. A duplicate label inside the window is dropped.
func (m *Matcher) Offer(stream transport.IncomingStream) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		stream.Conn.Close()
		return
	}

	p, ok := m.awaiting[stream.Preamble.Token]
	if !ok {
		p = &pending{
			token:      stream.Preamble.Token,
			remoteAddr: stream.RemoteAddr,
			sampling:   stream.Preamble.Sampling,
		}
		token := p.token
		p.timer = m.clock.AfterFunc(m.deadline, func() { m.expire(token) })
		m.awaiting[p.token] = p
	}

	switch stream.Preamble.Channel {
	case transport.ChannelPrimary:
		if p.primary != nil {
			m.mu.Unlock()
			m.log.Warn().Str("token", p.token).Msg("duplicate primary channel dropped")
			stream.Conn.Close()
			return
		}
		p.primary = stream.Conn
	case transport.ChannelSecondary:
		if p.secondary != nil {
			m.mu.Unlock()
			m.log.Warn().Str("token", p.token).Msg("duplicate secondary channel dropped")
			stream.Conn.Close()
			return
		}
		p.secondary = stream.Conn
	}

	if p.primary == nil || p.secondary == nil {
		m.mu.Unlock()
		return
	}

	// Both channels inside the window: promote. The timer loses the race
	// by design; Stop also guards the expiry callback sitting behind the
	// same lock.
	p.timer.Stop()
	delete(m.awaiting, p.token)
	m.mu.Unlock()

	observability.SessionMatched()
	session := newSession(p.token, p.remoteAddr,
		p.primary, p.secondary,
		protocol.NewCodec(m.sampling), protocol.NewCodec(p.sampling),
		m.writeBuf)
	go m.completeHandshake(session)
}

// completeHandshake receives the peer descriptor as the first frame on the
// primary channel and promotes the session to Active. Failure closes just
// this session.
func (m *Matcher) completeHandshake(s *Session) {
	if m.deadline > 0 {
		s.primary.SetReadDeadline(time.Now().Add(m.deadline))
	}
	f, err := s.recvCodec.ReadFrame(s.primary)
	s.primary.SetReadDeadline(time.Time{})
	if err != nil {
		m.log.Warn().Err(err).Str("token", s.Token).Msg("descriptor handshake failed")
		observability.HandshakeFailed()
		s.Close()
		return
	}
	desc, err := device.DecodeDescriptor(f.Payload)
	if err != nil {
		m.log.Warn().Err(err).Str("token", s.Token).Msg("descriptor decode failed")
		observability.HandshakeFailed()
		s.Close()
		return
	}
	s.Descriptor = desc
	s.setState(Active)
	m.log.Info().
		Str("token", s.Token).
		Str("uid", desc.UID).
		Str("vendor", desc.VendorName).
		Msg("session active")

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		s.Close()
		return
	}
	select {
	case m.sessions <- s:
	case <-s.done:
	}
}

// expire closes out an endpoint whose window lapsed with only one channel.
func (m *Matcher) expire(token string) {
	m.mu.Lock()
	p, ok := m.awaiting[token]
	if ok {
		delete(m.awaiting, token)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.log.Warn().Str("token", token).Dur("deadline", m.deadline).Msg("matching deadline elapsed")
	observability.SessionMatchTimeout()
	if p.primary != nil {
		p.primary.Close()
	}
	if p.secondary != nil {
		p.secondary.Close()
	}
}

// Remove drops an endpoint from the awaiting table, closing whatever
// channels it had. Used when the caller tears down before the deadline.
func (m *Matcher) Remove(token string) {
	m.mu.Lock()
	p, ok := m.awaiting[token]
	if ok {
		p.timer.Stop()
		delete(m.awaiting, token)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if p.primary != nil {
		p.primary.Close()
	}
	if p.secondary != nil {
		p.secondary.Close()
	}
}

// Awaiting reports how many endpoints sit inside their window.
func (m *Matcher) Awaiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.awaiting)
}

// Close expires every awaiting endpoint and stops accepting offers.
func (m *Matcher) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	pendings := make([]*pending, 0, len(m.awaiting))
	for _, p := range m.awaiting {
		p.timer.Stop()
		pendings = append(pendings, p)
	}
	m.awaiting = make(map[string]*pending)
	m.mu.Unlock()

	for _, p := range pendings {
		if p.primary != nil {
			p.primary.Close()
		}
		if p.secondary != nil {
			p.secondary.Close()
		}
	}
}
