package sessions

import (
	"fmt"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/observability"
	"github.com/danmuck/padlink/internal/protocol"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/transport"
)

// Initiate builds the dialing side of a session and performs the sending
// half of the descriptor handshake: the serialized descriptor goes out as
// the first frame on the primary channel, then the session is Active.
//
// The dialer cannot learn the remote's header variant from a preamble it
// never receives; both sides of one deployment share the sampling setting
// through configuration, so the local tunable stands in for it.
func Initiate(conns transport.SessionConns, remoteAddr string, desc device.Descriptor, state *role.State) (*Session, error) {
	tun := state.Tunables()
	s := newSession(conns.Token, remoteAddr,
		conns.Primary, conns.Secondary,
		protocol.NewCodec(tun.LoggingMode), protocol.NewCodec(tun.LoggingMode),
		tun.TransmitBuffer)

	if err := s.send(transport.ChannelPrimary, desc.Encode()); err != nil {
		s.Close()
		observability.HandshakeFailed()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	s.Descriptor = desc
	s.setState(Active)
	observability.SessionMatched()
	return s, nil
}
