package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// Dialer opens both channels of a session toward a resolved endpoint.
type Dialer struct {
	// Timeout bounds each TCP connect.
	Timeout time.Duration

	// Sampling is this side's header variant, stamped into both preambles.
	Sampling bool
}

// SessionConns is the dialer-side pair for one session.
type SessionConns struct {
	Token     string
	Primary   net.Conn
	Secondary net.Conn
}

func (s SessionConns) Close() {
	if s.Primary != nil {
		s.Primary.Close()
	}
	if s.Secondary != nil {
		s.Secondary.Close()
	}
}

// Open dials the endpoint twice and writes a preamble on each channel,
// both carrying one fresh session token. The remote matcher correlates on
// that token.
func (d Dialer) Open(ctx context.Context, addr string) (SessionConns, error) {
	token := uuid.NewString()

	primary, err := d.dialChannel(ctx, addr, token, ChannelPrimary)
	if err != nil {
		return SessionConns{}, err
	}
	secondary, err := d.dialChannel(ctx, addr, token, ChannelSecondary)
	if err != nil {
		primary.Close()
		return SessionConns{}, err
	}
	return SessionConns{Token: token, Primary: primary, Secondary: secondary}, nil
}

func (d Dialer) dialChannel(ctx context.Context, addr, token string, ch Channel) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s %s: %w", addr, ch, err)
	}
	p := Preamble{Token: token, Channel: ch, Sampling: d.Sampling}
	if err := WritePreamble(conn, p); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: preamble %s %s: %w", addr, ch, err)
	}
	return conn, nil
}
