package sessions

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/protocol"
	"github.com/danmuck/padlink/internal/transport"
)

var (
	ErrHandshake     = errors.New("sessions: descriptor handshake failed")
	ErrSessionClosed = errors.New("sessions: session closed")
	ErrNotActive     = errors.New("sessions: session not active")
)

// State is the session lifecycle. A session that never reaches Matched
// before the deadline goes straight to Closed.
type State int

const (
	Pairing State = iota
	Matched
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Pairing:
		return "pairing"
	case Matched:
		return "matched"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one matched peer: two byte channels plus the negotiated
// device identity. Reads run one goroutine per channel; dispatch is
// serialized by the session so partial frames never interleave.
type Session struct {
	Token      string
	RemoteAddr string
	Descriptor device.Descriptor

	primary   net.Conn
	secondary net.Conn

	// sendCodec carries this side's header variant, recvCodec the
	// remote's, as learned from the preamble.
	sendCodec *protocol.Codec
	recvCodec *protocol.Codec

	writeBuf int

	mu    sync.Mutex
	state State

	writeMu [2]sync.Mutex
	writers [2]*bufio.Writer

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(token, remoteAddr string, primary, secondary net.Conn, send, recv *protocol.Codec, writeBuf int) *Session {
	s := &Session{
		Token:      token,
		RemoteAddr: remoteAddr,
		primary:    primary,
		secondary:  secondary,
		sendCodec:  send,
		recvCodec:  recv,
		writeBuf:   writeBuf,
		state:      Matched,
		done:       make(chan struct{}),
	}
	s.writers[transport.ChannelPrimary] = bufio.NewWriterSize(primary, writeBuf)
	s.writers[transport.ChannelSecondary] = bufio.NewWriterSize(secondary, writeBuf)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// SendCodec exposes the outbound codec for callers that pre-encode frames.
func (s *Session) SendCodec() *protocol.Codec { return s.sendCodec }

// RecvCodec exposes the inbound codec; bridges forwarding verbatim reuse
// its framing knowledge for re-slicing raw bytes.
func (s *Session) RecvCodec() *protocol.Codec { return s.recvCodec }

// Done is closed when the session closes, whatever the cause.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close releases both channels immediately. In-flight reads observe a
// terminal error rather than blocking.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.setState(Closed)
		s.primary.Close()
		s.secondary.Close()
		close(s.done)
	})
}

// Send frames payload onto one channel. Valid only once Active, except for
// the handshake path which writes before promotion.
func (s *Session) Send(ch transport.Channel, payload []byte) error {
	if st := s.State(); st != Active {
		return fmt.Errorf("%w: state %s", ErrNotActive, st)
	}
	return s.send(ch, payload)
}

func (s *Session) send(ch transport.Channel, payload []byte) error {
	buf, err := s.sendCodec.Encode(payload)
	if err != nil {
		return err
	}
	return s.writeRaw(ch, buf)
}

// SendRaw writes pre-encoded frame bytes unchanged. The relay-only bridge
// path uses this so forwarded frames stay byte-identical.
func (s *Session) SendRaw(ch transport.Channel, frameBytes []byte) error {
	if st := s.State(); st != Active {
		return fmt.Errorf("%w: state %s", ErrNotActive, st)
	}
	return s.writeRaw(ch, frameBytes)
}

func (s *Session) writeRaw(ch transport.Channel, buf []byte) error {
	s.writeMu[ch].Lock()
	defer s.writeMu[ch].Unlock()
	w := s.writers[ch]
	if _, err := w.Write(buf); err != nil {
		return err
	}
	return w.Flush()
}

// FrameHandler consumes one inbound frame. Raw is the exact encoded bytes
// as read off the wire, for verbatim forwarding.
type FrameHandler func(ch transport.Channel, f protocol.Frame, raw []byte) error

// ReadLoop pumps both channels until the session closes, ctx ends, or a
// read fails. Dispatch is serialized: the handler never runs concurrently
// with itself for one session.
func (s *Session) ReadLoop(ctx context.Context, handler FrameHandler) error {
	var dispatchMu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)

	// Watcher: any of ctx end, external Close, or a pump failure (which
	// cancels ctx) tears the whole session down, unblocking both pumps.
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.Close()
		return nil
	})

	pump := func(ch transport.Channel, conn net.Conn) func() error {
		return func() error {
			for {
				f, err := s.recvCodec.ReadFrame(conn)
				if err != nil {
					if s.State() == Closed {
						return ErrSessionClosed
					}
					return err
				}
				raw := reencode(f, s.recvCodec)
				dispatchMu.Lock()
				err = handler(ch, f, raw)
				dispatchMu.Unlock()
				if err != nil {
					return err
				}
			}
		}
	}
	g.Go(pump(transport.ChannelPrimary, s.primary))
	g.Go(pump(transport.ChannelSecondary, s.secondary))

	err := g.Wait()
	s.Close()
	return err
}

// reencode reconstitutes the exact wire bytes of a decoded frame. The
// header fields round-trip, so this equals what was read.
func reencode(f protocol.Frame, codec *protocol.Codec) []byte {
	buf := make([]byte, 0, codec.HeaderLength()+len(f.Payload))
	buf = append(buf, protocol.EncodeHeaderBytes(f.Header, codec.Sampling())...)
	buf = append(buf, f.Payload...)
	return buf
}
