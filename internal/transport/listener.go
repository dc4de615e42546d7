package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/padlink/internal/logging"
)

const preambleTimeout = 3 * time.Second

// IncomingStream is one accepted, preamble-identified byte channel.
type IncomingStream struct {
	Preamble   Preamble
	RemoteAddr string
	Conn       net.Conn
}

// Listener accepts channels and labels them with their preamble before
// anything downstream sees them. A connection that fails its preamble is
// closed and dropped without affecting others.
type Listener struct {
	ln      net.Listener
	streams chan IncomingStream
	log     zerolog.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	l := &Listener{
		ln:      ln,
		streams: make(chan IncomingStream, 16),
		log:     logging.Component("transport"),
		stop:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	return l, nil
}

func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Streams yields identified channels. Closed when the listener closes.
func (l *Listener) Streams() <-chan IncomingStream {
	return l.streams
}

func (l *Listener) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
		l.ln.Close()
	})
	l.wg.Wait()
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	defer close(l.streams)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.stop:
				return
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.log.Error().Err(err).Msg("accept failed")
			return
		}
		l.wg.Add(1)
		go l.identify(conn)
	}
}

func (l *Listener) identify(conn net.Conn) {
	defer l.wg.Done()

	conn.SetReadDeadline(time.Now().Add(preambleTimeout))
	p, err := ReadPreamble(conn)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		l.log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("dropping connection")
		conn.Close()
		return
	}

	stream := IncomingStream{
		Preamble:   p,
		RemoteAddr: conn.RemoteAddr().String(),
		Conn:       conn,
	}
	select {
	case l.streams <- stream:
	case <-l.stop:
		conn.Close()
	}
}
