package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/danmuck/padlink/internal/testutil/testlog"
)

func TestDialerOpensBothChannelsWithOneToken(t *testing.T) {
	testlog.Start(t)

	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := Dialer{Timeout: time.Second, Sampling: true}
	conns, err := d.Open(ctx, l.ln.Addr().String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conns.Close()

	seen := map[Channel]Preamble{}
	for i := 0; i < 2; i++ {
		select {
		case stream := <-l.Streams():
			seen[stream.Preamble.Channel] = stream.Preamble
			stream.Conn.Close()
		case <-ctx.Done():
			t.Fatalf("stream %d never arrived", i)
		}
	}

	primary, ok := seen[ChannelPrimary]
	if !ok {
		t.Fatalf("no primary channel")
	}
	secondary, ok := seen[ChannelSecondary]
	if !ok {
		t.Fatalf("no secondary channel")
	}
	if primary.Token != conns.Token || secondary.Token != conns.Token {
		t.Fatalf("token mismatch: %q / %q vs %q", primary.Token, secondary.Token, conns.Token)
	}
	if !primary.Sampling || !secondary.Sampling {
		t.Fatalf("sampling bit lost in preamble")
	}
}

func TestListenerDropsConnectionWithBadPreamble(t *testing.T) {
	testlog.Start(t)

	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	conn, err := net.Dial("tcp", l.ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Absurd token length; listener must close the connection.
	if _, err := conn.Write([]byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("connection survived a malformed preamble")
	}

	select {
	case stream := <-l.Streams():
		t.Fatalf("malformed connection surfaced as stream: %+v", stream.Preamble)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenerCloseEndsStreams(t *testing.T) {
	testlog.Start(t)

	l, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	l.Close()

	select {
	case _, ok := <-l.Streams():
		if ok {
			t.Fatalf("stream delivered after close")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("streams channel not closed")
	}
}
