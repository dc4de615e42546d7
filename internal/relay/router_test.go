package relay

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/padlink/internal/device"
	"github.com/danmuck/padlink/internal/protocol"
	"github.com/danmuck/padlink/internal/role"
	"github.com/danmuck/padlink/internal/sessions"
	"github.com/danmuck/padlink/internal/testutil/testlog"
	"github.com/danmuck/padlink/internal/transport"
)

func testState(t *testing.T, r role.Role, opts ...role.Option) *role.State {
	t.Helper()
	st, err := role.Init(r, "padlink", opts...)
	if err != nil {
		t.Fatalf("init state: %v", err)
	}
	return st
}

// activePipeSession builds one active session whose remote ends are
// drained of the handshake frame and then left open.
func activePipeSession(t *testing.T, sampling bool) *sessions.Session {
	t.Helper()
	primary, remotePrimary := net.Pipe()
	secondary, remoteSecondary := net.Pipe()

	go func() {
		_, _ = protocol.NewCodec(sampling).ReadFrame(remotePrimary)
	}()

	st := testState(t, role.Peripheral, role.WithLoggingMode(sampling))
	conns := transport.SessionConns{Token: "tok-pipe", Primary: primary, Secondary: secondary}
	s, err := sessions.Initiate(conns, "pipe", device.Descriptor{UID: "down", VendorName: "Acme"}, st)
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
		remotePrimary.Close()
		remoteSecondary.Close()
	})
	return s
}

// activeSessionPair joins two active sessions over in-process pipes, with
// both handshake frames already consumed.
func activeSessionPair(t *testing.T, sampling bool) (a, b *sessions.Session) {
	t.Helper()
	p1a, p1b := net.Pipe()
	p2a, p2b := net.Pipe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = protocol.NewCodec(sampling).ReadFrame(p1b)
	}()
	go func() {
		defer wg.Done()
		_, _ = protocol.NewCodec(sampling).ReadFrame(p1a)
	}()

	stA := testState(t, role.Peripheral, role.WithLoggingMode(sampling))
	a, err := sessions.Initiate(
		transport.SessionConns{Token: "tok-pair", Primary: p1a, Secondary: p2a},
		"pipe", device.Descriptor{UID: "side-a", VendorName: "Acme"}, stA)
	if err != nil {
		t.Fatalf("initiate a: %v", err)
	}

	stB := testState(t, role.Peripheral, role.WithLoggingMode(sampling))
	b, err = sessions.Initiate(
		transport.SessionConns{Token: "tok-pair", Primary: p1b, Secondary: p2b},
		"pipe", device.Descriptor{UID: "side-b", VendorName: "Acme"}, stB)
	if err != nil {
		t.Fatalf("initiate b: %v", err)
	}
	wg.Wait()

	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func frameFor(t *testing.T, codec *protocol.Codec, payload []byte) (protocol.Frame, []byte) {
	t.Helper()
	wire, err := codec.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	buf.Write(wire)
	f, err := codec.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	return f, wire
}

func TestRouteCentralInvokesHandler(t *testing.T) {
	testlog.Start(t)

	var got []byte
	r := NewRouter(testState(t, role.Central), func(ch transport.Channel, payload []byte) error {
		got = append([]byte(nil), payload...)
		return nil
	})

	s := activePipeSession(t, false)
	f, raw := frameFor(t, protocol.NewCodec(false), []byte("button:b"))
	if err := r.Route(s)(transport.ChannelPrimary, f, raw); err != nil {
		t.Fatalf("route: %v", err)
	}
	if string(got) != "button:b" {
		t.Fatalf("handler payload = %q", got)
	}
}

func TestRoutePeripheralDropsInbound(t *testing.T) {
	testlog.Start(t)

	called := false
	r := NewRouter(testState(t, role.Peripheral), func(transport.Channel, []byte) error {
		called = true
		return nil
	})

	s := activePipeSession(t, false)
	f, raw := frameFor(t, protocol.NewCodec(false), []byte("unexpected"))
	if err := r.Route(s)(transport.ChannelPrimary, f, raw); err != nil {
		t.Fatalf("route: %v", err)
	}
	if called {
		t.Fatalf("peripheral route invoked the handler")
	}
}

func TestRouteBridgeRequiresUpstream(t *testing.T) {
	testlog.Start(t)

	r := NewRouter(testState(t, role.Bridge), nil)
	s := activePipeSession(t, false)
	f, raw := frameFor(t, protocol.NewCodec(false), []byte("x"))
	if err := r.Route(s)(transport.ChannelPrimary, f, raw); !errors.Is(err, ErrNoUpstream) {
		t.Fatalf("expected ErrNoUpstream, got %v", err)
	}
}

func TestRouteBridgeRelayOnlyForwardsExactBytes(t *testing.T) {
	testlog.Start(t)

	state := testState(t, role.Bridge, role.WithBridgeRelayOnly(true), role.WithLoggingMode(true))
	r := NewRouter(state, func(transport.Channel, []byte) error {
		t.Fatalf("relay-only bridge ran a handler")
		return nil
	})

	upstream, centralSide := activeSessionPair(t, true)
	r.SetUpstream(upstream)

	downstream := activePipeSession(t, true)

	// A sampled frame from a peripheral-side codec; its counter and
	// timestamp must survive the hop untouched.
	f, raw := frameFor(t, protocol.NewCodec(true), []byte("stick:left x=1 y=2"))

	forwarded := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = centralSide.ReadLoop(ctx, func(ch transport.Channel, got protocol.Frame, gotRaw []byte) error {
			forwarded <- gotRaw
			return nil
		})
	}()

	if err := r.Route(downstream)(transport.ChannelPrimary, f, raw); err != nil {
		t.Fatalf("route: %v", err)
	}

	select {
	case gotRaw := <-forwarded:
		if !bytes.Equal(gotRaw, raw) {
			t.Fatalf("forwarded bytes differ:\n in  %x\n out %x", raw, gotRaw)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("frame never reached the central side")
	}
}

func TestRouteBridgeDecodedReframesPayload(t *testing.T) {
	testlog.Start(t)

	var seen []byte
	state := testState(t, role.Bridge)
	r := NewRouter(state, func(ch transport.Channel, payload []byte) error {
		seen = append([]byte(nil), payload...)
		return nil
	})

	upstream, centralSide := activeSessionPair(t, false)
	r.SetUpstream(upstream)
	downstream := activePipeSession(t, false)

	f, raw := frameFor(t, protocol.NewCodec(false), []byte("button:menu"))

	forwarded := make(chan []byte, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = centralSide.ReadLoop(ctx, func(ch transport.Channel, got protocol.Frame, gotRaw []byte) error {
			forwarded <- got.Payload
			return nil
		})
	}()

	if err := r.Route(downstream)(transport.ChannelPrimary, f, raw); err != nil {
		t.Fatalf("route: %v", err)
	}
	if string(seen) != "button:menu" {
		t.Fatalf("bridge handler payload = %q", seen)
	}
	select {
	case payload := <-forwarded:
		if string(payload) != "button:menu" {
			t.Fatalf("forwarded payload = %q", payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("frame never reached the central side")
	}
}

func TestEnhancementBridgeExclusivity(t *testing.T) {
	testlog.Start(t)

	r := NewRouter(testState(t, role.EnhancementBridge), nil)

	first := activePipeSession(t, false)
	if err := r.Attach(first); err != nil {
		t.Fatalf("first attach: %v", err)
	}

	second := activePipeSession(t, false)
	if err := r.Attach(second); !errors.Is(err, ErrExclusivity) {
		t.Fatalf("second attach: %v", err)
	}

	// Refusal closes the intruder and leaves the first session alone.
	if second.State() != sessions.Closed {
		t.Fatalf("refused session state = %v", second.State())
	}
	if first.State() != sessions.Active {
		t.Fatalf("first session state = %v", first.State())
	}

	// Once the first detaches (or dies), a newcomer is admitted.
	first.Close()
	r.Detach(first)
	third := activePipeSession(t, false)
	if err := r.Attach(third); err != nil {
		t.Fatalf("attach after detach: %v", err)
	}
}

func TestPlainBridgeAdmitsReplacement(t *testing.T) {
	testlog.Start(t)

	r := NewRouter(testState(t, role.Bridge), nil)
	first := activePipeSession(t, false)
	if err := r.Attach(first); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	second := activePipeSession(t, false)
	if err := r.Attach(second); err != nil {
		t.Fatalf("second attach on plain bridge: %v", err)
	}
	if first.State() != sessions.Active {
		t.Fatalf("first session closed by plain bridge attach")
	}
}
