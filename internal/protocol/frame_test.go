package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeReadFrameRoundTrip(t *testing.T) {
	c := NewCodec(false)
	payload := []byte{0x01, 0x02, 0x03, 0x04}

	var buf bytes.Buffer
	if err := c.WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.Len() != HeaderSize+len(payload) {
		t.Fatalf("frame length = %d, want %d", buf.Len(), HeaderSize+len(payload))
	}

	f, err := c.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Header.Magic != Magic {
		t.Fatalf("magic = %#x, want %#x", f.Header.Magic, Magic)
	}
	if f.Header.Version != Version {
		t.Fatalf("version = %d, want %d", f.Header.Version, Version)
	}
	if f.Header.PayloadLen != uint32(len(payload)) {
		t.Fatalf("payload len = %d, want %d", f.Header.PayloadLen, len(payload))
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: %x", f.Payload)
	}
}

func TestEncodeSamplingHeader(t *testing.T) {
	c := NewCodec(true)
	fixed := time.UnixMilli(1_700_000_123_456)
	c.now = func() time.Time { return fixed }

	first, err := c.Encode([]byte("a"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(first) != HeaderSizeSampling+1 {
		t.Fatalf("frame length = %d, want %d", len(first), HeaderSizeSampling+1)
	}

	second, err := c.Encode([]byte("b"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	f, err := c.ReadFrame(bytes.NewReader(first))
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if f.Header.SentAtMS != uint32(fixed.UnixMilli()) {
		t.Fatalf("sent_at = %d, want %d", f.Header.SentAtMS, uint32(fixed.UnixMilli()))
	}
	if f.Header.SampleCount != 1 {
		t.Fatalf("sample count = %d, want 1", f.Header.SampleCount)
	}

	g, err := c.ReadFrame(bytes.NewReader(second))
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if g.Header.SampleCount != 2 {
		t.Fatalf("sample count = %d, want 2", g.Header.SampleCount)
	}
	if c.SampleTotal() != 2 {
		t.Fatalf("sample total = %d, want 2", c.SampleTotal())
	}
}

func TestEncodePlainHeaderOmitsSamplingFields(t *testing.T) {
	c := NewCodec(false)
	buf, err := c.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != HeaderSize {
		t.Fatalf("empty frame length = %d, want %d", len(buf), HeaderSize)
	}
	if c.SampleTotal() != 0 {
		t.Fatalf("sample total advanced outside sampling mode")
	}
}

func TestReadFrameRejectsUnknownVersion(t *testing.T) {
	c := NewCodec(false)
	buf, err := c.Encode([]byte("x"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf[4] = Version + 1

	_, err = c.ReadFrame(bytes.NewReader(buf))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestReadFrameRejectsOversizePayload(t *testing.T) {
	c := NewCodec(false)
	head := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(head[0:4], Magic)
	head[4] = Version
	binary.BigEndian.PutUint32(head[5:9], DefaultMaxPayload+1)

	_, err := c.ReadFrame(bytes.NewReader(head))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestReadFrameClosedStream(t *testing.T) {
	c := NewCodec(false)
	_, err := c.ReadFrame(bytes.NewReader(nil))
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestDecoderDeliversAcrossPartialFeeds(t *testing.T) {
	c := NewCodec(false)
	payload := []byte("stick:left x=12 y=-3")
	wire, err := c.Encode(payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	d := NewDecoder(c)
	for i := 0; i < len(wire); i++ {
		d.Feed(wire[i : i+1])
		f, err := d.Next()
		if i < len(wire)-1 {
			if !errors.Is(err, ErrNeedMoreData) {
				t.Fatalf("byte %d: expected ErrNeedMoreData, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("final byte: %v", err)
		}
		if !bytes.Equal(f.Payload, payload) {
			t.Fatalf("payload mismatch: %q", f.Payload)
		}
	}

	if _, err := d.Next(); !errors.Is(err, ErrNeedMoreData) {
		t.Fatalf("drained decoder: expected ErrNeedMoreData, got %v", err)
	}
}

func TestDecoderDeliversBackToBackFrames(t *testing.T) {
	c := NewCodec(true)
	one, err := c.Encode([]byte("one"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	two, err := c.Encode([]byte("two"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	d := NewDecoder(c)
	d.Feed(append(append([]byte{}, one...), two...))

	f, err := d.Next()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if string(f.Payload) != "one" {
		t.Fatalf("first payload = %q", f.Payload)
	}
	g, err := d.Next()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if string(g.Payload) != "two" {
		t.Fatalf("second payload = %q", g.Payload)
	}
	if g.Header.SampleCount != f.Header.SampleCount+1 {
		t.Fatalf("sample counts %d then %d", f.Header.SampleCount, g.Header.SampleCount)
	}
}

func TestDecoderCorruptMagicIsTerminal(t *testing.T) {
	c := NewCodec(false)
	d := NewDecoder(c)

	// A bogus prefix whose would-be length field is enormous. The magic
	// check must fire before the length is trusted.
	junk := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0xff, 0xff, 0xff, 0xff}
	d.Feed(junk)

	if _, err := d.Next(); !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("expected ErrCorruptStream, got %v", err)
	}

	// Terminal: later feeds of valid frames change nothing.
	good, err := c.Encode([]byte("late"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d.Feed(good)
	if _, err := d.Next(); !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("corrupt decoder recovered: %v", err)
	}
}

func TestDecoderMagicCheckedBeforeFullHeader(t *testing.T) {
	d := NewDecoder(NewCodec(false))
	d.Feed([]byte{0x00, 0x00, 0x00, 0x01})
	if _, err := d.Next(); !errors.Is(err, ErrCorruptStream) {
		t.Fatalf("expected ErrCorruptStream on four junk bytes, got %v", err)
	}
}

func TestDecoderClose(t *testing.T) {
	c := NewCodec(false)
	d := NewDecoder(c)
	d.Close()
	if _, err := d.Next(); !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
}

func TestEncodeHeaderBytesLossless(t *testing.T) {
	c := NewCodec(true)
	wire, err := c.Encode([]byte("xyz"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := c.ReadFrame(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rebuilt := append(EncodeHeaderBytes(f.Header, true), f.Payload...)
	if !bytes.Equal(rebuilt, wire) {
		t.Fatalf("re-encoded frame differs from wire bytes")
	}
}

func TestHeaderLatency(t *testing.T) {
	sent := time.UnixMilli(1_700_000_000_000)
	h := Header{SentAtMS: uint32(sent.UnixMilli())}
	got := h.Latency(sent.Add(37 * time.Millisecond))
	if got != 37*time.Millisecond {
		t.Fatalf("latency = %v, want 37ms", got)
	}
}
