package protocol

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// DefaultMaxPayload bounds decode memory for one frame. Control-input
// payloads are small; anything near this is a protocol violation.
const DefaultMaxPayload = 1 << 20

// Codec encodes and decodes frames under one fixed header variant. One
// codec per sending side; the sample counter is shared across its streams.
type Codec struct {
	sampling   bool
	maxPayload uint32
	now        func() time.Time
	samples    atomic.Uint32
}

func NewCodec(sampling bool) *Codec {
	return &Codec{
		sampling:   sampling,
		maxPayload: DefaultMaxPayload,
		now:        time.Now,
	}
}

func (c *Codec) Sampling() bool { return c.sampling }

func (c *Codec) HeaderLength() int { return HeaderLength(c.sampling) }

// SampleTotal returns how many frames this codec has encoded. Only advances
// in sampling mode.
func (c *Codec) SampleTotal() uint32 { return c.samples.Load() }

// Encode prepends the header to payload. In sampling mode the header also
// carries the send time and the running sample counter.
func (c *Codec) Encode(payload []byte) ([]byte, error) {
	if uint64(len(payload)) > uint64(c.maxPayload) {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	h := Header{
		Magic:      Magic,
		Version:    Version,
		PayloadLen: uint32(len(payload)),
	}
	if c.sampling {
		h.SentAtMS = uint32(c.now().UnixMilli())
		h.SampleCount = c.samples.Add(1)
	}
	buf := make([]byte, 0, c.HeaderLength()+len(payload))
	buf = append(buf, encodeHeader(h, c.sampling)...)
	buf = append(buf, payload...)
	return buf, nil
}

// ReadFrame blocks on r until one full frame arrives. Used by the session
// read pumps, one pump per stream.
func (c *Codec) ReadFrame(r io.Reader) (Frame, error) {
	head := make([]byte, c.HeaderLength())
	if _, err := io.ReadFull(r, head); err != nil {
		if err == io.EOF {
			return Frame{}, ErrStreamClosed
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	h, err := parseHeader(head, c.sampling)
	if err != nil {
		return Frame{}, err
	}
	if h.PayloadLen > c.maxPayload {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadLen)
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame encodes payload and writes the whole frame to w.
func (c *Codec) WriteFrame(w io.Writer, payload []byte) error {
	buf, err := c.Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Latency returns the one-way delay for a sampled header against now.
// Wraps every ~49 days of uint32 milliseconds, which is fine for a
// measurement aid.
func (h Header) Latency(now time.Time) time.Duration {
	delta := uint32(now.UnixMilli()) - h.SentAtMS
	return time.Duration(delta) * time.Millisecond
}

// Decoder delimits a byte stream into frames without blocking. Callers feed
// whatever bytes are currently available and poll Next.
type Decoder struct {
	codec   *Codec
	buf     []byte
	corrupt bool
	closed  bool
}

func NewDecoder(codec *Codec) *Decoder {
	return &Decoder{codec: codec}
}

// Feed appends newly arrived bytes.
func (d *Decoder) Feed(p []byte) {
	if d.closed || d.corrupt {
		return
	}
	d.buf = append(d.buf, p...)
}

// Close marks the stream terminal. In-flight Next calls observe
// ErrStreamClosed rather than blocking on data that will never arrive.
func (d *Decoder) Close() {
	d.closed = true
	d.buf = nil
}

// Next returns the next complete frame. ErrNeedMoreData means feed and
// retry; ErrCorruptStream is terminal and the session must be torn down.
//
// The magic is checked as soon as four bytes are buffered, before the
// length field is trusted, so a bogus length on a desynchronized stream is
// never used to consume payload bytes.
func (d *Decoder) Next() (Frame, error) {
	if d.closed {
		return Frame{}, ErrStreamClosed
	}
	if d.corrupt {
		return Frame{}, ErrCorruptStream
	}
	if len(d.buf) < 4 {
		return Frame{}, ErrNeedMoreData
	}
	if peeked := uint32(d.buf[0])<<24 | uint32(d.buf[1])<<16 | uint32(d.buf[2])<<8 | uint32(d.buf[3]); peeked != Magic {
		d.corrupt = true
		return Frame{}, ErrCorruptStream
	}
	headerLen := d.codec.HeaderLength()
	if len(d.buf) < headerLen {
		return Frame{}, ErrNeedMoreData
	}
	h, err := parseHeader(d.buf[:headerLen], d.codec.sampling)
	if err != nil {
		d.corrupt = true
		return Frame{}, err
	}
	if h.PayloadLen > d.codec.maxPayload {
		d.corrupt = true
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadLen)
	}
	total := headerLen + int(h.PayloadLen)
	if len(d.buf) < total {
		return Frame{}, ErrNeedMoreData
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, d.buf[headerLen:total])
	d.buf = d.buf[total:]
	return Frame{Header: h, Payload: payload}, nil
}
