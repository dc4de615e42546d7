package protocol

import "encoding/binary"

const (
	// Magic opens every frame. A mismatch at a frame boundary means the
	// stream is desynchronized and unrecoverable.
	Magic uint32 = 0x9A0DC799 // 2584594329

	// Version is the current header version octet.
	Version uint8 = 1

	// HeaderSize is the fixed header length without sampling fields.
	HeaderSize = 9

	// HeaderSizeSampling adds a send timestamp and a running sample
	// counter for cross-session latency measurement.
	HeaderSizeSampling = 17
)

// HeaderLength returns the process-wide header length for the given
// sampling mode.
func HeaderLength(sampling bool) int {
	if sampling {
		return HeaderSizeSampling
	}
	return HeaderSize
}

// Header is the fixed frame header. SentAtMS and SampleCount are meaningful
// only when the encoding side runs in sampling mode.
type Header struct {
	Magic       uint32
	Version     uint8
	PayloadLen  uint32
	SentAtMS    uint32
	SampleCount uint32
}

// Frame is one complete length-delimited message.
type Frame struct {
	Header  Header
	Payload []byte
}

// EncodeHeaderBytes serializes a header under the given variant. Frame
// parsing is lossless, so re-encoding a decoded header reproduces the
// exact wire bytes.
func EncodeHeaderBytes(h Header, sampling bool) []byte {
	return encodeHeader(h, sampling)
}

func encodeHeader(h Header, sampling bool) []byte {
	buf := make([]byte, HeaderLength(sampling))
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	binary.BigEndian.PutUint32(buf[5:9], h.PayloadLen)
	if sampling {
		binary.BigEndian.PutUint32(buf[9:13], h.SentAtMS)
		binary.BigEndian.PutUint32(buf[13:17], h.SampleCount)
	}
	return buf
}

func parseHeader(buf []byte, sampling bool) (Header, error) {
	if len(buf) < HeaderLength(sampling) {
		return Header{}, ErrTruncated
	}
	h := Header{
		Magic:      binary.BigEndian.Uint32(buf[0:4]),
		Version:    buf[4],
		PayloadLen: binary.BigEndian.Uint32(buf[5:9]),
	}
	if h.Magic != Magic {
		return Header{}, ErrCorruptStream
	}
	if h.Version != Version {
		return Header{}, ErrUnsupportedVersion
	}
	if sampling {
		h.SentAtMS = binary.BigEndian.Uint32(buf[9:13])
		h.SampleCount = binary.BigEndian.Uint32(buf[13:17])
	}
	return h, nil
}
