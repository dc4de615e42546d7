package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Channel labels the two byte streams of one session.
type Channel uint8

const (
	ChannelPrimary   Channel = iota // small/control; carries the descriptor handshake
	ChannelSecondary                // large/bulk
)

func (c Channel) String() string {
	if c == ChannelPrimary {
		return "primary"
	}
	return "secondary"
}

const maxTokenLen = 128

var (
	ErrBadPreamble = errors.New("transport: malformed preamble")
)

// Preamble opens every channel. Token ties the channel to its session;
// Sampling tells the receiver which header variant the sender encodes with,
// before any frame arrives.
type Preamble struct {
	Token    string
	Channel  Channel
	Sampling bool
}

func WritePreamble(w io.Writer, p Preamble) error {
	if p.Token == "" || len(p.Token) > maxTokenLen {
		return fmt.Errorf("%w: token length %d", ErrBadPreamble, len(p.Token))
	}
	if p.Channel > ChannelSecondary {
		return fmt.Errorf("%w: channel %d", ErrBadPreamble, p.Channel)
	}
	buf := make([]byte, 0, 4+len(p.Token)+2)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.Token)))
	buf = append(buf, p.Token...)
	buf = append(buf, byte(p.Channel))
	sampling := byte(0)
	if p.Sampling {
		sampling = 1
	}
	buf = append(buf, sampling)
	_, err := w.Write(buf)
	return err
}

func ReadPreamble(r io.Reader) (Preamble, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Preamble{}, fmt.Errorf("%w: %v", ErrBadPreamble, err)
	}
	tokenLen := binary.BigEndian.Uint32(lenBuf[:])
	if tokenLen == 0 || tokenLen > maxTokenLen {
		return Preamble{}, fmt.Errorf("%w: token length %d", ErrBadPreamble, tokenLen)
	}
	buf := make([]byte, tokenLen+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Preamble{}, fmt.Errorf("%w: %v", ErrBadPreamble, err)
	}
	channel := Channel(buf[tokenLen])
	if channel > ChannelSecondary {
		return Preamble{}, fmt.Errorf("%w: channel %d", ErrBadPreamble, channel)
	}
	sampling := buf[tokenLen+1]
	if sampling > 1 {
		return Preamble{}, fmt.Errorf("%w: sampling octet %d", ErrBadPreamble, sampling)
	}
	return Preamble{
		Token:    string(buf[:tokenLen]),
		Channel:  channel,
		Sampling: sampling == 1,
	}, nil
}
