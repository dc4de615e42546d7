package protocol

import "errors"

var (
	// ErrNeedMoreData reports that the buffered bytes do not yet hold a
	// complete frame. The caller buffers and retries; never a failure.
	ErrNeedMoreData = errors.New("protocol: need more data")

	// ErrCorruptStream reports a magic mismatch at a frame boundary. There
	// is no resynchronization; the session carrying the stream must close.
	ErrCorruptStream = errors.New("protocol: corrupt stream")

	ErrUnsupportedVersion = errors.New("protocol: unsupported version")
	ErrPayloadTooLarge    = errors.New("protocol: payload too large")
	ErrTruncated          = errors.New("protocol: truncated data")
	ErrStreamClosed       = errors.New("protocol: stream closed")
)
