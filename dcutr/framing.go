package dcutr

import (
	"bufio"
	"context"
	"io"
	"time"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
	"github.com/lanikai/libp2p-core-lite/muxer"
)

// writeFrame and readFrame varint-length-prefix HolePunch messages over a
// DCUtR stream, the same framing security.writeFrame/readFrame use for
// the Noise handshake.

func writeFrame(w muxer.MuxedStream, payload []byte) error {
	prefix := varint.Encode(uint64(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	length, err := varint.DecodeReader(r)
	if err != nil {
		return nil, ErrProtocolViolation
	}
	if length > MaxMessageSize {
		return nil, ErrEncoding
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrProtocolViolation
	}
	return buf, nil
}

// withTimeout races fn against both ctx and a fresh timeout derived from
// it, the combinator spec.md §4.14 requires around every DCUtR stream
// read/write. fn's own blocking call (a stream Read/Write) is not itself
// interruptible, so on timeout its goroutine is left to exit whenever the
// stream is eventually closed by the caller.
func withTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return ErrTimeout
	case err := <-done:
		return err
	}
}

func sendMessage(ctx context.Context, stream muxer.MuxedStream, timeout time.Duration, m holePunchMessage) error {
	return withTimeout(ctx, timeout, func() error {
		return writeFrame(stream, encodeMessage(m))
	})
}

func recvMessage(ctx context.Context, br *bufio.Reader, timeout time.Duration) (holePunchMessage, error) {
	var m holePunchMessage
	err := withTimeout(ctx, timeout, func() error {
		buf, err := readFrame(br)
		if err != nil {
			return err
		}
		decoded, err := decodeMessage(buf)
		if err != nil {
			return err
		}
		m = decoded
		return nil
	})
	return m, err
}
