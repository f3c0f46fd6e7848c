package muxer

import (
	"io"
	"sync/atomic"

	yamux "github.com/libp2p/go-yamux/v4"
)

// Stream is one bidirectional logical stream over a Connection. Reads and
// writes are unframed byte operations; backpressure and frame
// interleaving with other streams on the same connection are yamux's.
type Stream struct {
	stream     *yamux.Stream
	protocolID string
	readClosed atomic.Bool
}

// ID returns the connection-local stream id. Yamux assigns odd ids to
// streams opened by the client side of the session (NewClient) and even
// ids to streams opened by the server side (NewServer), satisfying the
// parity rule named in spec.md §3.
func (s *Stream) ID() uint32 { return s.stream.StreamID() }

// ProtocolID returns the application protocol negotiated for this
// stream, if any has been set via SetProtocolID.
func (s *Stream) ProtocolID() string { return s.protocolID }

// SetProtocolID records the protocol negotiated for this stream after
// it was opened or accepted (multistream-select runs on the stream
// itself, one layer above the muxer).
func (s *Stream) SetProtocolID(id string) { s.protocolID = id }

// Read reads from the stream, blocking until data arrives, the remote
// half-closes its write side, or the stream is reset.
func (s *Stream) Read(p []byte) (int, error) {
	if s.readClosed.Load() {
		return 0, io.EOF
	}
	n, err := s.stream.Read(p)
	return n, translateYamuxError(err)
}

// Write writes to the stream, blocking on the remote's send window.
func (s *Stream) Write(p []byte) (int, error) {
	n, err := s.stream.Write(p)
	return n, translateYamuxError(err)
}

// Close closes both halves of the stream.
func (s *Stream) Close() error { return s.stream.Close() }

// CloseWrite half-closes the write side; the stream remains readable
// until the remote also closes or resets.
func (s *Stream) CloseWrite() error { return s.stream.CloseWrite() }

// CloseRead half-closes the read side; further reads return io.EOF
// without affecting the write side. Yamux has no wire-level read-close
// signal, so this is enforced locally rather than delegated.
func (s *Stream) CloseRead() error {
	s.readClosed.Store(true)
	return nil
}

// Reset forcibly and irrecoverably terminates the stream.
func (s *Stream) Reset() error { return s.stream.Reset() }
