package quic

import (
	quicgo "github.com/quic-go/quic-go"
)

// stream adapts a native QUIC stream to muxer.MuxedStream.
type stream struct {
	stream     quicgo.Stream
	protocolID string
}

func (s *stream) ID() uint32 { return uint32(s.stream.StreamID()) }

func (s *stream) ProtocolID() string        { return s.protocolID }
func (s *stream) SetProtocolID(id string) { s.protocolID = id }

func (s *stream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *stream) Write(p []byte) (int, error) { return s.stream.Write(p) }

// Close gracefully closes both directions: the write side via the
// stream's own FIN, the read side by cancelling further reads.
func (s *stream) Close() error {
	err := s.stream.Close()
	s.stream.CancelRead(0)
	return err
}

// CloseWrite half-closes the write side only.
func (s *stream) CloseWrite() error { return s.stream.Close() }

// CloseRead half-closes the read side only.
func (s *stream) CloseRead() error {
	s.stream.CancelRead(0)
	return nil
}

// Reset abruptly terminates both directions of the stream.
func (s *stream) Reset() error {
	s.stream.CancelWrite(0)
	s.stream.CancelRead(0)
	return nil
}
