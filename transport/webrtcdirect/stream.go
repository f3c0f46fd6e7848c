package webrtcdirect

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

var errStreamClosed = errors.New("webrtcdirect: stream closed")

// dataChannelStream adapts a single pion DataChannel into a
// muxer.MuxedStream. Unlike yamux's byte-stream framing, each Send on the
// channel is a discrete SCTP message; Read reassembles those messages
// into the continuous byte stream callers expect.
type dataChannelStream struct {
	id uint32
	dc *webrtc.DataChannel

	protocolID string

	mu  sync.Mutex
	buf []byte

	msgCh     chan []byte
	doneCh    chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newDataChannelStream(id uint32, dc *webrtc.DataChannel) *dataChannelStream {
	s := &dataChannelStream{
		id:     id,
		dc:     dc,
		msgCh:  make(chan []byte, 64),
		doneCh: make(chan struct{}),
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.closed.Load() {
			return
		}
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		select {
		case s.msgCh <- data:
		case <-s.doneCh:
		}
	})
	dc.OnClose(func() {
		s.closeOnce.Do(func() { close(s.doneCh) })
	})
	return s
}

func (s *dataChannelStream) ID() uint32 { return s.id }

func (s *dataChannelStream) ProtocolID() string      { return s.protocolID }
func (s *dataChannelStream) SetProtocolID(id string) { s.protocolID = id }

func (s *dataChannelStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if len(s.buf) > 0 {
		n := copy(p, s.buf)
		s.buf = s.buf[n:]
		s.mu.Unlock()
		return n, nil
	}
	s.mu.Unlock()

	select {
	case data, ok := <-s.msgCh:
		if !ok {
			return 0, io.EOF
		}
		n := copy(p, data)
		if n < len(data) {
			s.mu.Lock()
			s.buf = append(s.buf, data[n:]...)
			s.mu.Unlock()
		}
		return n, nil
	case <-s.doneCh:
		return 0, io.EOF
	}
}

func (s *dataChannelStream) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, errStreamClosed
	}
	if err := s.dc.Send(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *dataChannelStream) Close() error {
	s.closed.Store(true)
	s.closeOnce.Do(func() { close(s.doneCh) })
	return s.dc.Close()
}

// CloseWrite has no SCTP-level half-close equivalent on a DataChannel;
// the peer observes end-of-stream via the higher-level protocol instead.
func (s *dataChannelStream) CloseWrite() error { return nil }

func (s *dataChannelStream) CloseRead() error {
	s.closed.Store(true)
	return nil
}

func (s *dataChannelStream) Reset() error { return s.Close() }
