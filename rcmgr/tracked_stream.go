package rcmgr

import (
	"runtime"
	"sync"

	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
)

// TrackedStream decorates any muxer.MuxedStream (yamux-backed or a
// self-secured transport's native stream) so that the first of Close,
// Reset, or garbage collection releases its reservation on the resource
// manager exactly once (spec.md §4.15).
type TrackedStream struct {
	muxer.MuxedStream

	manager    *Manager
	peer       peer.ID
	protocolID string
	dir        Direction

	once sync.Once
}

// NewTrackedStream wraps s, attributing its reservation to peer p (and,
// if protocolID is non-empty, that protocol's scope too) in direction
// dir. The caller must have already called ReserveStream or
// ReserveProtocolStream before constructing this wrapper.
func NewTrackedStream(s muxer.MuxedStream, manager *Manager, p peer.ID, protocolID string, dir Direction) *TrackedStream {
	t := &TrackedStream{MuxedStream: s, manager: manager, peer: p, protocolID: protocolID, dir: dir}
	runtime.SetFinalizer(t, (*TrackedStream).release)
	return t
}

func (t *TrackedStream) release() {
	t.once.Do(func() {
		t.manager.ReleaseStream(t.protocolID, t.peer, t.dir)
	})
}

// Close closes the underlying stream and releases its reservation.
func (t *TrackedStream) Close() error {
	defer t.release()
	return t.MuxedStream.Close()
}

// Reset forcibly terminates the underlying stream and releases its
// reservation.
func (t *TrackedStream) Reset() error {
	defer t.release()
	return t.MuxedStream.Reset()
}
