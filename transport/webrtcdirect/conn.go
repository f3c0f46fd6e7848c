package webrtcdirect

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
)

var ErrConnectionClosed = errors.New("webrtcdirect: connection closed")

// connection adapts a pion PeerConnection, with its DataChannels as
// substreams, to muxer.MuxedConnection. Each DataChannel is natively
// multiplexed over one SCTP association riding on the DTLS transport, so
// like the QUIC adapter this bypasses the yamux-backed muxer entirely.
type connection struct {
	pc *webrtc.PeerConnection

	localPeer, remotePeer peer.ID
	localAddr, remoteAddr multiaddr.Multiaddr

	nextID atomic.Uint32
	accept chan *dataChannelStream
	closed atomic.Bool
}

func newConnection(pc *webrtc.PeerConnection, localPeer, remotePeer peer.ID, localAddr, remoteAddr multiaddr.Multiaddr) *connection {
	c := &connection{
		pc: pc, localPeer: localPeer, remotePeer: remotePeer,
		localAddr: localAddr, remoteAddr: remoteAddr,
		accept: make(chan *dataChannelStream, 16),
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s := newDataChannelStream(c.nextID.Add(1), dc)
		select {
		case c.accept <- s:
		default:
			// Backlog full: drop the channel rather than block pion's
			// signaling goroutine.
			s.Close()
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed {
			c.closed.Store(true)
		}
	})
	return c
}

func (c *connection) OpenStream(ctx context.Context) (muxer.MuxedStream, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}

	id := c.nextID.Add(1)
	label := fmt.Sprintf("stream-%d", id)
	negotiated := false
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Negotiated: &negotiated})
	if err != nil {
		return nil, err
	}

	opened := make(chan struct{})
	dc.OnOpen(func() { close(opened) })

	select {
	case <-opened:
	case <-ctx.Done():
		dc.Close()
		return nil, ctx.Err()
	}

	return newDataChannelStream(id, dc), nil
}

func (c *connection) AcceptStream() (muxer.MuxedStream, error) {
	s, ok := <-c.accept
	if !ok {
		return nil, ErrConnectionClosed
	}
	return s, nil
}

func (c *connection) Close() error {
	c.closed.Store(true)
	return c.pc.Close()
}

func (c *connection) IsClosed() bool { return c.closed.Load() }

func (c *connection) LocalPeer() peer.ID                 { return c.localPeer }
func (c *connection) RemotePeer() peer.ID                { return c.remotePeer }
func (c *connection) LocalAddr() multiaddr.Multiaddr  { return c.localAddr }
func (c *connection) RemoteAddr() multiaddr.Multiaddr { return c.remoteAddr }
