package quic

import (
	"context"
	"sync/atomic"

	quicgo "github.com/quic-go/quic-go"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
)

// connection adapts a native QUIC connection to muxer.MuxedConnection.
// QUIC streams are natively multiplexed, so unlike the yamux adapter in
// package muxer this wraps quic-go directly rather than a byte-stream
// security layer.
type connection struct {
	conn quicgo.Connection

	localPeer, remotePeer peer.ID
	localAddr, remoteAddr multiaddr.Multiaddr

	closed atomic.Bool
}

func newConnection(conn quicgo.Connection, localPeer, remotePeer peer.ID, localAddr, remoteAddr multiaddr.Multiaddr) *connection {
	return &connection{
		conn: conn, localPeer: localPeer, remotePeer: remotePeer,
		localAddr: localAddr, remoteAddr: remoteAddr,
	}
}

func (c *connection) OpenStream(ctx context.Context) (muxer.MuxedStream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &stream{stream: s}, nil
}

func (c *connection) AcceptStream() (muxer.MuxedStream, error) {
	s, err := c.conn.AcceptStream(context.Background())
	if err != nil {
		return nil, err
	}
	return &stream{stream: s}, nil
}

func (c *connection) Close() error {
	c.closed.Store(true)
	return c.conn.CloseWithError(0, "")
}

func (c *connection) IsClosed() bool { return c.closed.Load() }

func (c *connection) LocalPeer() peer.ID                 { return c.localPeer }
func (c *connection) RemotePeer() peer.ID                { return c.remotePeer }
func (c *connection) LocalAddr() multiaddr.Multiaddr  { return c.localAddr }
func (c *connection) RemoteAddr() multiaddr.Multiaddr { return c.remoteAddr }
