// Package muxer implements the stream multiplexer (spec.md §4.10) as an
// adapter over go-yamux, presenting the MuxedConnection/MuxedStream
// contract instead of yamux's own net.Conn-shaped API.
package muxer

import (
	"context"
	"errors"
	"time"

	yamux "github.com/libp2p/go-yamux/v4"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
)

var (
	ErrConnectionClosed = errors.New("muxer: connection closed")
	ErrResetByPeer       = errors.New("muxer: stream reset")
)

// MuxedStream is the logical-stream contract any multiplexing backend
// must satisfy. The yamux-backed Stream below implements it, as does
// the QUIC native-stream adapter in transport/quic.
type MuxedStream interface {
	ID() uint32
	ProtocolID() string
	SetProtocolID(id string)
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	CloseWrite() error
	CloseRead() error
	Reset() error
}

// MuxedConnection is the connection-level contract any multiplexing
// backend must satisfy. Self-secured transports (QUIC, WebRTC-Direct)
// implement this directly instead of going through the yamux adapter.
type MuxedConnection interface {
	OpenStream(ctx context.Context) (MuxedStream, error)
	AcceptStream() (MuxedStream, error)
	Close() error
	IsClosed() bool
	LocalPeer() peer.ID
	RemotePeer() peer.ID
	LocalAddr() multiaddr.Multiaddr
	RemoteAddr() multiaddr.Multiaddr
}

// Connection presents one multiplexed connection over which any number
// of logical streams may be opened or accepted.
type Connection struct {
	session *yamux.Session

	localPeer, remotePeer   peer.ID
	localAddr, remoteAddr   multiaddr.Multiaddr
}

func yamuxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.EnableKeepAlive = true
	cfg.KeepAliveInterval = 30 * time.Second
	cfg.ConnectionWriteTimeout = 10 * time.Second
	return cfg
}

// NewClient wraps conn as the initiating side of a yamux session.
func NewClient(conn ReadWriteCloser, localPeer, remotePeer peer.ID, localAddr, remoteAddr multiaddr.Multiaddr) (*Connection, error) {
	session, err := yamux.Client(conn, yamuxConfig())
	if err != nil {
		return nil, err
	}
	return &Connection{
		session: session, localPeer: localPeer, remotePeer: remotePeer,
		localAddr: localAddr, remoteAddr: remoteAddr,
	}, nil
}

// NewServer wraps conn as the accepting side of a yamux session.
func NewServer(conn ReadWriteCloser, localPeer, remotePeer peer.ID, localAddr, remoteAddr multiaddr.Multiaddr) (*Connection, error) {
	session, err := yamux.Server(conn, yamuxConfig())
	if err != nil {
		return nil, err
	}
	return &Connection{
		session: session, localPeer: localPeer, remotePeer: remotePeer,
		localAddr: localAddr, remoteAddr: remoteAddr,
	}, nil
}

// ReadWriteCloser is the minimal shape yamux needs from the underlying
// secured connection.
type ReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// OpenStream allocates a new outbound stream, blocking until the remote
// accepts it or ctx is cancelled.
func (c *Connection) OpenStream(ctx context.Context) (MuxedStream, error) {
	s, err := c.session.OpenStream(ctx)
	if err != nil {
		return nil, translateYamuxError(err)
	}
	return &Stream{stream: s}, nil
}

// AcceptStream waits for the next inbound stream.
func (c *Connection) AcceptStream() (MuxedStream, error) {
	s, err := c.session.AcceptStream()
	if err != nil {
		return nil, translateYamuxError(err)
	}
	return &Stream{stream: s}, nil
}

// Close closes every open stream, then the connection itself.
func (c *Connection) Close() error { return c.session.Close() }

// IsClosed reports whether the connection has been closed.
func (c *Connection) IsClosed() bool { return c.session.IsClosed() }

// LocalPeer, RemotePeer, LocalAddr, RemoteAddr report the identity data
// threaded through from the security upgrade step.
func (c *Connection) LocalPeer() peer.ID                 { return c.localPeer }
func (c *Connection) RemotePeer() peer.ID                { return c.remotePeer }
func (c *Connection) LocalAddr() multiaddr.Multiaddr  { return c.localAddr }
func (c *Connection) RemoteAddr() multiaddr.Multiaddr { return c.remoteAddr }

func translateYamuxError(err error) error {
	if errors.Is(err, yamux.ErrSessionShutdown) || errors.Is(err, yamux.ErrConnectionReset) {
		return ErrConnectionClosed
	}
	return err
}
