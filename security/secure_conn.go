package security

import (
	"bufio"
	"context"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
)

// SecureConn is a framed, authenticated byte stream with its own
// encrypt/decrypt layer, produced by a successful handshake.
type SecureConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	LocalPeer() peer.ID
	RemotePeer() peer.ID
	LocalAddr() multiaddr.Multiaddr
	RemoteAddr() multiaddr.Multiaddr
}

// Protocol is one security handshake implementation, identified by its
// multistream-select protocol id.
// br carries any bytes multistream-select already buffered past the
// negotiated protocol line, so the handshake never re-wraps conn in a
// second bufio.Reader and loses pipelined data.
type Protocol interface {
	ProtocolID() string
	SecureOutbound(ctx context.Context, conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey, expectedRemote peer.ID) (SecureConn, error)
	SecureInbound(ctx context.Context, conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey) (SecureConn, error)
}

// RawSecurable is the subset of transport.RawConn a Protocol needs; kept
// narrow so tests can hand it an in-process pipe without importing the
// transport package.
type RawSecurable interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	LocalAddr() multiaddr.Multiaddr
	RemoteAddr() multiaddr.Multiaddr
}
