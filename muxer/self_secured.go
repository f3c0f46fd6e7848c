package muxer

import (
	"context"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/transport"
)

// SelfSecuredTransport is implemented by transports whose security and
// multiplexing are built into the protocol itself (QUIC, WebRTC-Direct),
// per spec.md §4.11. The upgrade orchestrator (upgrader.Upgrader) detects
// this interface and bypasses the security/muxer upgrade steps (C9/C10)
// entirely, calling DialSecured/ListenSecured directly instead.
type SelfSecuredTransport interface {
	transport.Transport
	DialSecured(ctx context.Context, addr multiaddr.Multiaddr, key peer.PrivateKey) (MuxedConnection, error)
	ListenSecured(addr multiaddr.Multiaddr, key peer.PrivateKey) (SecuredListener, error)
}

// SecuredListener accepts already-upgraded MuxedConnections, produced by
// a SelfSecuredTransport's ListenSecured.
type SecuredListener interface {
	Accept(ctx context.Context) (MuxedConnection, error)
	Close() error
	Addr() multiaddr.Multiaddr
}
