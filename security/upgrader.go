package security

import (
	"context"

	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/transport"
)

// Upgrader negotiates one configured Protocol via multistream-select and
// runs its handshake.
type Upgrader struct {
	LocalKey   peer.PrivateKey
	Protocols  []Protocol
}

func (u *Upgrader) protocolIDs() []string {
	ids := make([]string, len(u.Protocols))
	for i, p := range u.Protocols {
		ids[i] = p.ProtocolID()
	}
	return ids
}

func (u *Upgrader) byID(id string) Protocol {
	for _, p := range u.Protocols {
		if p.ProtocolID() == id {
			return p
		}
	}
	return nil
}

// SecureOutbound negotiates and runs the handshake as the dialer.
func (u *Upgrader) SecureOutbound(ctx context.Context, conn transport.RawConn, expectedRemote peer.ID) (SecureConn, error) {
	id, br, err := NegotiateInitiator(conn, u.protocolIDs())
	if err != nil {
		return nil, err
	}
	proto := u.byID(id)
	if proto == nil {
		return nil, ErrNegotiationFailed
	}
	return proto.SecureOutbound(ctx, conn, br, u.LocalKey, expectedRemote)
}

// SecureInbound negotiates and runs the handshake as the listener.
func (u *Upgrader) SecureInbound(ctx context.Context, conn transport.RawConn) (SecureConn, error) {
	id, br, err := NegotiateResponder(conn, u.protocolIDs())
	if err != nil {
		return nil, err
	}
	proto := u.byID(id)
	if proto == nil {
		return nil, ErrNegotiationFailed
	}
	return proto.SecureInbound(ctx, conn, br, u.LocalKey)
}
