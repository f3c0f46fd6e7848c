// Package upgrader implements the upgrade orchestrator (spec.md §4.12):
// it composes the raw transport, security, and muxer layers into a
// MuxedConnection, bypassing security/muxing for self-secured transports,
// and gates every admission through the resource manager.
package upgrader

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/rcmgr"
	"github.com/lanikai/libp2p-core-lite/security"
	"github.com/lanikai/libp2p-core-lite/transport"
)

// ErrNoTransportForAddress is returned when no registered transport's
// CanDial/CanListen matches the given address.
var ErrNoTransportForAddress = errors.New("upgrader: no transport for address")

// Upgrader composes a set of transports with a security upgrader and the
// resource manager to produce MuxedConnections on dial or accept.
type Upgrader struct {
	Transports []transport.Transport
	Security   *security.Upgrader
	Resources  *rcmgr.Manager
	LocalKey   peer.PrivateKey
}

func (u *Upgrader) transportFor(addr multiaddr.Multiaddr, forListen bool) transport.Transport {
	for _, tr := range u.Transports {
		if forListen && tr.CanListen(addr) {
			return tr
		}
		if !forListen && tr.CanDial(addr) {
			return tr
		}
	}
	return nil
}

// Dial upgrades a raw or self-secured dial into a MuxedConnection,
// reserving an outbound connection against remote before attempting
// anything and releasing it on any failure.
func (u *Upgrader) Dial(ctx context.Context, addr multiaddr.Multiaddr, remote peer.ID) (muxer.MuxedConnection, error) {
	tr := u.transportFor(addr, false)
	if tr == nil {
		return nil, ErrNoTransportForAddress
	}

	if err := u.Resources.ReserveOutboundConn(remote); err != nil {
		return nil, err
	}
	conn, err := u.dialWithTransport(ctx, tr, addr, remote)
	if err != nil {
		u.Resources.ReleaseConn(remote, rcmgr.Outbound)
		return nil, err
	}
	if _, ok := addr.FirstByCode(multiaddr.P_CIRCUIT); ok {
		conn = muxer.MarkViaRelay(conn)
	}
	return conn, nil
}

func (u *Upgrader) dialWithTransport(ctx context.Context, tr transport.Transport, addr multiaddr.Multiaddr, remote peer.ID) (muxer.MuxedConnection, error) {
	if selfSecured, ok := tr.(muxer.SelfSecuredTransport); ok {
		return selfSecured.DialSecured(ctx, addr, u.LocalKey)
	}

	raw, err := tr.Dial(ctx, addr)
	if err != nil {
		return nil, errors.Wrap(err, "upgrader: raw dial")
	}

	secured, err := u.Security.SecureOutbound(ctx, raw, remote)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "upgrader: security upgrade")
	}

	localID, err := peer.FromPublicKey(u.LocalKey.GetPublic())
	if err != nil {
		secured.Close()
		return nil, errors.Wrap(err, "upgrader: derive local peer id")
	}

	conn, err := muxer.NewClient(secured, localID, secured.RemotePeer(), secured.LocalAddr(), secured.RemoteAddr())
	if err != nil {
		return nil, errors.Wrap(err, "upgrader: muxer negotiation")
	}
	return conn, nil
}

// Listener accepts inbound MuxedConnections, transparently handling both
// the raw-upgrade path and self-secured transports.
type Listener struct {
	u       *Upgrader
	raw     transport.Listener
	secured muxer.SecuredListener
}

// Listen binds addr with whichever registered transport claims it.
func (u *Upgrader) Listen(addr multiaddr.Multiaddr) (*Listener, error) {
	tr := u.transportFor(addr, true)
	if tr == nil {
		return nil, ErrNoTransportForAddress
	}

	if selfSecured, ok := tr.(muxer.SelfSecuredTransport); ok {
		ln, err := selfSecured.ListenSecured(addr, u.LocalKey)
		if err != nil {
			return nil, err
		}
		return &Listener{u: u, secured: ln}, nil
	}

	ln, err := tr.Listen(addr)
	if err != nil {
		return nil, err
	}
	return &Listener{u: u, raw: ln}, nil
}

// Accept waits for and upgrades the next inbound connection, reserving
// an inbound connection slot before the upgrade and releasing it if the
// upgrade fails.
func (l *Listener) Accept(ctx context.Context) (muxer.MuxedConnection, error) {
	if l.secured != nil {
		conn, err := l.secured.Accept(ctx)
		if err != nil {
			return nil, err
		}
		if err := l.u.Resources.ReserveInboundConn(conn.RemotePeer()); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}

	raw, err := l.raw.Accept(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "upgrader: raw accept")
	}

	secured, err := l.u.Security.SecureInbound(ctx, raw)
	if err != nil {
		raw.Close()
		return nil, errors.Wrap(err, "upgrader: security upgrade")
	}

	if err := l.u.Resources.ReserveInboundConn(secured.RemotePeer()); err != nil {
		secured.Close()
		return nil, err
	}

	localID, err := peer.FromPublicKey(l.u.LocalKey.GetPublic())
	if err != nil {
		secured.Close()
		l.u.Resources.ReleaseConn(secured.RemotePeer(), rcmgr.Inbound)
		return nil, errors.Wrap(err, "upgrader: derive local peer id")
	}

	conn, err := muxer.NewServer(secured, localID, secured.RemotePeer(), secured.LocalAddr(), secured.RemoteAddr())
	if err != nil {
		secured.Close()
		l.u.Resources.ReleaseConn(secured.RemotePeer(), rcmgr.Inbound)
		return nil, errors.Wrap(err, "upgrader: muxer negotiation")
	}
	return conn, nil
}

// Close closes the listener.
func (l *Listener) Close() error {
	if l.secured != nil {
		return l.secured.Close()
	}
	return l.raw.Close()
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() multiaddr.Multiaddr {
	if l.secured != nil {
		return l.secured.Addr()
	}
	return l.raw.Addr()
}
