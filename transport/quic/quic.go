// Package quic implements the QUIC self-secured transport (spec.md
// §4.11): TLS 1.3 embeds the peer's identity directly in the
// certificate, so QUIC connections skip the security and muxer upgrade
// steps (C9/C10) entirely and hand back an already-secured, already
// multiplexed connection.
package quic

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"

	quicgo "github.com/quic-go/quic-go"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/transport"
)

const alpn = "libp2p"

// HandshakeTimeout bounds how long the TLS 1.3 handshake (and the QUIC
// transport handshake riding on it) may take before the dial or accept
// fails.
const HandshakeTimeout = 30 * time.Second

// PeerIDMismatchError reports that the remote's certificate-derived
// PeerID did not match the one expected from the dialed address.
type PeerIDMismatchError struct {
	Expected, Actual string
}

func (e *PeerIDMismatchError) Error() string {
	return "quic: peer id mismatch: expected " + e.Expected + ", got " + e.Actual
}

// Transport is a transport.Transport and muxer.SelfSecuredTransport
// implementation over QUIC. Its Dial/Listen methods are unreachable in
// practice: the upgrade orchestrator only calls DialSecured/ListenSecured
// once it detects this type, per spec.md §4.12.
type Transport struct{}

func (Transport) CanDial(addr multiaddr.Multiaddr) bool   { return isQUICAddr(addr) }
func (Transport) CanListen(addr multiaddr.Multiaddr) bool { return isQUICAddr(addr) }

func isQUICAddr(addr multiaddr.Multiaddr) bool {
	_, ok := addr.FirstByCode(multiaddr.P_QUIC_V1)
	return ok
}

func (Transport) Dial(ctx context.Context, addr multiaddr.Multiaddr) (transport.RawConn, error) {
	return nil, transport.ErrUnsupportedOperation
}

func (Transport) Listen(addr multiaddr.Multiaddr) (transport.Listener, error) {
	return nil, transport.ErrUnsupportedOperation
}

func quicConfig() *quicgo.Config {
	return &quicgo.Config{HandshakeIdleTimeout: HandshakeTimeout}
}

// DialSecured dials addr, deriving a self-signed TLS certificate bound
// to key's identity, and verifies the remote's certificate carries a
// matching libp2p extension for the peer id encoded in addr (if any).
func (Transport) DialSecured(ctx context.Context, addr multiaddr.Multiaddr, key peer.PrivateKey) (muxer.MuxedConnection, error) {
	socketAddr, ok := addr.SocketAddressString()
	if !ok {
		return nil, transport.ErrUnsupportedAddress
	}
	expectedRemote, _ := addr.PeerID()

	cert, err := generateCertificate(key)
	if err != nil {
		return nil, err
	}

	var remotePeer peer.ID
	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{alpn},
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			id, err := verifyPeerCertificate(rawCerts)
			if err != nil {
				return err
			}
			if expectedRemote != "" && id != expectedRemote {
				return &PeerIDMismatchError{Expected: string(expectedRemote), Actual: string(id)}
			}
			remotePeer = id
			return nil
		},
	}

	qconn, err := quicgo.DialAddr(ctx, socketAddr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}

	localID, err := peer.FromPublicKey(key.GetPublic())
	if err != nil {
		qconn.CloseWithError(0, "")
		return nil, err
	}

	localAddr, err := udpAddrToMultiaddr(qconn.LocalAddr())
	if err != nil {
		qconn.CloseWithError(0, "")
		return nil, err
	}

	return newConnection(qconn, localID, remotePeer, localAddr, addr), nil
}

// ListenSecured binds addr and accepts inbound QUIC connections whose
// TLS certificates are verified the same way as the dial path, minus
// the expected-remote check (the listener does not yet know who will
// connect).
func (Transport) ListenSecured(addr multiaddr.Multiaddr, key peer.PrivateKey) (muxer.SecuredListener, error) {
	socketAddr, ok := addr.SocketAddressString()
	if !ok {
		return nil, transport.ErrUnsupportedAddress
	}

	cert, err := generateCertificate(key)
	if err != nil {
		return nil, err
	}

	tlsConf := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{alpn},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true,
		VerifyPeerCertificate: func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			_, err := verifyPeerCertificate(rawCerts)
			return err
		},
	}

	ln, err := quicgo.ListenAddr(socketAddr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}

	localID, err := peer.FromPublicKey(key.GetPublic())
	if err != nil {
		ln.Close()
		return nil, err
	}

	localAddr, err := udpAddrToMultiaddr(ln.Addr())
	if err != nil {
		ln.Close()
		return nil, err
	}

	return &quicListener{ln: ln, localID: localID, localAddr: localAddr}, nil
}

type quicListener struct {
	ln        *quicgo.Listener
	localID   peer.ID
	localAddr multiaddr.Multiaddr
}

func (l *quicListener) Accept(ctx context.Context) (muxer.MuxedConnection, error) {
	qconn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}

	state := qconn.ConnectionState().TLS
	var remotePeer peer.ID
	if len(state.PeerCertificates) > 0 {
		rawCerts := make([][]byte, len(state.PeerCertificates))
		for i, c := range state.PeerCertificates {
			rawCerts[i] = c.Raw
		}
		if id, err := verifyPeerCertificate(rawCerts); err == nil {
			remotePeer = id
		}
	}

	remoteAddr, err := udpAddrToMultiaddr(qconn.RemoteAddr())
	if err != nil {
		qconn.CloseWithError(0, "")
		return nil, err
	}

	return newConnection(qconn, l.localID, remotePeer, l.localAddr, remoteAddr), nil
}

func (l *quicListener) Close() error                  { return l.ln.Close() }
func (l *quicListener) Addr() multiaddr.Multiaddr { return l.localAddr }

func udpAddrToMultiaddr(addr net.Addr) (multiaddr.Multiaddr, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return multiaddr.Multiaddr{}, err
	}
	port, err := parseUint16(portStr)
	if err != nil {
		return multiaddr.Multiaddr{}, err
	}
	return multiaddr.QUIC(host, port)
}

func parseUint16(s string) (uint16, error) {
	var v int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, &net.AddrError{Err: "invalid port", Addr: s}
		}
		v = v*10 + int(c-'0')
	}
	return uint16(v), nil
}
