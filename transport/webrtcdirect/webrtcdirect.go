// Package webrtcdirect implements the WebRTC-Direct self-secured
// transport (spec.md §4.11): DTLS secures the connection and SCTP data
// channels provide native multiplexing, so like QUIC it skips the
// security and muxer upgrade steps (C9/C10) entirely.
//
// WebRTC-Direct has no conventional signaling channel: real libp2p nodes
// rely on the dialer already knowing the listener's ICE credentials and
// certificate fingerprint (the latter from the address's /certhash
// component) to synthesize the other side's session description locally.
// Demuxing multiple simultaneous dialers behind one fixed ICE credential
// pair still requires knowing each dialer's randomly generated ufrag up
// front, which this package solves with a small unsigned rendezvous
// datagram sent ahead of the real ICE/DTLS/SCTP traffic on the same UDP
// socket (see demux.go); this is a deliberate simplification documented
// in DESIGN.md, not a faithful reproduction of go-libp2p's listener.
package webrtcdirect

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/multihash"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/protoutil"
	"github.com/lanikai/libp2p-core-lite/transport"
)

// HandshakeTimeout bounds the ICE/DTLS/SCTP handshake, matching the
// QUIC transport's handshake budget.
const HandshakeTimeout = 30 * time.Second

var (
	ErrNoCertHash          = errors.New("webrtcdirect: address carries no /certhash component")
	ErrFingerprintMismatch = errors.New("webrtcdirect: remote certificate fingerprint mismatch")
	ErrHandshakeTimeout    = errors.New("webrtcdirect: handshake timed out")
)

// PeerIDMismatchError reports that the remote's certificate-derived PeerID
// did not match the one expected from the dialed address, the same check
// transport/quic performs after its own TLS extension verification.
type PeerIDMismatchError struct {
	Expected, Actual string
}

func (e *PeerIDMismatchError) Error() string {
	return "webrtcdirect: peer id mismatch: expected " + e.Expected + ", got " + e.Actual
}

const (
	preflightFieldFingerprint = 1
	preflightFieldUfrag       = 2
	preflightFieldPwd         = 3
)

// Transport is a transport.Transport and muxer.SelfSecuredTransport
// implementation over WebRTC-Direct. Its Dial/Listen methods are
// unreachable in practice, the same way QUIC's are: the upgrade
// orchestrator only calls DialSecured/ListenSecured.
type Transport struct{}

func (Transport) CanDial(addr multiaddr.Multiaddr) bool   { return isWebRTCDirectAddr(addr) }
func (Transport) CanListen(addr multiaddr.Multiaddr) bool { return isWebRTCDirectAddr(addr) }

func isWebRTCDirectAddr(addr multiaddr.Multiaddr) bool {
	_, ok := addr.FirstByCode(multiaddr.P_WEBRTC_DIRECT)
	return ok
}

func (Transport) Dial(ctx context.Context, addr multiaddr.Multiaddr) (transport.RawConn, error) {
	return nil, transport.ErrUnsupportedOperation
}

func (Transport) Listen(addr multiaddr.Multiaddr) (transport.Listener, error) {
	return nil, transport.ErrUnsupportedOperation
}

func certHashes(addr multiaddr.Multiaddr) ([]multihash.Multihash, error) {
	comps := addr.FilterByCode(multiaddr.P_CERTHASH)
	hashes := make([]multihash.Multihash, 0, len(comps))
	for _, c := range comps {
		mh, err := multihash.Decode(c.Value)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, mh)
	}
	return hashes, nil
}

func randomCredential(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func encodePreflight(fingerprint []byte, ufrag, pwd string) []byte {
	buf := []byte{preflightMagic}
	buf = protoutil.Encode(buf, preflightFieldFingerprint, fingerprint)
	buf = protoutil.Encode(buf, preflightFieldUfrag, []byte(ufrag))
	buf = protoutil.Encode(buf, preflightFieldPwd, []byte(pwd))
	return buf
}

func decodePreflight(buf []byte) (fingerprint []byte, ufrag, pwd string, err error) {
	fields, err := protoutil.Decode(buf, 0)
	if err != nil {
		return nil, "", "", err
	}
	fp, ok := protoutil.First(fields, preflightFieldFingerprint)
	if !ok {
		return nil, "", "", errors.New("webrtcdirect: preflight missing fingerprint")
	}
	uf, ok := protoutil.First(fields, preflightFieldUfrag)
	if !ok {
		return nil, "", "", errors.New("webrtcdirect: preflight missing ufrag")
	}
	pw, ok := protoutil.First(fields, preflightFieldPwd)
	if !ok {
		return nil, "", "", errors.New("webrtcdirect: preflight missing pwd")
	}
	return fp, string(uf), string(pw), nil
}

// DialSecured dials addr, verifying the remote's DTLS certificate against
// the /certhash component(s) carried in addr and, via its embedded libp2p
// extension, against addr's expected /p2p peer id.
func (Transport) DialSecured(ctx context.Context, addr multiaddr.Multiaddr, key peer.PrivateKey) (muxer.MuxedConnection, error) {
	socketAddr, ok := addr.SocketAddressString()
	if !ok {
		return nil, transport.ErrUnsupportedAddress
	}
	wantHashes, err := certHashes(addr)
	if err != nil {
		return nil, err
	}
	if len(wantHashes) == 0 {
		return nil, ErrNoCertHash
	}
	expectedRemote, _ := addr.PeerID()

	cert, err := generateCertificate(key)
	if err != nil {
		return nil, err
	}

	ufrag, err := randomCredential(8)
	if err != nil {
		return nil, err
	}
	pwd, err := randomCredential(16)
	if err != nil {
		return nil, err
	}

	remoteUDPAddr, err := net.ResolveUDPAddr("udp", socketAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}

	preflight := encodePreflight(cert.sum.Digest, ufrag, pwd)
	if _, err := conn.WriteToUDP(preflight, remoteUDPAddr); err != nil {
		conn.Close()
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICECredentials(ufrag, pwd)
	loggerFactory := logging.NewDefaultLoggerFactory()
	mux := webrtc.NewICEUDPMux(loggerFactory.NewLogger("webrtcdirect"), conn)
	se.SetICEUDPMux(mux)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(webrtc.Configuration{Certificates: []webrtc.Certificate{cert.pion}})
	if err != nil {
		conn.Close()
		return nil, err
	}

	initialDC, err := pc.CreateDataChannel("handshake", nil)
	if err != nil {
		pc.Close()
		return nil, err
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, err
	}

	host, _ := addr.IPAddress()
	port, _ := addr.UDPPort()
	remoteFingerprint := sdpFingerprint(wantHashes[0].Digest)
	answer := synthesizeRemoteSDP(webrtc.SDPTypeAnswer, fixedUfrag, fixedPwd, remoteFingerprint, host, port)
	if err := pc.SetRemoteDescription(answer); err != nil {
		pc.Close()
		return nil, err
	}

	if err := waitConnected(ctx, pc); err != nil {
		pc.Close()
		return nil, err
	}

	remoteDER, err := remoteCertificateDER(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := verifyRemoteFingerprint(remoteDER, wantHashes); err != nil {
		pc.Close()
		return nil, err
	}
	remotePeer, err := verifyPeerCertificate(remoteDER)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if expectedRemote != "" && remotePeer != expectedRemote {
		pc.Close()
		return nil, &PeerIDMismatchError{Expected: string(expectedRemote), Actual: string(remotePeer)}
	}

	localID, err := peer.FromPublicKey(key.GetPublic())
	if err != nil {
		pc.Close()
		return nil, err
	}

	localAddr, _ := multiaddr.WebRTCDirect(conn.LocalAddr().(*net.UDPAddr).IP.String(), uint16(conn.LocalAddr().(*net.UDPAddr).Port))

	// The initial data channel only serves to make CreateOffer produce a
	// non-empty SDP m= line; callers open their own streams afterward.
	_ = initialDC

	return newConnection(pc, localID, remotePeer, localAddr, addr), nil
}

// ListenSecured binds addr and accepts inbound WebRTC-Direct connections
// one at a time: concurrent dial attempts beyond the one currently being
// negotiated queue behind the next Accept call, a deliberate
// simplification recorded in DESIGN.md.
func (Transport) ListenSecured(addr multiaddr.Multiaddr, key peer.PrivateKey) (muxer.SecuredListener, error) {
	socketAddr, ok := addr.SocketAddressString()
	if !ok {
		return nil, transport.ErrUnsupportedAddress
	}

	laddr, err := net.ResolveUDPAddr("udp", socketAddr)
	if err != nil {
		return nil, err
	}
	udpConn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	cert, err := generateCertificate(key)
	if err != nil {
		udpConn.Close()
		return nil, err
	}

	localID, err := peer.FromPublicKey(key.GetPublic())
	if err != nil {
		udpConn.Close()
		return nil, err
	}

	host, _ := addr.IPAddress()
	port, _ := addr.UDPPort()
	localAddr, err := multiaddr.WebRTCDirect(host, port)
	if err != nil {
		udpConn.Close()
		return nil, err
	}
	if s, err := fingerprintComponent(cert.sum); err == nil {
		localAddr = localAddr.Append(s)
	}

	return &listener{
		demux:     newDemuxConn(udpConn),
		cert:      cert,
		localID:   localID,
		localAddr: localAddr,
	}, nil
}

func fingerprintComponent(mh multihash.Multihash) (multiaddr.Multiaddr, error) {
	encoded, err := multibase.Encode(multibase.Base64url, mh.Bytes())
	if err != nil {
		return multiaddr.Multiaddr{}, err
	}
	return multiaddr.Parse("/certhash/" + encoded)
}

type listener struct {
	demux     *demuxConn
	cert      *localCert
	localID   peer.ID
	localAddr multiaddr.Multiaddr
}

func (l *listener) Accept(ctx context.Context) (muxer.MuxedConnection, error) {
	var pre preflightPacket
	select {
	case pre = <-l.demux.preflight:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fingerprint, ufrag, pwd, err := decodePreflight(pre.data)
	if err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	se.SetICECredentials(fixedUfrag, fixedPwd)
	se.SetLite(true)
	loggerFactory := logging.NewDefaultLoggerFactory()
	mux := webrtc.NewICEUDPMux(loggerFactory.NewLogger("webrtcdirect"), l.demux)
	se.SetICEUDPMux(mux)

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(webrtc.Configuration{Certificates: []webrtc.Certificate{l.cert.pion}})
	if err != nil {
		return nil, err
	}

	remoteUDPAddr, ok := pre.addr.(*net.UDPAddr)
	if !ok {
		pc.Close()
		return nil, errors.New("webrtcdirect: unexpected preflight source address type")
	}

	offer := synthesizeRemoteSDP(webrtc.SDPTypeOffer, ufrag, pwd, sdpFingerprint(fingerprint), remoteUDPAddr.IP.String(), uint16(remoteUDPAddr.Port))
	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return nil, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return nil, err
	}

	if err := waitConnected(ctx, pc); err != nil {
		pc.Close()
		return nil, err
	}

	want, err := multihash.Encode(multihash.SHA2_256, fingerprint)
	if err != nil {
		pc.Close()
		return nil, err
	}
	remoteDER, err := remoteCertificateDER(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := verifyRemoteFingerprint(remoteDER, []multihash.Multihash{want}); err != nil {
		pc.Close()
		return nil, err
	}
	remotePeer, err := verifyPeerCertificate(remoteDER)
	if err != nil {
		pc.Close()
		return nil, err
	}

	remoteAddr, err := multiaddr.WebRTCDirect(remoteUDPAddr.IP.String(), uint16(remoteUDPAddr.Port))
	if err != nil {
		pc.Close()
		return nil, err
	}

	return newConnection(pc, l.localID, remotePeer, l.localAddr, remoteAddr), nil
}

func (l *listener) Close() error                  { return l.demux.UDPConn.Close() }
func (l *listener) Addr() multiaddr.Multiaddr { return l.localAddr }

func waitConnected(ctx context.Context, pc *webrtc.PeerConnection) error {
	connected := make(chan struct{})
	failed := make(chan struct{})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			select {
			case <-connected:
			default:
				close(connected)
			}
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			select {
			case <-failed:
			default:
				close(failed)
			}
		}
	})

	timeout := time.NewTimer(HandshakeTimeout)
	defer timeout.Stop()

	select {
	case <-connected:
		return nil
	case <-failed:
		return ErrHandshakeTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return ErrHandshakeTimeout
	}
}

// remoteCertificateDER returns the DER encoding of the remote's DTLS leaf
// certificate, the same bytes both the certhash check and the libp2p
// extension verification parse independently.
func remoteCertificateDER(pc *webrtc.PeerConnection) ([]byte, error) {
	sctp := pc.SCTP()
	if sctp == nil {
		return nil, ErrFingerprintMismatch
	}
	der := sctp.Transport().GetRemoteCertificate()
	if len(der) == 0 {
		return nil, ErrFingerprintMismatch
	}
	return der, nil
}

func verifyRemoteFingerprint(der []byte, want []multihash.Multihash) error {
	digest := sha256.Sum256(der)
	got, err := multihash.Encode(multihash.SHA2_256, digest[:])
	if err != nil {
		return err
	}
	for _, w := range want {
		if got.Equal(w) {
			return nil
		}
	}
	return ErrFingerprintMismatch
}
