package webrtcdirect

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
)

func newTestIdentity(t *testing.T) peer.PrivateKey {
	t.Helper()
	priv, _, err := peer.GenerateEd25519()
	require.NoError(t, err)
	return priv
}

func TestGenerateCertificateFingerprint(t *testing.T) {
	cert, err := generateCertificate(newTestIdentity(t))
	require.NoError(t, err)
	require.NotEmpty(t, cert.sum.Digest)
	require.Equal(t, uint64(0x12), cert.sum.Code) // SHA2_256
}

func TestGenerateCertificateEmbedsVerifiableIdentity(t *testing.T) {
	key := newTestIdentity(t)
	cert, err := generateCertificate(key)
	require.NoError(t, err)

	want, err := peer.FromPublicKey(key.GetPublic())
	require.NoError(t, err)

	got, err := verifyPeerCertificate(cert.der)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestPreflightRoundTrip(t *testing.T) {
	cert, err := generateCertificate(newTestIdentity(t))
	require.NoError(t, err)

	encoded := encodePreflight(cert.sum.Digest, "ufrag123", "pwd456")
	require.Equal(t, byte(preflightMagic), encoded[0])

	gotFP, gotUfrag, gotPwd, err := decodePreflight(encoded[1:])
	require.NoError(t, err)
	require.Equal(t, cert.sum.Digest, gotFP)
	require.Equal(t, "ufrag123", gotUfrag)
	require.Equal(t, "pwd456", gotPwd)
}

func TestCertHashesRoundTrip(t *testing.T) {
	cert, err := generateCertificate(newTestIdentity(t))
	require.NoError(t, err)

	comp, err := fingerprintComponent(cert.sum)
	require.NoError(t, err)

	addr, err := multiaddr.WebRTCDirect("127.0.0.1", 4001)
	require.NoError(t, err)
	addr = addr.Append(comp)

	hashes, err := certHashes(addr)
	require.NoError(t, err)
	require.Len(t, hashes, 1)
	require.True(t, hashes[0].Equal(cert.sum))
}

func TestSynthesizeRemoteSDPShape(t *testing.T) {
	desc := synthesizeRemoteSDP(webrtc.SDPTypeOffer, "ufragA", "pwdA", "sha-256 AA:BB", "203.0.113.5", 4001)
	require.Equal(t, webrtc.SDPTypeOffer, desc.Type)
	require.True(t, strings.Contains(desc.SDP, "a=ice-ufrag:ufragA"))
	require.True(t, strings.Contains(desc.SDP, "a=setup:actpass"))
	require.True(t, strings.Contains(desc.SDP, "203.0.113.5"))

	answer := synthesizeRemoteSDP(webrtc.SDPTypeAnswer, fixedUfrag, fixedPwd, "sha-256 CC:DD", "203.0.113.6", 4002)
	require.True(t, strings.Contains(answer.SDP, "a=setup:passive"))
}

func TestIsWebRTCDirectAddr(t *testing.T) {
	addr, err := multiaddr.WebRTCDirect("127.0.0.1", 4001)
	require.NoError(t, err)
	require.True(t, Transport{}.CanDial(addr))
	require.True(t, Transport{}.CanListen(addr))

	tcpAddr, err := multiaddr.TCP("127.0.0.1", 4001)
	require.NoError(t, err)
	require.False(t, Transport{}.CanDial(tcpAddr))
}
