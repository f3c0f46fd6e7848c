package quic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/peer"
)

func TestCertificateRoundTrip(t *testing.T) {
	sk, pk, err := peer.GenerateEd25519()
	require.NoError(t, err)
	wantID, err := peer.FromPublicKey(pk)
	require.NoError(t, err)

	cert, err := generateCertificate(sk)
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	gotID, err := verifyPeerCertificate(cert.Certificate)
	require.NoError(t, err)
	require.Equal(t, wantID, gotID)
}

func TestCertificateRejectsTamperedSignature(t *testing.T) {
	sk, _, err := peer.GenerateEd25519()
	require.NoError(t, err)

	cert, err := generateCertificate(sk)
	require.NoError(t, err)

	tampered := make([]byte, len(cert.Certificate[0]))
	copy(tampered, cert.Certificate[0])
	// Flip a byte near the end of the DER, inside the extension/signature
	// region, without corrupting the ASN.1 envelope enough to fail parsing.
	tampered[len(tampered)-1] ^= 0xFF

	_, err = verifyPeerCertificate([][]byte{tampered})
	require.Error(t, err)
}

func TestCertificateRejectsEmptyChain(t *testing.T) {
	_, err := verifyPeerCertificate(nil)
	require.ErrorIs(t, err, ErrMissingExtension)
}
