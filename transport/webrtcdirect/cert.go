package webrtcdirect

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/lanikai/libp2p-core-lite/multihash"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/protoutil"
)

// certValidity mirrors the teacher's WebRTC certificate lifetime.
const certValidity = 30 * 24 * time.Hour

// libp2pTLSExtensionOID carries a SignedKey linking the ephemeral DTLS
// certificate to its holder's long-lived identity key, the same extension
// transport/quic embeds in its TLS certificates (spec.md §4.11).
var libp2pTLSExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 53594, 1, 1}

const (
	signedKeyFieldPublicKey = 1
	signedKeyFieldSignature = 2
)

const signaturePrefix = "libp2p-tls-handshake:"

var (
	ErrMissingExtension = errors.New("webrtcdirect: certificate missing libp2p extension")
	ErrSignatureInvalid = errors.New("webrtcdirect: libp2p certificate signature invalid")
)

// localCert is a self-signed DTLS certificate and the multihash of its DER
// encoding, used to populate and verify the /certhash component of a
// webrtc-direct address (spec.md §4.11).
type localCert struct {
	pion webrtc.Certificate
	der  []byte
	sum  multihash.Multihash
}

// generateCertificate produces a fresh ECDSA P-256 self-signed certificate,
// the same shape as the teacher's WebRTC certificate generator, embedding a
// SignedKey extension over identityKey so the certhash-verified DTLS
// handshake also proves the holder's PeerID, and its SHA2-256 multihash.
func generateCertificate(identityKey peer.PrivateKey) (*localCert, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	certPubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	sig, err := identityKey.Sign(append([]byte(signaturePrefix), certPubDER...))
	if err != nil {
		return nil, err
	}
	identityPubBytes, err := identityKey.GetPublic().Bytes()
	if err != nil {
		return nil, err
	}

	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, err
	}

	template := x509.Certificate{
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		SerialNumber:       serialNumber,
		Subject:            pkix.Name{CommonName: "libp2p-webrtc-direct"},
		NotBefore:          time.Now(),
		NotAfter:           time.Now().Add(certValidity),
		ExtraExtensions: []pkix.Extension{
			{Id: libp2pTLSExtensionOID, Value: encodeSignedKey(identityPubBytes, sig)},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}

	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(der)
	sum, err := multihash.Encode(multihash.SHA2_256, digest[:])
	if err != nil {
		return nil, err
	}

	return &localCert{
		pion: webrtc.CertificateFromX509(priv, leaf),
		der:  der,
		sum:  sum,
	}, nil
}

func encodeSignedKey(pubKeyBytes, sig []byte) []byte {
	var buf []byte
	buf = protoutil.Encode(buf, signedKeyFieldPublicKey, pubKeyBytes)
	buf = protoutil.Encode(buf, signedKeyFieldSignature, sig)
	return buf
}

// verifyPeerCertificate extracts and verifies the libp2p extension from a
// remote DTLS leaf certificate (already certhash-matched by the caller),
// returning the remote's PeerID on success. The signature covers the
// certificate's own SubjectPublicKeyInfo, mirroring transport/quic's TLS
// extension verification.
func verifyPeerCertificate(der []byte) (peer.ID, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return "", err
	}

	var extValue []byte
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(libp2pTLSExtensionOID) {
			extValue = ext.Value
			break
		}
	}
	if extValue == nil {
		return "", ErrMissingExtension
	}

	fields, err := protoutil.Decode(extValue, protoutil.DefaultMaxFieldSize)
	if err != nil {
		return "", err
	}
	identityPubBytes, ok := protoutil.First(fields, signedKeyFieldPublicKey)
	if !ok {
		return "", ErrMissingExtension
	}
	sig, ok := protoutil.First(fields, signedKeyFieldSignature)
	if !ok {
		return "", ErrMissingExtension
	}

	identityPubKey, err := peer.UnmarshalPublicKey(identityPubBytes)
	if err != nil {
		return "", err
	}

	certPubDER, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", err
	}
	valid, err := identityPubKey.Verify(append([]byte(signaturePrefix), certPubDER...), sig)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", ErrSignatureInvalid
	}

	return peer.FromPublicKey(identityPubKey)
}
