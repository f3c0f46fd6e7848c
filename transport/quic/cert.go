package quic

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
	"time"

	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/protoutil"
)

// libp2pTLSExtensionOID carries a SignedKey linking the ephemeral TLS
// certificate to the dialer's long-lived identity key.
var libp2pTLSExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 53594, 1, 1}

const (
	signedKeyFieldPublicKey = 1
	signedKeyFieldSignature = 2
)

const signaturePrefix = "libp2p-tls-handshake:"

var (
	ErrMissingExtension = errors.New("quic: certificate missing libp2p extension")
	ErrSignatureInvalid = errors.New("quic: libp2p certificate signature invalid")
)

// generateCertificate mints a short-lived self-signed ECDSA certificate
// (in the shape of the teacher's WebRTC DTLS certificate, generalized
// with an embedded libp2p identity binding instead of a bare SHA-256
// fingerprint). The embedded extension lets a peer recover the dialer's
// stable PeerID from what would otherwise be an anonymous ephemeral
// certificate.
func generateCertificate(identityKey peer.PrivateKey) (tls.Certificate, error) {
	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPubDER, err := x509.MarshalPKIXPublicKey(&certKey.PublicKey)
	if err != nil {
		return tls.Certificate{}, err
	}
	sig, err := identityKey.Sign(append([]byte(signaturePrefix), certPubDER...))
	if err != nil {
		return tls.Certificate{}, err
	}
	identityPubBytes, err := identityKey.GetPublic().Bytes()
	if err != nil {
		return tls.Certificate{}, err
	}

	serialLimit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return tls.Certificate{}, err
	}
	notBefore := time.Now().Add(-time.Hour)
	template := &x509.Certificate{
		SignatureAlgorithm: x509.ECDSAWithSHA256,
		SerialNumber:       serial,
		Subject:            pkix.Name{CommonName: "libp2p"},
		NotBefore:          notBefore,
		NotAfter:           notBefore.Add(14 * 24 * time.Hour),
		ExtraExtensions: []pkix.Extension{
			{Id: libp2pTLSExtensionOID, Value: encodeSignedKey(identityPubBytes, sig)},
		},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &certKey.PublicKey, certKey)
	if err != nil {
		return tls.Certificate{}, err
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: certKey}, nil
}

func encodeSignedKey(pubKeyBytes, sig []byte) []byte {
	var buf []byte
	buf = protoutil.Encode(buf, signedKeyFieldPublicKey, pubKeyBytes)
	buf = protoutil.Encode(buf, signedKeyFieldSignature, sig)
	return buf
}

// verifyPeerCertificate checks the leaf certificate's self-signature, then
// extracts and verifies the libp2p extension from the leaf certificate
// presented during the TLS handshake, returning
// the remote's PeerID on success. The signature covers the certificate's
// own (ephemeral) SubjectPublicKeyInfo, not the certificate as a whole,
// so it can be computed before the extension carrying it exists.
func verifyPeerCertificate(rawCerts [][]byte) (peer.ID, error) {
	if len(rawCerts) == 0 {
		return "", ErrMissingExtension
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return "", err
	}
	if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
		return "", ErrSignatureInvalid
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
