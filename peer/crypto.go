package peer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// KeyType distinguishes the supported public/private key variants.
type KeyType int

const (
	Ed25519 KeyType = iota
	Secp256k1
	RSA
	ECDSAP256
)

// PublicKey is implemented by every supported key variant.
type PublicKey interface {
	Type() KeyType
	// Bytes returns the canonical type-tagged encoding used to derive a
	// PeerID and to compare/serialize the key.
	Bytes() ([]byte, error)
	Verify(data, sig []byte) (bool, error)
}

// PrivateKey is implemented by every supported key variant.
type PrivateKey interface {
	Type() KeyType
	Sign(data []byte) ([]byte, error)
	GetPublic() PublicKey
	Bytes() ([]byte, error)
}

// canonical wire form: varint-free, fixed 1-byte type tag || key-specific bytes.
func tagBytes(t KeyType, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(t))
	return append(out, body...)
}

// UnmarshalPublicKey decodes the canonical type-tagged byte form.
func UnmarshalPublicKey(b []byte) (PublicKey, error) {
	if len(b) < 1 {
		return nil, errors.New("peer: empty public key")
	}
	t, body := KeyType(b[0]), b[1:]
	switch t {
	case Ed25519:
		if len(body) != ed25519.PublicKeySize {
			return nil, errors.New("peer: bad ed25519 public key length")
		}
		return &ed25519PublicKey{key: ed25519.PublicKey(body)}, nil
	case Secp256k1:
		pk, err := btcec.ParsePubKey(body)
		if err != nil {
			return nil, fmt.Errorf("peer: bad secp256k1 public key: %w", err)
		}
		return &secp256k1PublicKey{key: pk}, nil
	case RSA:
		pub, err := x509.ParsePKIXPublicKey(body)
		if err != nil {
			return nil, fmt.Errorf("peer: bad rsa public key: %w", err)
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("peer: not an rsa public key")
		}
		return &rsaPublicKey{key: rsaPub}, nil
	case ECDSAP256:
		pub, err := x509.ParsePKIXPublicKey(body)
		if err != nil {
			return nil, fmt.Errorf("peer: bad ecdsa public key: %w", err)
		}
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, errors.New("peer: not an ecdsa public key")
		}
		return &ecdsaPublicKey{key: ecPub}, nil
	default:
		return nil, fmt.Errorf("peer: unknown key type %d", t)
	}
}

// --- Ed25519 ---

type ed25519PublicKey struct{ key ed25519.PublicKey }
type ed25519PrivateKey struct{ key ed25519.PrivateKey }

func GenerateEd25519() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	sk := &ed25519PrivateKey{key: priv}
	return sk, sk.GetPublic(), nil
}

func (k *ed25519PublicKey) Type() KeyType { return Ed25519 }
func (k *ed25519PublicKey) Bytes() ([]byte, error) {
	return tagBytes(Ed25519, []byte(k.key)), nil
}
func (k *ed25519PublicKey) Verify(data, sig []byte) (bool, error) {
	return ed25519.Verify(k.key, data, sig), nil
}

func (k *ed25519PrivateKey) Type() KeyType { return Ed25519 }
func (k *ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.key, data), nil
}
func (k *ed25519PrivateKey) GetPublic() PublicKey {
	return &ed25519PublicKey{key: k.key.Public().(ed25519.PublicKey)}
}
func (k *ed25519PrivateKey) Bytes() ([]byte, error) {
	return tagBytes(Ed25519, []byte(k.key)), nil
}

// --- secp256k1 ---

type secp256k1PublicKey struct{ key *btcec.PublicKey }
type secp256k1PrivateKey struct{ key *btcec.PrivateKey }

func GenerateSecp256k1() (PrivateKey, PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, nil, err
	}
	sk := &secp256k1PrivateKey{key: priv}
	return sk, sk.GetPublic(), nil
}

func (k *secp256k1PublicKey) Type() KeyType { return Secp256k1 }
func (k *secp256k1PublicKey) Bytes() ([]byte, error) {
	return tagBytes(Secp256k1, k.key.SerializeCompressed()), nil
}
func (k *secp256k1PublicKey) Verify(data, sig []byte) (bool, error) {
	parsed, err := btcecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	digest := sha256.Sum256(data)
	return parsed.Verify(digest[:], k.key), nil
}

func (k *secp256k1PrivateKey) Type() KeyType { return Secp256k1 }
func (k *secp256k1PrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig := btcecdsa.Sign(k.key, digest[:])
	return sig.Serialize(), nil
}
func (k *secp256k1PrivateKey) GetPublic() PublicKey {
	return &secp256k1PublicKey{key: k.key.PubKey()}
}
func (k *secp256k1PrivateKey) Bytes() ([]byte, error) {
	return tagBytes(Secp256k1, k.key.Serialize()), nil
}

// --- RSA ---

type rsaPublicKey struct{ key *rsa.PublicKey }
type rsaPrivateKey struct{ key *rsa.PrivateKey }

func GenerateRSA(bits int) (PrivateKey, PublicKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	sk := &rsaPrivateKey{key: priv}
	return sk, sk.GetPublic(), nil
}

func (k *rsaPublicKey) Type() KeyType { return RSA }
func (k *rsaPublicKey) Bytes() ([]byte, error) {
	b, err := x509.MarshalPKIXPublicKey(k.key)
	if err != nil {
		return nil, err
	}
	return tagBytes(RSA, b), nil
}
func (k *rsaPublicKey) Verify(data, sig []byte) (bool, error) {
	digest := sha256.Sum256(data)
	err := rsa.VerifyPKCS1v15(k.key, crypto.SHA256, digest[:], sig)
	return err == nil, nil
}

func (k *rsaPrivateKey) Type() KeyType { return RSA }
func (k *rsaPrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, k.key, crypto.SHA256, digest[:])
}
func (k *rsaPrivateKey) GetPublic() PublicKey { return &rsaPublicKey{key: &k.key.PublicKey} }
func (k *rsaPrivateKey) Bytes() ([]byte, error) {
	return tagBytes(RSA, x509.MarshalPKCS1PrivateKey(k.key)), nil
}

// --- ECDSA P-256 ---

type ecdsaPublicKey struct{ key *ecdsa.PublicKey }
type ecdsaPrivateKey struct{ key *ecdsa.PrivateKey }

func GenerateECDSAP256() (PrivateKey, PublicKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	sk := &ecdsaPrivateKey{key: priv}
	return sk, sk.GetPublic(), nil
}

func (k *ecdsaPublicKey) Type() KeyType { return ECDSAP256 }
func (k *ecdsaPublicKey) Bytes() ([]byte, error) {
	b, err := x509.MarshalPKIXPublicKey(k.key)
	if err != nil {
		return nil, err
	}
	return tagBytes(ECDSAP256, b), nil
}
func (k *ecdsaPublicKey) Verify(data, sig []byte) (bool, error) {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(k.key, digest[:], sig), nil
}

func (k *ecdsaPrivateKey) Type() KeyType { return ECDSAP256 }
func (k *ecdsaPrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, k.key, digest[:])
}
func (k *ecdsaPrivateKey) GetPublic() PublicKey { return &ecdsaPublicKey{key: &k.key.PublicKey} }
func (k *ecdsaPrivateKey) Bytes() ([]byte, error) {
	b, err := x509.MarshalECPrivateKey(k.key)
	if err != nil {
		return nil, err
	}
	return tagBytes(ECDSAP256, b), nil
}
