package multiaddr

import (
	"github.com/multiformats/go-multibase"

	"github.com/lanikai/libp2p-core-lite/peer"
)

// peerIDTranscoder handles the /p2p/<id> component. The component's Value
// bytes are the peer's raw multihash bytes; the textual form is the
// legacy base58-btc peer id string.
type peerIDTranscoder struct{}

func (peerIDTranscoder) stringToBytes(s string) ([]byte, error) {
	id, err := peer.Decode(s)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	return id.Bytes(), nil
}

func (peerIDTranscoder) bytesToString(b []byte) (string, error) {
	id := peer.ID(b)
	if err := id.Validate(); err != nil {
		return "", ErrInvalidAddress
	}
	return id.Base58(), nil
}

// multibaseTranscoder handles /certhash/<multibase>, a multibase-wrapped
// multihash of a TLS/DTLS certificate.
type multibaseTranscoder struct{}

func (multibaseTranscoder) stringToBytes(s string) ([]byte, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	return data, nil
}

func (multibaseTranscoder) bytesToString(b []byte) (string, error) {
	s, err := multibase.Encode(multibase.Base64url, b)
	if err != nil {
		return "", ErrInvalidAddress
	}
	return s, nil
}
