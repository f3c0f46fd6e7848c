package security

import (
	"bufio"
	"context"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/protoutil"
)

// Plaintext implements the libp2p plaintext handshake: an unencrypted
// exchange of {peer id, public key} used only to bind the connection to a
// verified identity, with no confidentiality of its own.
type Plaintext struct{}

func (Plaintext) ProtocolID() string { return "/plaintext/2.0.0" }

const (
	exchangeFieldID     = 1
	exchangeFieldPubKey = 2
)

func encodeExchange(id peer.ID, pub peer.PublicKey) ([]byte, error) {
	keyBytes, err := pub.Bytes()
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = protoutil.Encode(buf, exchangeFieldID, id.Bytes())
	buf = protoutil.Encode(buf, exchangeFieldPubKey, keyBytes)
	return buf, nil
}

func decodeExchange(buf []byte) (peer.ID, peer.PublicKey, error) {
	fields, err := protoutil.Decode(buf, 0)
	if err != nil {
		return "", nil, ErrHandshakeFailed
	}
	idBytes, ok := protoutil.First(fields, exchangeFieldID)
	if !ok {
		return "", nil, ErrHandshakeFailed
	}
	pubBytes, ok := protoutil.First(fields, exchangeFieldPubKey)
	if !ok {
		return "", nil, ErrHandshakeFailed
	}
	pub, err := peer.UnmarshalPublicKey(pubBytes)
	if err != nil {
		return "", nil, ErrHandshakeFailed
	}
	return peer.ID(idBytes), pub, nil
}

func (p Plaintext) SecureOutbound(ctx context.Context, conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey, expectedRemote peer.ID) (SecureConn, error) {
	return p.run(conn, br, localKey, expectedRemote)
}

func (p Plaintext) SecureInbound(ctx context.Context, conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey) (SecureConn, error) {
	return p.run(conn, br, localKey, "")
}

func (Plaintext) run(conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey, expectedRemote peer.ID) (SecureConn, error) {
	localPub := localKey.GetPublic()
	localID, err := peer.FromPublicKey(localPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	outgoing, err := encodeExchange(localID, localPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	if err := writeFrame(conn, outgoing); err != nil {
		return nil, ErrHandshakeFailed
	}

	incoming, err := readFrame(br)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	remoteID, remotePub, err := decodeExchange(incoming)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	derivedID, err := peer.FromPublicKey(remotePub)
	if err != nil || derivedID != remoteID {
		return nil, ErrHandshakeFailed
	}
	if expectedRemote != "" && expectedRemote != remoteID {
		return nil, &PeerIDMismatchError{Expected: string(expectedRemote), Actual: string(remoteID)}
	}

	return &plaintextConn{
		RawSecurable: conn,
		br:           br,
		localPeer:    localID,
		remotePeer:   remoteID,
	}, nil
}

type plaintextConn struct {
	RawSecurable
	br                    *bufio.Reader
	localPeer, remotePeer peer.ID
}

// Read reads through br rather than the embedded RawSecurable directly,
// so bytes multistream-select or the handshake already buffered past
// their own frames are not silently dropped.
func (c *plaintextConn) Read(p []byte) (int, error) { return c.br.Read(p) }

func (c *plaintextConn) LocalPeer() peer.ID  { return c.localPeer }
func (c *plaintextConn) RemotePeer() peer.ID { return c.remotePeer }
func (c *plaintextConn) LocalAddr() multiaddr.Multiaddr  { return c.RawSecurable.LocalAddr() }
func (c *plaintextConn) RemoteAddr() multiaddr.Multiaddr { return c.RawSecurable.RemoteAddr() }
