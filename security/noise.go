package security

import (
	"bufio"
	"context"
	"crypto/rand"

	noise "github.com/flynn/noise"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/protoutil"
)

// Noise implements the libp2p Noise security transport: an XX handshake
// establishing an ephemeral session, with each side's long-term identity
// bound in via a signed payload over the Noise static key.
type Noise struct{}

func (Noise) ProtocolID() string { return "/noise" }

var noiseCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

const noiseSignaturePrefix = "noise-libp2p-static-key:"

const (
	payloadFieldIdentityKey = 1
	payloadFieldIdentitySig = 2
)

func encodeNoisePayload(pub peer.PublicKey, sig []byte) ([]byte, error) {
	keyBytes, err := pub.Bytes()
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = protoutil.Encode(buf, payloadFieldIdentityKey, keyBytes)
	buf = protoutil.Encode(buf, payloadFieldIdentitySig, sig)
	return buf, nil
}

func decodeNoisePayload(buf []byte) (peer.PublicKey, []byte, error) {
	fields, err := protoutil.Decode(buf, 0)
	if err != nil {
		return nil, nil, ErrHandshakeFailed
	}
	keyBytes, ok := protoutil.First(fields, payloadFieldIdentityKey)
	if !ok {
		return nil, nil, ErrHandshakeFailed
	}
	sig, ok := protoutil.First(fields, payloadFieldIdentitySig)
	if !ok {
		return nil, nil, ErrHandshakeFailed
	}
	pub, err := peer.UnmarshalPublicKey(keyBytes)
	if err != nil {
		return nil, nil, ErrHandshakeFailed
	}
	return pub, sig, nil
}

func (n Noise) SecureOutbound(ctx context.Context, conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey, expectedRemote peer.ID) (SecureConn, error) {
	return n.run(conn, br, localKey, expectedRemote, true)
}

func (n Noise) SecureInbound(ctx context.Context, conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey) (SecureConn, error) {
	return n.run(conn, br, localKey, "", false)
}

func (Noise) run(conn RawSecurable, br *bufio.Reader, localKey peer.PrivateKey, expectedRemote peer.ID, initiator bool) (SecureConn, error) {
	staticKeyPair, err := noiseCipherSuite.GenerateKeypair(rand.Reader)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   noiseCipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKeyPair,
	})
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	localPub := localKey.GetPublic()
	localID, err := peer.FromPublicKey(localPub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	sig, err := localKey.Sign(append([]byte(noiseSignaturePrefix), staticKeyPair.Public...))
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	payload, err := encodeNoisePayload(localPub, sig)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	var (
		cs1, cs2        *noise.CipherState
		remotePayload   []byte
	)

	if initiator {
		msg1, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		if err := writeFrame(conn, msg1); err != nil {
			return nil, ErrHandshakeFailed
		}

		in2, err := readFrame(br)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		msg2Payload, _, _, err := hs.ReadMessage(nil, in2)
		if err != nil {
			return nil, ErrHandshakeFailed
		}

		msg3, cs1_, cs2_, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		if err := writeFrame(conn, msg3); err != nil {
			return nil, ErrHandshakeFailed
		}
		cs1, cs2 = cs1_, cs2_
		remotePayload = msg2Payload
	} else {
		in1, err := readFrame(br)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		if _, _, _, err := hs.ReadMessage(nil, in1); err != nil {
			return nil, ErrHandshakeFailed
		}

		msg2, _, _, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		if err := writeFrame(conn, msg2); err != nil {
			return nil, ErrHandshakeFailed
		}

		in3, err := readFrame(br)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		msg3Payload, cs1_, cs2_, err := hs.ReadMessage(nil, in3)
		if err != nil {
			return nil, ErrHandshakeFailed
		}
		cs1, cs2 = cs1_, cs2_
		remotePayload = msg3Payload
	}

	remotePub, remoteSig, err := decodeNoisePayload(remotePayload)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	remoteStaticKey := hs.PeerStatic()
	if ok, err := remotePub.Verify(append([]byte(noiseSignaturePrefix), remoteStaticKey...), remoteSig); err != nil || !ok {
		return nil, ErrHandshakeFailed
	}
	remoteID, err := peer.FromPublicKey(remotePub)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	if expectedRemote != "" && expectedRemote != remoteID {
		return nil, &PeerIDMismatchError{Expected: string(expectedRemote), Actual: string(remoteID)}
	}

	var send, recv *noise.CipherState
	if initiator {
		send, recv = cs1, cs2
	} else {
		send, recv = cs2, cs1
	}

	return &noiseConn{
		RawSecurable: conn,
		br:           br,
		send:         send,
		recv:         recv,
		localPeer:    localID,
		remotePeer:   remoteID,
	}, nil
}

type noiseConn struct {
	RawSecurable
	br *bufio.Reader

	send, recv *noise.CipherState

	localPeer, remotePeer peer.ID
	pending               []byte
}

func (c *noiseConn) LocalPeer() peer.ID  { return c.localPeer }
func (c *noiseConn) RemotePeer() peer.ID { return c.remotePeer }
func (c *noiseConn) LocalAddr() multiaddr.Multiaddr  { return c.RawSecurable.LocalAddr() }
func (c *noiseConn) RemoteAddr() multiaddr.Multiaddr { return c.RawSecurable.RemoteAddr() }

const noiseMaxPlaintext = 65519 // 65535 - 16-byte Poly1305 tag

func (c *noiseConn) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > noiseMaxPlaintext {
			chunk = chunk[:noiseMaxPlaintext]
		}
		ciphertext := c.send.Encrypt(nil, nil, chunk)
		if err := writeFrame(c.RawSecurable, ciphertext); err != nil {
			return total, err
		}
		total += len(chunk)
		p = p[len(chunk):]
	}
	return total, nil
}

func (c *noiseConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		frame, err := readFrame(c.br)
		if err != nil {
			return 0, err
		}
		plaintext, err := c.recv.Decrypt(nil, nil, frame)
		if err != nil {
			return 0, ErrHandshakeFailed
		}
		c.pending = plaintext
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}
