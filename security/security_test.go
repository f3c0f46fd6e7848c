package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
	"github.com/lanikai/libp2p-core-lite/transport"
)

func keyPair(t *testing.T) (peer.PrivateKey, peer.ID) {
	t.Helper()
	priv, pub, err := peer.GenerateEd25519()
	require.NoError(t, err)
	id, err := peer.FromPublicKey(pub)
	require.NoError(t, err)
	return priv, id
}

func dialPair(t *testing.T) (transport.RawConn, transport.RawConn) {
	t.Helper()
	transport.ResetMemoryHub()
	var tr transport.Memory

	ma := multiaddr.Memory("security-test")
	ln, err := tr.Listen(ma)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	acceptCh := make(chan transport.RawConn, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := ln.Accept(ctx)
		acceptCh <- conn
		errCh <- err
	}()

	dialed, err := tr.Dial(ctx, ma)
	require.NoError(t, err)

	require.NoError(t, <-errCh)
	return dialed, <-acceptCh
}

func TestPlaintextHandshakeMutualAuth(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	clientKey, clientID := keyPair(t)
	serverKey, serverID := keyPair(t)

	clientUp := &Upgrader{LocalKey: clientKey, Protocols: []Protocol{Plaintext{}}}
	serverUp := &Upgrader{LocalKey: serverKey, Protocols: []Protocol{Plaintext{}}}

	type outcome struct {
		sc  SecureConn
		err error
	}
	serverCh := make(chan outcome, 1)
	go func() {
		sc, err := serverUp.SecureInbound(context.Background(), server)
		serverCh <- outcome{sc, err}
	}()

	clientSC, err := clientUp.SecureOutbound(context.Background(), client, serverID)
	require.NoError(t, err)
	require.Equal(t, clientID, clientSC.LocalPeer())
	require.Equal(t, serverID, clientSC.RemotePeer())

	res := <-serverCh
	require.NoError(t, res.err)
	require.Equal(t, serverID, res.sc.LocalPeer())
	require.Equal(t, clientID, res.sc.RemotePeer())
}

func TestPlaintextPeerIDMismatchRejected(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	clientKey, _ := keyPair(t)
	serverKey, _ := keyPair(t)
	_, wrongExpected := keyPair(t)

	clientUp := &Upgrader{LocalKey: clientKey, Protocols: []Protocol{Plaintext{}}}
	serverUp := &Upgrader{LocalKey: serverKey, Protocols: []Protocol{Plaintext{}}}

	go serverUp.SecureInbound(context.Background(), server) //nolint:errcheck

	_, err := clientUp.SecureOutbound(context.Background(), client, wrongExpected)
	require.Error(t, err)
	var mismatch *PeerIDMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestNoiseHandshakeEncryptsAndAuthenticates(t *testing.T) {
	client, server := dialPair(t)
	defer client.Close()
	defer server.Close()

	clientKey, clientID := keyPair(t)
	serverKey, serverID := keyPair(t)

	clientUp := &Upgrader{LocalKey: clientKey, Protocols: []Protocol{Noise{}}}
	serverUp := &Upgrader{LocalKey: serverKey, Protocols: []Protocol{Noise{}}}

	type outcome struct {
		sc  SecureConn
		err error
	}
	serverCh := make(chan outcome, 1)
	go func() {
		sc, err := serverUp.SecureInbound(context.Background(), server)
		serverCh <- outcome{sc, err}
	}()

	clientSC, err := clientUp.SecureOutbound(context.Background(), client, serverID)
	require.NoError(t, err)
	require.Equal(t, clientID, clientSC.LocalPeer())

	res := <-serverCh
	require.NoError(t, res.err)
	require.Equal(t, clientID, res.sc.RemotePeer())

	_, err = clientSC.Write([]byte("hello noise"))
	require.NoError(t, err)

	buf := make([]byte, len("hello noise"))
	n, err := res.sc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello noise", string(buf[:n]))
}
