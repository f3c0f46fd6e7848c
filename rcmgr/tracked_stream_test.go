package rcmgr

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
)

func openTestStream(t *testing.T) muxer.MuxedStream {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	addr := multiaddr.Memory("tracked-stream-test")

	clientCh := make(chan *muxer.Connection, 1)
	go func() {
		c, err := muxer.NewClient(clientConn, "client", "server", addr, addr)
		require.NoError(t, err)
		clientCh <- c
	}()
	server, err := muxer.NewServer(serverConn, "server", "client", addr, addr)
	require.NoError(t, err)
	client := <-clientCh

	t.Cleanup(func() { client.Close(); server.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go server.AcceptStream() //nolint:errcheck

	s, err := client.OpenStream(ctx)
	require.NoError(t, err)
	return s
}

func TestTrackedStreamReleasesOnceOnClose(t *testing.T) {
	m := New(DefaultConfig())
	p := testPeer(t)
	require.NoError(t, m.ReserveStream(p, Outbound))

	s := openTestStream(t)
	ts := NewTrackedStream(s, m, p, "", Outbound)

	require.NoError(t, ts.Close())
	snap := m.Snapshot()
	_, present := snap.Peers[p]
	require.False(t, present)

	// A second Close must not double-release (saturating release already
	// tolerates it, but the single-shot guard should make this a no-op).
	require.NoError(t, ts.Close())
	snap = m.Snapshot()
	_, present = snap.Peers[p]
	require.False(t, present)
}

func TestTrackedStreamReleasesOnReset(t *testing.T) {
	m := New(DefaultConfig())
	p := testPeer(t)
	require.NoError(t, m.ReserveStream(p, Outbound))

	s := openTestStream(t)
	ts := NewTrackedStream(s, m, p, "", Outbound)

	require.NoError(t, ts.Reset())
	snap := m.Snapshot()
	_, present := snap.Peers[p]
	require.False(t, present)
}
