package mdns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/event"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/peer"
)

func newTestPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := peer.GenerateEd25519()
	require.NoError(t, err)
	id, err := peer.FromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestSanitizeLabel(t *testing.T) {
	require.Equal(t, "abcXYZ123-", sanitizeLabel("abc XYZ/123-!"))
}

func TestHandleRemoteRecordPrefersDnsaddr(t *testing.T) {
	subject := newTestPeerID(t)
	bc := event.New[PeerObservation]()
	sub := bc.Subscribe(1)

	s := &Service{
		broadcaster: bc,
		known:       make(map[peer.ID][]multiaddr.Multiaddr),
	}

	addr, err := multiaddr.TCP("192.168.1.5", 4001)
	require.NoError(t, err)
	addr = multiaddr.WithPeer(addr, subject)

	s.handleRemoteRecord(subject.Base58(), remoteRecord{
		instance: subject.Base58(),
		dnsaddrs: []string{"dnsaddr=" + addr.String()},
	})

	select {
	case obs := <-sub:
		require.Equal(t, subject, obs.Subject)
		require.Len(t, obs.Hints, 1)
		require.Equal(t, addr.String(), obs.Hints[0].String())
	case <-time.After(time.Second):
		t.Fatal("no observation emitted")
	}

	hints, err := s.Find(subject)
	require.NoError(t, err)
	require.Len(t, hints, 1)
}

func TestHandleRemoteRecordSkipsMismatchedPeer(t *testing.T) {
	subject := newTestPeerID(t)
	other := newTestPeerID(t)
	bc := event.New[PeerObservation]()
	s := &Service{broadcaster: bc, known: make(map[peer.ID][]multiaddr.Multiaddr)}

	good, err := multiaddr.TCP("192.168.1.5", 4001)
	require.NoError(t, err)
	good = multiaddr.WithPeer(good, subject)

	bad, err := multiaddr.TCP("10.0.0.1", 4001)
	require.NoError(t, err)
	bad = multiaddr.WithPeer(bad, other)

	s.handleRemoteRecord(subject.Base58(), remoteRecord{
		instance: subject.Base58(),
		dnsaddrs: []string{"dnsaddr=" + bad.String(), "dnsaddr=" + good.String()},
	})

	hints, err := s.Find(subject)
	require.NoError(t, err)
	require.Len(t, hints, 1)
	require.Equal(t, good.String(), hints[0].String())

	_, err = s.Find(other)
	require.NoError(t, err)
}

func TestHandleRemoteRecordFallbackReconstruction(t *testing.T) {
	subject := newTestPeerID(t)
	bc := event.New[PeerObservation]()
	s := &Service{broadcaster: bc, known: make(map[peer.ID][]multiaddr.Multiaddr)}

	s.handleRemoteRecord(subject.Base58(), remoteRecord{
		instance: subject.Base58(),
		ip:       []byte{192, 168, 1, 5},
		port:     4001,
	})

	hints, err := s.Find(subject)
	require.NoError(t, err)
	require.Len(t, hints, 1)

	gotPeer, ok := hints[0].PeerID()
	require.True(t, ok)
	require.Equal(t, subject, gotPeer)
}

func TestFindReturnsBrowserErrorWhenUnhealthy(t *testing.T) {
	target := newTestPeerID(t)
	s := &Service{known: make(map[peer.ID][]multiaddr.Multiaddr)}
	s.lastBrowserErr = context.DeadlineExceeded

	hints, err := s.Find(target)
	require.Nil(t, hints)
	var browserErr *BrowserError
	require.ErrorAs(t, err, &browserErr)
}

func TestFindReturnsEmptyWhenHealthyAndUnknown(t *testing.T) {
	target := newTestPeerID(t)
	s := &Service{known: make(map[peer.ID][]multiaddr.Multiaddr)}

	hints, err := s.Find(target)
	require.NoError(t, err)
	require.Nil(t, hints)
}

func TestAdvertiseAndBrowseLoopback(t *testing.T) {
	serverID := newTestPeerID(t)
	serverBC := event.New[PeerObservation]()

	server, err := New(serverID, serverBC)
	require.NoError(t, err)
	defer server.Stop()

	serverAddr, err := multiaddr.TCP("127.0.0.1", 4242)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, server.Start(ctx, []multiaddr.Multiaddr{serverAddr}))

	clientID := newTestPeerID(t)
	clientBC := event.New[PeerObservation]()
	client, err := New(clientID, clientBC)
	require.NoError(t, err)
	defer client.Stop()

	sub := clientBC.Subscribe(4)
	require.NoError(t, client.Start(ctx, nil))

	select {
	case obs := <-sub:
		require.Equal(t, serverID, obs.Subject)
		require.NotEmpty(t, obs.Hints)
	case <-time.After(5 * time.Second):
		t.Skip("no mDNS response observed on this host's network stack within the deadline")
	}
}
