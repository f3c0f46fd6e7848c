package dcutr

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/event"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/muxer"
	"github.com/lanikai/libp2p-core-lite/peer"
)

func mustAddr(t *testing.T, host string, port uint16) multiaddr.Multiaddr {
	t.Helper()
	a, err := multiaddr.TCP(host, port)
	require.NoError(t, err)
	return a
}

func TestFilterDialable(t *testing.T) {
	addrs := []multiaddr.Multiaddr{
		mustAddr(t, "127.0.0.1", 4001),
		mustAddr(t, "0.0.0.0", 4001),
		mustAddr(t, "10.0.0.5", 4001),
		mustAddr(t, "169.254.1.1", 4001),
		mustAddr(t, "203.0.113.5", 4001),
	}
	got := filterDialable(addrs)
	require.Len(t, got, 1)
	require.Equal(t, addrs[4].String(), got[0].String())
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	addr := mustAddr(t, "203.0.113.5", 4001)
	m := holePunchMessage{typ: msgTypeConnect, obsAddrs: []multiaddr.Multiaddr{addr}}

	buf := encodeMessage(m)
	decoded, err := decodeMessage(buf)
	require.NoError(t, err)
	require.Equal(t, msgTypeConnect, decoded.typ)
	require.Len(t, decoded.obsAddrs, 1)
	require.Equal(t, addr.String(), decoded.obsAddrs[0].String())
}

// fakeStream adapts a net.Conn pipe end to muxer.MuxedStream.
type fakeStream struct {
	net.Conn
	protocolID string
}

func (s *fakeStream) ID() uint32             { return 0 }
func (s *fakeStream) ProtocolID() string     { return s.protocolID }
func (s *fakeStream) SetProtocolID(id string) { s.protocolID = id }
func (s *fakeStream) CloseWrite() error      { return nil }
func (s *fakeStream) CloseRead() error       { return nil }
func (s *fakeStream) Reset() error           { return s.Close() }

// fakeRelayedConnection's OpenStream hands out one pre-built stream; every
// other MuxedConnection method is unused by Initiate and left as a zero
// implementation.
type fakeRelayedConnection struct {
	stream   muxer.MuxedStream
	remote   peer.ID
	openErr  error
}

func (c *fakeRelayedConnection) OpenStream(ctx context.Context) (muxer.MuxedStream, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	return c.stream, nil
}
func (c *fakeRelayedConnection) AcceptStream() (muxer.MuxedStream, error) { return nil, nil }
func (c *fakeRelayedConnection) Close() error                            { return nil }
func (c *fakeRelayedConnection) IsClosed() bool                          { return false }
func (c *fakeRelayedConnection) LocalPeer() peer.ID                      { return "" }
func (c *fakeRelayedConnection) RemotePeer() peer.ID                     { return c.remote }
func (c *fakeRelayedConnection) LocalAddr() multiaddr.Multiaddr          { return multiaddr.Multiaddr{} }
func (c *fakeRelayedConnection) RemoteAddr() multiaddr.Multiaddr         { return multiaddr.Multiaddr{} }

// fakeDirectConnection stands in for the MuxedConnection a successful
// direct dial would yield.
type fakeDirectConnection struct{ muxer.MuxedConnection }

// fakeDialer succeeds for any address whose string is in ok, and fails
// for everything else.
type fakeDialer struct {
	mu sync.Mutex
	ok map[string]bool
}

func (d *fakeDialer) Dial(ctx context.Context, addr multiaddr.Multiaddr, remote peer.ID) (muxer.MuxedConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ok[addr.String()] {
		return &fakeDirectConnection{}, nil
	}
	return nil, ErrAllDialsFailed
}

func newPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pub, err := peer.GenerateEd25519()
	require.NoError(t, err)
	id, err := peer.FromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestInitiateRespondHappyPath(t *testing.T) {
	initiatorConn, responderConn := net.Pipe()
	defer initiatorConn.Close()
	defer responderConn.Close()

	remote := newPeerID(t)
	winningAddr := mustAddr(t, "203.0.113.9", 4242)
	initiatorAddr := mustAddr(t, "198.51.100.1", 4001)

	relayed := muxer.MarkViaRelay(&fakeRelayedConnection{
		stream: &fakeStream{Conn: initiatorConn},
		remote: remote,
	})

	mock := clock.NewMock()
	dialer := &fakeDialer{ok: map[string]bool{winningAddr.String(): true, initiatorAddr.String(): true}}
	cfg := Config{Dialer: dialer, Clock: mock, Timeout: time.Second, DialTimeout: time.Second}

	var (
		initConn muxer.MuxedConnection
		initAddr multiaddr.Multiaddr
		initErr  error

		respPunched bool
		respErr     error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		initConn, initAddr, initErr = Initiate(context.Background(), relayed, remote,
			[]multiaddr.Multiaddr{initiatorAddr}, cfg)
	}()
	go func() {
		defer wg.Done()
		_, _, respPunched, respErr = Respond(context.Background(), &fakeStream{Conn: responderConn}, remote,
			[]multiaddr.Multiaddr{winningAddr}, cfg)
	}()
	wg.Wait()

	require.NoError(t, initErr)
	require.Equal(t, winningAddr.String(), initAddr.String())
	require.NotNil(t, initConn)

	require.NoError(t, respErr)
	require.True(t, respPunched)
}

func TestInitiateEmitsEventsOnSuccess(t *testing.T) {
	initiatorConn, responderConn := net.Pipe()
	defer initiatorConn.Close()
	defer responderConn.Close()

	remote := newPeerID(t)
	winningAddr := mustAddr(t, "203.0.113.9", 4242)

	relayed := muxer.MarkViaRelay(&fakeRelayedConnection{
		stream: &fakeStream{Conn: initiatorConn},
		remote: remote,
	})

	mock := clock.NewMock()
	dialer := &fakeDialer{ok: map[string]bool{winningAddr.String(): true}}
	broadcaster := event.New[Event]()
	events := broadcaster.Subscribe(8)
	cfg := Config{Dialer: dialer, Clock: mock, Timeout: time.Second, DialTimeout: time.Second, Events: broadcaster}

	go func() {
		stream := &fakeStream{Conn: responderConn}
		br := bufio.NewReader(stream)
		recvMessage(context.Background(), br, time.Second)
		sendMessage(context.Background(), stream, time.Second, holePunchMessage{typ: msgTypeConnect, obsAddrs: []multiaddr.Multiaddr{winningAddr}})
		recvMessage(context.Background(), br, time.Second)
		stream.Close()
	}()

	_, _, err := Initiate(context.Background(), relayed, remote, []multiaddr.Multiaddr{mustAddr(t, "198.51.100.1", 4001)}, cfg)
	require.NoError(t, err)

	require.Equal(t, HolePunchAttemptStarted{Attempt: 1, Max: defaultMaxAttempts}, <-events)
	require.Equal(t, AddressExchangeCompleted{Attempt: 1}, <-events)

	established, ok := (<-events).(DirectConnectionEstablished)
	require.True(t, ok)
	require.Equal(t, winningAddr.String(), established.Addr.String())
}

func TestInitiateEmitsFailureEventsOnExhaustion(t *testing.T) {
	remote := newPeerID(t)
	relayed := muxer.MarkViaRelay(&fakeRelayedConnection{remote: remote, openErr: ErrAllDialsFailed})

	broadcaster := event.New[Event]()
	events := broadcaster.Subscribe(16)
	cfg := Config{
		Dialer:      &fakeDialer{ok: map[string]bool{}},
		Clock:       clock.NewMock(),
		Timeout:     time.Second,
		MaxAttempts: 1,
		Events:      broadcaster,
	}

	_, _, err := Initiate(context.Background(), relayed, remote, nil, cfg)
	require.Error(t, err)

	require.Equal(t, HolePunchAttemptStarted{Attempt: 1, Max: 1}, <-events)
	require.Equal(t, HolePunchAttemptFailed{Attempt: 1, Max: 1}, <-events)
	require.Equal(t, HolePunchFailed{Reason: "Max attempts exceeded (1)"}, <-events)
}

func TestInitiateNoAddressesIsFatal(t *testing.T) {
	initiatorConn, responderConn := net.Pipe()
	defer initiatorConn.Close()
	defer responderConn.Close()

	remote := newPeerID(t)
	relayed := muxer.MarkViaRelay(&fakeRelayedConnection{
		stream: &fakeStream{Conn: initiatorConn},
		remote: remote,
	})
	cfg := Config{Dialer: &fakeDialer{ok: map[string]bool{}}, Clock: clock.NewMock(), Timeout: time.Second}

	go func() {
		stream := &fakeStream{Conn: responderConn}
		br := bufio.NewReader(stream)
		// Drain the CONNECT and answer with no addresses, then close.
		recvMessage(context.Background(), br, time.Second)
		sendMessage(context.Background(), stream, time.Second, holePunchMessage{typ: msgTypeConnect})
		stream.Close()
	}()

	_, _, err := Initiate(context.Background(), relayed, remote, nil, cfg)
	require.ErrorIs(t, err, ErrNoAddresses)
}

func TestInitiateRejectsNonRelayedConnection(t *testing.T) {
	plain := &fakeRelayedConnection{}
	_, _, err := Initiate(context.Background(), plain, "", nil, Config{})
	require.ErrorIs(t, err, ErrNotRelayedConnection)
}
