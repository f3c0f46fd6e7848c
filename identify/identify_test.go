package identify

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

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

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	addr := mustAddr(t, "203.0.113.5", 4001)
	listen := mustAddr(t, "203.0.113.9", 4242)

	m := Message{
		ObservedAddr:    addr,
		ListenAddrs:     []multiaddr.Multiaddr{listen},
		ProtocolVersion: "libp2p-core-lite/0.1.0",
		AgentVersion:    "demo/0.1.0",
	}
	buf := encodeMessage(m)
	decoded, err := decodeMessage(buf)
	require.NoError(t, err)
	require.Equal(t, addr.String(), decoded.ObservedAddr.String())
	require.Len(t, decoded.ListenAddrs, 1)
	require.Equal(t, listen.String(), decoded.ListenAddrs[0].String())
	require.Equal(t, m.ProtocolVersion, decoded.ProtocolVersion)
	require.Equal(t, m.AgentVersion, decoded.AgentVersion)
}

type fakeStream struct {
	net.Conn
	protocolID string
}

func (s *fakeStream) ID() uint32              { return 0 }
func (s *fakeStream) ProtocolID() string      { return s.protocolID }
func (s *fakeStream) SetProtocolID(id string) { s.protocolID = id }
func (s *fakeStream) CloseWrite() error       { return nil }
func (s *fakeStream) CloseRead() error        { return nil }
func (s *fakeStream) Reset() error            { return s.Close() }

type fakeConnection struct {
	stream muxer.MuxedStream
}

func (c *fakeConnection) OpenStream(ctx context.Context) (muxer.MuxedStream, error) {
	return c.stream, nil
}
func (c *fakeConnection) AcceptStream() (muxer.MuxedStream, error) { return nil, nil }
func (c *fakeConnection) Close() error                             { return nil }
func (c *fakeConnection) IsClosed() bool                           { return false }
func (c *fakeConnection) LocalPeer() peer.ID                       { return "" }
func (c *fakeConnection) RemotePeer() peer.ID                      { return "" }
func (c *fakeConnection) LocalAddr() multiaddr.Multiaddr           { return multiaddr.Multiaddr{} }
func (c *fakeConnection) RemoteAddr() multiaddr.Multiaddr          { return multiaddr.Multiaddr{} }

func TestServiceIdentifyRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	localAddr := mustAddr(t, "198.51.100.1", 4001)
	listenAddr := mustAddr(t, "198.51.100.1", 4001)

	svc := New("libp2p-core-lite/0.1.0", "demo/0.1.0", func() []multiaddr.Multiaddr {
		return []multiaddr.Multiaddr{listenAddr}
	})

	go func() {
		svc.HandleStream(&fakeStream{Conn: serverConn}, localAddr)
	}()

	conn := &fakeConnection{stream: &fakeStream{Conn: clientConn}}
	msg, err := svc.Identify(context.Background(), conn, localAddr, time.Second)
	require.NoError(t, err)
	require.Equal(t, localAddr.String(), msg.ObservedAddr.String())
	require.Len(t, msg.ListenAddrs, 1)

	observed := svc.ObservedAddrs()
	require.Len(t, observed, 1)
	require.Equal(t, localAddr.String(), observed[0].String())
}
