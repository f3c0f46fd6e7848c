package multiaddr

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndRoundTrip(t *testing.T) {
	cases := []string{
		"/ip4/127.0.0.1/tcp/4001",
		"/ip4/127.0.0.1/udp/4001/quic-v1",
		"/ip6/::1/tcp/4001",
		"/dns4/example.com/tcp/443/wss",
		"/memory/abc123",
	}
	for _, s := range cases {
		ma, err := Parse(s)
		require.NoError(t, err, s)
		require.Equal(t, normalizeV6(s), ma.String())

		enc := ma.Bytes()
		decoded, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, ma.String(), decoded.String())
	}
}

// normalizeV6 rewrites every /ip6 value in s to the fully expanded form
// String renders, so the table above compares equal up to IPv6
// normalization.
func normalizeV6(s string) string {
	tokens := strings.Split(s, "/")
	for i := 1; i < len(tokens)-1; i++ {
		if tokens[i] == "ip6" {
			if addr, err := netip.ParseAddr(tokens[i+1]); err == nil {
				tokens[i+1] = expandIPv6(addr)
			}
		}
	}
	return strings.Join(tokens, "/")
}

func TestScenarioB(t *testing.T) {
	// spec.md §8 Scenario B.
	ma, err := Parse("/ip4/127.0.0.1/tcp/4001/p2p/QmWATWQ7fVPP2EFGu71UkfnqhYXDYH566qy47CnJDgvsY2")
	require.NoError(t, err)

	host, ok := ma.IPAddress()
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", host)

	port, ok := ma.TCPPort()
	require.True(t, ok)
	require.Equal(t, uint16(4001), port)

	id, ok := ma.PeerID()
	require.True(t, ok)
	require.Equal(t, "QmWATWQ7fVPP2EFGu71UkfnqhYXDYH566qy47CnJDgvsY2", id.Base58())

	sock, ok := ma.SocketAddressString()
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:4001", sock)
}

func TestIPv6SocketAddressString(t *testing.T) {
	ma, err := Parse("/ip6/::1/udp/9000")
	require.NoError(t, err)
	sock, ok := ma.SocketAddressString()
	require.True(t, ok)
	require.True(t, strings.HasPrefix(sock, "["))
	require.True(t, strings.HasSuffix(sock, "]:9000"))
}

func TestTooManyComponents(t *testing.T) {
	var s strings.Builder
	for i := 0; i < MaxComponents+1; i++ {
		s.WriteString("/ip4/127.0.0.1")
	}
	_, err := Parse(s.String())
	require.ErrorIs(t, err, ErrTooManyComponents)
}

func TestEncapsulateDecapsulate(t *testing.T) {
	base, err := Parse("/ip4/127.0.0.1/tcp/4001")
	require.NoError(t, err)
	ws, err := Parse("/ws")
	require.NoError(t, err)

	full := base.Encapsulate(ws)
	require.Equal(t, "/ip4/127.0.0.1/tcp/4001/ws", full.String())

	back := full.DecapsulateFromCode(P_WS)
	require.Equal(t, base.String(), back.String())
}

func TestUnknownProtocol(t *testing.T) {
	_, err := Parse("/blorp/123")
	require.Error(t, err)
	var upe *UnknownProtocolError
	require.ErrorAs(t, err, &upe)
}

func TestFactoryHelpers(t *testing.T) {
	ma, err := QUIC("127.0.0.1", 4001)
	require.NoError(t, err)
	require.Equal(t, "/ip4/127.0.0.1/udp/4001/quic-v1", ma.String())

	mem := Memory("x1")
	require.Equal(t, "/memory/x1", mem.String())
}
