package rcmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/libp2p-core-lite/peer"
)

func testPeer(t *testing.T) peer.ID {
	t.Helper()
	priv, pub, err := peer.GenerateEd25519()
	require.NoError(t, err)
	_ = priv
	id, err := peer.FromPublicKey(pub)
	require.NoError(t, err)
	return id
}

func TestReserveAndReleaseConn(t *testing.T) {
	m := New(DefaultConfig())
	p := testPeer(t)

	require.NoError(t, m.ReserveInboundConn(p))
	snap := m.Snapshot()
	require.Equal(t, 1, snap.System.InboundConns)
	require.Equal(t, 1, snap.Peers[p].InboundConns)

	m.ReleaseConn(p, Inbound)
	snap = m.Snapshot()
	require.Equal(t, 0, snap.System.InboundConns)
	_, present := snap.Peers[p]
	require.False(t, present, "zero-stat peer record must be garbage collected")
}

func TestPeerLimitRejectsAtomically(t *testing.T) {
	cfg := DefaultConfig()
	one := 1
	cfg.DefaultPeer.InboundConns = &one

	m := New(cfg)
	p := testPeer(t)

	require.NoError(t, m.ReserveInboundConn(p))
	err := m.ReserveInboundConn(p)
	require.Error(t, err)

	var lim *LimitExceededError
	require.ErrorAs(t, err, &lim)
	require.Equal(t, ScopePeer, lim.Scope)
	require.Equal(t, ResourceInboundConns, lim.Resource)

	// System scope must not have been mutated by the rejected reservation.
	snap := m.Snapshot()
	require.Equal(t, 1, snap.System.InboundConns)
}

func TestSystemLimitBlocksBeforePeerScope(t *testing.T) {
	cfg := DefaultConfig()
	zero := 0
	cfg.System.InboundConns = &zero

	m := New(cfg)
	p := testPeer(t)

	err := m.ReserveInboundConn(p)
	require.Error(t, err)

	var lim *LimitExceededError
	require.ErrorAs(t, err, &lim)
	require.Equal(t, ScopeSystem, lim.Scope)

	// Peer scope must remain untouched: atomic admit-or-none.
	snap := m.Snapshot()
	_, present := snap.Peers[p]
	require.False(t, present)
}

func TestReleaseSaturatesAtZero(t *testing.T) {
	m := New(DefaultConfig())
	p := testPeer(t)

	m.ReleaseConn(p, Inbound)
	m.ReleaseConn(p, Inbound)

	snap := m.Snapshot()
	require.Equal(t, 0, snap.System.InboundConns)
}

func TestProtocolScopeChecked(t *testing.T) {
	cfg := DefaultConfig()
	zero := 0
	cfg.ProtocolOverrides = map[string]Limit{"/demo/1.0.0": {InboundStreams: &zero}}

	m := New(cfg)
	p := testPeer(t)

	err := m.ReserveProtocolStream("/demo/1.0.0", p, Inbound)
	require.Error(t, err)

	var lim *LimitExceededError
	require.ErrorAs(t, err, &lim)
	require.Equal(t, ScopeProtocol, lim.Scope)
}

func TestReserveMemory(t *testing.T) {
	cfg := DefaultConfig()
	cap := int64(100)
	cfg.DefaultPeer.MemoryBytes = &cap

	m := New(cfg)
	p := testPeer(t)

	require.NoError(t, m.ReserveMemory(100, p))
	err := m.ReserveMemory(1, p)
	require.Error(t, err)

	m.ReleaseMemory(100, p)
	snap := m.Snapshot()
	_, present := snap.Peers[p]
	require.False(t, present)
}

func TestServiceMemoryIndependentOfPeer(t *testing.T) {
	m := New(DefaultConfig())
	require.NoError(t, m.ReserveServiceMemory(1024, "dcutr"))

	snap := m.Snapshot()
	require.Equal(t, int64(1024), snap.Services["dcutr"].MemoryBytes)

	m.ReleaseServiceMemory(1024, "dcutr")
	snap = m.Snapshot()
	_, present := snap.Services["dcutr"]
	require.False(t, present)
}
