package rcmgr

import (
	"sync"

	"github.com/lanikai/libp2p-core-lite/peer"
)

// Manager is the resource accounting authority: it decides whether a new
// connection, stream, or memory allocation may proceed and tracks
// releases. It owns a single coarse lock over its whole state, because
// admission must be atomic across scopes (spec.md §5).
type Manager struct {
	mu     sync.Mutex
	config Config

	system    Stat
	peers     map[peer.ID]Stat
	protocols map[string]Stat
	services  map[string]Stat

	metrics *metricsSet
}

// New creates a Manager from the given configuration.
func New(config Config) *Manager {
	return &Manager{
		config:    config,
		peers:     map[peer.ID]Stat{},
		protocols: map[string]Stat{},
		services:  map[string]Stat{},
	}
}

// scopeEntry is one scope's current stat, its limit, and where to write
// the committed result back.
type scopeEntry struct {
	name  Scope
	stat  Stat
	limit Limit
	store func(Stat)
}

// checkAndApply validates delta against every entry in entries, in order,
// before mutating any of them. On the first violation it returns a
// LimitExceededError naming that scope/resource and leaves every entry
// untouched.
func checkAndApply(entries []scopeEntry, delta Stat) error {
	for _, e := range entries {
		if res, ok := withinLimit(e.stat, e.limit, delta); !ok {
			return &LimitExceededError{Scope: e.name, Resource: res}
		}
	}
	for _, e := range entries {
		next := addStat(e.stat, delta)
		e.store(next)
	}
	return nil
}

func addStat(s Stat, delta Stat) Stat {
	return Stat{
		InboundConns:    s.InboundConns + delta.InboundConns,
		OutboundConns:   s.OutboundConns + delta.OutboundConns,
		InboundStreams:  s.InboundStreams + delta.InboundStreams,
		OutboundStreams: s.OutboundStreams + delta.OutboundStreams,
		MemoryBytes:     s.MemoryBytes + delta.MemoryBytes,
	}
}

func saturatingSub(a, b int) int {
	if a <= b {
		return 0
	}
	return a - b
}

func saturatingSub64(a, b int64) int64 {
	if a <= b {
		return 0
	}
	return a - b
}

// withinLimit reports whether stat+delta stays within limit, and if not,
// which resource was the first to be violated.
func withinLimit(stat Stat, limit Limit, delta Stat) (Resource, bool) {
	next := addStat(stat, delta)

	if limit.InboundConns != nil && next.InboundConns > *limit.InboundConns {
		return ResourceInboundConns, false
	}
	if limit.OutboundConns != nil && next.OutboundConns > *limit.OutboundConns {
		return ResourceOutboundConns, false
	}
	if limit.InboundStreams != nil && next.InboundStreams > *limit.InboundStreams {
		return ResourceInboundStreams, false
	}
	if limit.OutboundStreams != nil && next.OutboundStreams > *limit.OutboundStreams {
		return ResourceOutboundStreams, false
	}
	if limit.MemoryBytes != nil && next.MemoryBytes > *limit.MemoryBytes {
		return ResourceMemory, false
	}
	if limit.MaxTotalConns != nil && next.TotalConns() > *limit.MaxTotalConns {
		return ResourceTotalConns, false
	}
	if limit.MaxTotalStreams != nil && next.TotalStreams() > *limit.MaxTotalStreams {
		return ResourceTotalStreams, false
	}
	return "", true
}

// --- connections ---

// ReserveInboundConn admits one inbound connection from p, checking
// system then peer scope, atomically.
func (m *Manager) ReserveInboundConn(p peer.ID) error {
	return m.reserveConn(p, Inbound)
}

// ReserveOutboundConn admits one outbound connection to p.
func (m *Manager) ReserveOutboundConn(p peer.ID) error {
	return m.reserveConn(p, Outbound)
}

func (m *Manager) reserveConn(p peer.ID, dir Direction) error {
	delta := Stat{}
	if dir == Inbound {
		delta.InboundConns = 1
	} else {
		delta.OutboundConns = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	peerStat := m.peers[p]
	entries := []scopeEntry{
		{ScopeSystem, m.system, m.config.System, func(s Stat) { m.system = s }},
		{ScopePeer, peerStat, m.config.limitForPeer(p), func(s Stat) { m.peers[p] = s }},
	}
	if err := checkAndApply(entries, delta); err != nil {
		return err
	}
	m.recordMetrics()
	return nil
}

// ReleaseConn decrements the given direction's counter for p, saturating
// at zero, and removes p's record if it becomes entirely zero.
func (m *Manager) ReleaseConn(p peer.ID, dir Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir == Inbound {
		m.system.InboundConns = saturatingSub(m.system.InboundConns, 1)
	} else {
		m.system.OutboundConns = saturatingSub(m.system.OutboundConns, 1)
	}

	stat := m.peers[p]
	if dir == Inbound {
		stat.InboundConns = saturatingSub(stat.InboundConns, 1)
	} else {
		stat.OutboundConns = saturatingSub(stat.OutboundConns, 1)
	}
	m.storePeer(p, stat)
	m.recordMetrics()
}

// --- streams ---

// ReserveStream admits one stream with p, direction dir, checking only
// system and peer scope.
func (m *Manager) ReserveStream(p peer.ID, dir Direction) error {
	return m.reserveStream("", p, dir)
}

// ReserveProtocolStream admits one stream for protocolID with p, checking
// system, peer, and protocol scope.
func (m *Manager) ReserveProtocolStream(protocolID string, p peer.ID, dir Direction) error {
	return m.reserveStream(protocolID, p, dir)
}

func (m *Manager) reserveStream(protocolID string, p peer.ID, dir Direction) error {
	delta := Stat{}
	if dir == Inbound {
		delta.InboundStreams = 1
	} else {
		delta.OutboundStreams = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	peerStat := m.peers[p]
	entries := []scopeEntry{
		{ScopeSystem, m.system, m.config.System, func(s Stat) { m.system = s }},
		{ScopePeer, peerStat, m.config.limitForPeer(p), func(s Stat) { m.peers[p] = s }},
	}
	if protocolID != "" {
		protoStat := m.protocols[protocolID]
		entries = append(entries, scopeEntry{
			ScopeProtocol, protoStat, m.config.limitForProtocol(protocolID),
			func(s Stat) { m.storeProtocol(protocolID, s) },
		})
	}

	if err := checkAndApply(entries, delta); err != nil {
		return err
	}
	m.recordMetrics()
	return nil
}

// ReleaseStream is the symmetric counterpart to ReserveStream/
// ReserveProtocolStream. protocolID may be empty.
func (m *Manager) ReleaseStream(protocolID string, p peer.ID, dir Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if dir == Inbound {
		m.system.InboundStreams = saturatingSub(m.system.InboundStreams, 1)
	} else {
		m.system.OutboundStreams = saturatingSub(m.system.OutboundStreams, 1)
	}

	peerStat := m.peers[p]
	if dir == Inbound {
		peerStat.InboundStreams = saturatingSub(peerStat.InboundStreams, 1)
	} else {
		peerStat.OutboundStreams = saturatingSub(peerStat.OutboundStreams, 1)
	}
	m.storePeer(p, peerStat)

	if protocolID != "" {
		protoStat := m.protocols[protocolID]
		if dir == Inbound {
			protoStat.InboundStreams = saturatingSub(protoStat.InboundStreams, 1)
		} else {
			protoStat.OutboundStreams = saturatingSub(protoStat.OutboundStreams, 1)
		}
		m.storeProtocol(protocolID, protoStat)
	}
	m.recordMetrics()
}

// --- memory ---

// ReserveMemory admits an allocation of n bytes attributed to p, checking
// system memory and p's memory.
func (m *Manager) ReserveMemory(n int64, p peer.ID) error {
	delta := Stat{MemoryBytes: n}

	m.mu.Lock()
	defer m.mu.Unlock()

	peerStat := m.peers[p]
	entries := []scopeEntry{
		{ScopeSystem, m.system, m.config.System, func(s Stat) { m.system = s }},
		{ScopePeer, peerStat, m.config.limitForPeer(p), func(s Stat) { m.peers[p] = s }},
	}
	if err := checkAndApply(entries, delta); err != nil {
		return err
	}
	m.recordMetrics()
	return nil
}

// ReleaseMemory releases n bytes previously reserved against p.
func (m *Manager) ReleaseMemory(n int64, p peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.system.MemoryBytes = saturatingSub64(m.system.MemoryBytes, n)
	stat := m.peers[p]
	stat.MemoryBytes = saturatingSub64(stat.MemoryBytes, n)
	m.storePeer(p, stat)
	m.recordMetrics()
}

// ReserveServiceMemory admits an allocation of n bytes attributed to a
// named service, checking system memory and the service's memory.
func (m *Manager) ReserveServiceMemory(n int64, service string) error {
	delta := Stat{MemoryBytes: n}

	m.mu.Lock()
	defer m.mu.Unlock()

	svcStat := m.services[service]
	entries := []scopeEntry{
		{ScopeSystem, m.system, m.config.System, func(s Stat) { m.system = s }},
		{ScopeService, svcStat, m.config.limitForService(service), func(s Stat) { m.storeService(service, s) }},
	}
	if err := checkAndApply(entries, delta); err != nil {
		return err
	}
	m.recordMetrics()
	return nil
}

// ReleaseServiceMemory releases n bytes previously reserved against a
// named service.
func (m *Manager) ReleaseServiceMemory(n int64, service string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.system.MemoryBytes = saturatingSub64(m.system.MemoryBytes, n)
	stat := m.services[service]
	stat.MemoryBytes = saturatingSub64(stat.MemoryBytes, n)
	m.storeService(service, stat)
	m.recordMetrics()
}

// --- GC helpers (caller holds m.mu) ---

func (m *Manager) storePeer(p peer.ID, stat Stat) {
	if stat.IsZero() {
		delete(m.peers, p)
		return
	}
	m.peers[p] = stat
}

func (m *Manager) storeProtocol(id string, stat Stat) {
	if stat.IsZero() {
		delete(m.protocols, id)
		return
	}
	m.protocols[id] = stat
}

func (m *Manager) storeService(id string, stat Stat) {
	if stat.IsZero() {
		delete(m.services, id)
		return
	}
	m.services[id] = stat
}

// --- snapshot ---

// Snapshot is a point-in-time copy of every scope's stats.
type Snapshot struct {
	System    Stat
	Peers     map[peer.ID]Stat
	Protocols map[string]Stat
	Services  map[string]Stat
}

// Snapshot returns a deep copy of the manager's current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	peers := make(map[peer.ID]Stat, len(m.peers))
	for k, v := range m.peers {
		peers[k] = v
	}
	protocols := make(map[string]Stat, len(m.protocols))
	for k, v := range m.protocols {
		protocols[k] = v
	}
	services := make(map[string]Stat, len(m.services))
	for k, v := range m.services {
		services[k] = v
	}
	return Snapshot{
		System:    m.system,
		Peers:     peers,
		Protocols: protocols,
		Services:  services,
	}
}
