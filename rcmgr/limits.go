// Package rcmgr implements the hierarchical resource manager (spec.md
// §4.6): system/peer/protocol/service scopes with atomic multi-scope
// admission and saturating release.
package rcmgr

import "github.com/lanikai/libp2p-core-lite/peer"

// Direction distinguishes inbound from outbound connections/streams.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Stat is the five-counter resource usage record named in spec.md §3.
type Stat struct {
	InboundConns    int
	OutboundConns   int
	InboundStreams  int
	OutboundStreams int
	MemoryBytes     int64
}

// IsZero reports whether every counter is zero.
func (s Stat) IsZero() bool {
	return s.InboundConns == 0 && s.OutboundConns == 0 &&
		s.InboundStreams == 0 && s.OutboundStreams == 0 && s.MemoryBytes == 0
}

// TotalConns returns inbound+outbound connection count.
func (s Stat) TotalConns() int { return s.InboundConns + s.OutboundConns }

// TotalStreams returns inbound+outbound stream count.
func (s Stat) TotalStreams() int { return s.InboundStreams + s.OutboundStreams }

// Limit is an independent optional upper bound per counter; a zero value
// in any field means "unlimited" for that field. Use Unlimited() to mean
// "no bound at all" unambiguously versus an intentional cap of zero.
type Limit struct {
	InboundConns       *int
	OutboundConns      *int
	InboundStreams     *int
	OutboundStreams    *int
	MemoryBytes        *int64
	MaxTotalConns      *int
	MaxTotalStreams    *int
}

func intp(n int) *int       { return &n }
func i64p(n int64) *int64   { return &n }

// Unlimited returns a Limit with every bound absent.
func Unlimited() Limit { return Limit{} }

// DefaultSystemLimit is a reasonably conservative system-wide ceiling.
func DefaultSystemLimit() Limit {
	return Limit{
		InboundConns:    intp(1024),
		OutboundConns:   intp(1024),
		InboundStreams:  intp(4096),
		OutboundStreams: intp(4096),
		MemoryBytes:     i64p(1 << 30),
		MaxTotalConns:   intp(2048),
		MaxTotalStreams: intp(8192),
	}
}

// DefaultPeerLimit is the default per-peer ceiling.
func DefaultPeerLimit() Limit {
	return Limit{
		InboundConns:    intp(8),
		OutboundConns:   intp(8),
		InboundStreams:  intp(256),
		OutboundStreams: intp(256),
		MemoryBytes:     i64p(16 << 20),
		MaxTotalConns:   intp(16),
		MaxTotalStreams: intp(512),
	}
}

// Config bundles every configurable limit, including per-id overrides.
type Config struct {
	System          Limit
	DefaultPeer     Limit
	PeerOverrides   map[peer.ID]Limit
	DefaultProtocol Limit
	ProtocolOverrides map[string]Limit
	DefaultService  Limit
	ServiceOverrides map[string]Limit
}

// DefaultConfig returns a Config with conservative system/peer defaults
// and no overrides.
func DefaultConfig() Config {
	return Config{
		System:            DefaultSystemLimit(),
		DefaultPeer:       DefaultPeerLimit(),
		PeerOverrides:     map[peer.ID]Limit{},
		DefaultProtocol:   Unlimited(),
		ProtocolOverrides: map[string]Limit{},
		DefaultService:    Unlimited(),
		ServiceOverrides:  map[string]Limit{},
	}
}

func (c Config) limitForPeer(p peer.ID) Limit {
	if l, ok := c.PeerOverrides[p]; ok {
		return l
	}
	return c.DefaultPeer
}

func (c Config) limitForProtocol(id string) Limit {
	if l, ok := c.ProtocolOverrides[id]; ok {
		return l
	}
	return c.DefaultProtocol
}

func (c Config) limitForService(id string) Limit {
	if l, ok := c.ServiceOverrides[id]; ok {
		return l
	}
	return c.DefaultService
}
