package rcmgr

import "fmt"

// Scope names the level of the hierarchy a LimitExceededError applies to.
type Scope string

const (
	ScopeSystem   Scope = "system"
	ScopePeer     Scope = "peer"
	ScopeProtocol Scope = "protocol"
	ScopeService  Scope = "service"
)

// Resource names which counter was violated.
type Resource string

const (
	ResourceInboundConns    Resource = "inbound_conns"
	ResourceOutboundConns   Resource = "outbound_conns"
	ResourceInboundStreams  Resource = "inbound_streams"
	ResourceOutboundStreams Resource = "outbound_streams"
	ResourceMemory          Resource = "memory"
	ResourceTotalConns      Resource = "total_conns"
	ResourceTotalStreams    Resource = "total_streams"
)

// LimitExceededError reports the first scope/resource pair that refused
// admission; per spec.md §4.6 no other scope is ever mutated once this is
// returned.
type LimitExceededError struct {
	Scope    Scope
	Resource Resource
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rcmgr: limit exceeded: scope=%s resource=%s", e.Scope, e.Resource)
}
