package muxer

// ViaRelay is implemented by a MuxedConnection that was obtained by
// dialing a /p2p-circuit address, giving DCUtR (dcutr package) something
// concrete to check for its NotRelayedConnection precondition (spec.md
// §4.14 names the error without defining what "relayed" means
// structurally).
type ViaRelay interface {
	ViaRelay() bool
}

type relayMarkedConnection struct {
	MuxedConnection
}

func (*relayMarkedConnection) ViaRelay() bool { return true }

// MarkViaRelay wraps conn so IsViaRelay reports true for it.
func MarkViaRelay(conn MuxedConnection) MuxedConnection {
	return &relayMarkedConnection{MuxedConnection: conn}
}

// IsViaRelay reports whether conn was obtained through a relay address.
func IsViaRelay(conn MuxedConnection) bool {
	r, ok := conn.(ViaRelay)
	return ok && r.ViaRelay()
}
