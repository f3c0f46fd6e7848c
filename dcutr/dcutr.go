// Package dcutr implements the DCUtR hole-punch protocol state machine
// (spec.md §4.14): once two peers are connected through a relay, this
// package coordinates a simultaneous dial so both sides punch through
// their NATs and end up with a direct MuxedConnection instead.
package dcutr

import (
	"fmt"
	"net"
	"strings"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
	"github.com/lanikai/libp2p-core-lite/multiaddr"
	"github.com/lanikai/libp2p-core-lite/protoutil"
)

// ProtocolID is the multistream-select protocol id negotiated for the
// DCUtR stream.
const ProtocolID = "/libp2p/dcutr"

// MaxMessageSize bounds a single HolePunch wire message.
const MaxMessageSize = 4096

// HolePunch message types (spec.md §4.14's wire format). The type field
// carries the value as a varint.
type msgType uint64

const (
	msgTypeConnect msgType = 100
	msgTypeSync    msgType = 300
)

// Field numbers of the HolePunch protobuf-lite message.
const (
	fieldType     = 1
	fieldObsAddrs = 2
)

var (
	ErrProtocolViolation    = fmt.Errorf("dcutr: protocol violation")
	ErrNoAddresses          = fmt.Errorf("dcutr: no addresses")
	ErrAllDialsFailed       = fmt.Errorf("dcutr: all dials failed")
	ErrTimeout              = fmt.Errorf("dcutr: timeout")
	ErrNotRelayedConnection = fmt.Errorf("dcutr: connection is not relayed")
	ErrEncoding             = fmt.Errorf("dcutr: encoding error")
)

// MaxAttemptsExceededError wraps the last inner error from a retry loop
// that exhausted its attempt budget.
type MaxAttemptsExceededError struct{ Inner error }

func (e *MaxAttemptsExceededError) Error() string {
	return fmt.Sprintf("dcutr: max attempts exceeded: %v", e.Inner)
}
func (e *MaxAttemptsExceededError) Unwrap() error { return e.Inner }

type holePunchMessage struct {
	typ      msgType
	obsAddrs []multiaddr.Multiaddr
}

func encodeMessage(m holePunchMessage) []byte {
	var buf []byte
	buf = protoutil.Encode(buf, fieldType, varint.Encode(uint64(m.typ)))
	for _, a := range m.obsAddrs {
		buf = protoutil.Encode(buf, fieldObsAddrs, a.Bytes())
	}
	return buf
}

func decodeMessage(buf []byte) (holePunchMessage, error) {
	fields, err := protoutil.Decode(buf, MaxMessageSize)
	if err != nil {
		return holePunchMessage{}, ErrEncoding
	}

	typBytes, ok := protoutil.First(fields, fieldType)
	if !ok {
		return holePunchMessage{}, ErrEncoding
	}
	typ, n, err := varint.Decode(typBytes)
	if err != nil || n != len(typBytes) {
		return holePunchMessage{}, ErrEncoding
	}

	var m holePunchMessage
	m.typ = msgType(typ)
	for _, raw := range protoutil.All(fields, fieldObsAddrs) {
		addr, err := multiaddr.Decode(raw)
		if err != nil {
			continue // skip unparsable hints; the rest of the message still stands
		}
		m.obsAddrs = append(m.obsAddrs, addr)
	}
	return m, nil
}

// filterDialable discards loopback, unspecified, and private-range
// addresses, per spec.md §4.14's address-filtering step.
func filterDialable(addrs []multiaddr.Multiaddr) []multiaddr.Multiaddr {
	out := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		host, ok := a.IPAddress()
		if !ok {
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil || !dialableIP(ip) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func dialableIP(ip net.IP) bool {
	return !ip.IsLoopback() && !ip.IsUnspecified() && !ip.IsLinkLocalUnicast() && !ip.IsPrivate()
}

// usesQUIC reports whether addr should be dialed over QUIC rather than
// TCP simultaneous-open, per spec.md §4.14's transport-detection rule.
func usesQUIC(addr multiaddr.Multiaddr) bool {
	return strings.Contains(addr.String(), "quic")
}
