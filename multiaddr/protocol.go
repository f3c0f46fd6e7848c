package multiaddr

import "net/netip"

// Protocol codes, per the multiaddr multicodec table (spec.md §3).
const (
	P_IP4           = 0x04
	P_TCP           = 0x06
	P_UDP           = 0x0111
	P_DNS           = 0x35
	P_DNS4          = 0x36
	P_DNS6          = 0x37
	P_DNSADDR       = 0x38
	P_IP6           = 0x29
	P_IP6ZONE       = 0x2A
	P_QUIC_V1       = 0x01CC
	P_WS            = 0x01DD
	P_WSS           = 0x01DE
	P_WEBTRANSPORT  = 0x01D1
	P_WEBRTC_DIRECT = 0x0114
	P_CERTHASH      = 0x01D2
	P_P2P           = 0x01A5
	P_UNIX          = 0x0190
	P_MEMORY        = 0x0309
	P_CIRCUIT       = 0x0122
)

// transcoder converts a component's value between its textual and binary
// representations.
type transcoder interface {
	stringToBytes(s string) ([]byte, error)
	bytesToString(b []byte) (string, error)
}

// protoInfo describes one entry in the closed protocol registry.
type protoInfo struct {
	Code int
	Name string
	// Size is the value's size in bits for a fixed-size value, or -1 for a
	// variable-length (length-prefixed) value, or 0 for a value-less
	// protocol (quic-v1, ws, wss, webtransport, webrtc-direct,
	// p2p-circuit).
	Size       int
	Transcoder transcoder
}

var protocolsByCode = map[int]protoInfo{}
var protocolsByName = map[string]protoInfo{}

func register(p protoInfo) {
	protocolsByCode[p.Code] = p
	protocolsByName[p.Name] = p
}

func init() {
	register(protoInfo{Code: P_IP4, Name: "ip4", Size: 32, Transcoder: ip4Transcoder{}})
	register(protoInfo{Code: P_IP6, Name: "ip6", Size: 128, Transcoder: ip6Transcoder{}})
	register(protoInfo{Code: P_IP6ZONE, Name: "ip6zone", Size: -1, Transcoder: utf8Transcoder{}})
	register(protoInfo{Code: P_TCP, Name: "tcp", Size: 16, Transcoder: portTranscoder{}})
	register(protoInfo{Code: P_UDP, Name: "udp", Size: 16, Transcoder: portTranscoder{}})
	register(protoInfo{Code: P_QUIC_V1, Name: "quic-v1", Size: 0, Transcoder: nil})
	register(protoInfo{Code: P_WS, Name: "ws", Size: 0, Transcoder: nil})
	register(protoInfo{Code: P_WSS, Name: "wss", Size: 0, Transcoder: nil})
	register(protoInfo{Code: P_WEBTRANSPORT, Name: "webtransport", Size: 0, Transcoder: nil})
	register(protoInfo{Code: P_WEBRTC_DIRECT, Name: "webrtc-direct", Size: 0, Transcoder: nil})
	register(protoInfo{Code: P_CERTHASH, Name: "certhash", Size: -1, Transcoder: multibaseTranscoder{}})
	register(protoInfo{Code: P_P2P, Name: "p2p", Size: -1, Transcoder: peerIDTranscoder{}})
	register(protoInfo{Code: P_DNS, Name: "dns", Size: -1, Transcoder: utf8Transcoder{}})
	register(protoInfo{Code: P_DNS4, Name: "dns4", Size: -1, Transcoder: utf8Transcoder{}})
	register(protoInfo{Code: P_DNS6, Name: "dns6", Size: -1, Transcoder: utf8Transcoder{}})
	register(protoInfo{Code: P_DNSADDR, Name: "dnsaddr", Size: -1, Transcoder: utf8Transcoder{}})
	register(protoInfo{Code: P_UNIX, Name: "unix", Size: -1, Transcoder: utf8PathTranscoder{}})
	register(protoInfo{Code: P_MEMORY, Name: "memory", Size: -1, Transcoder: utf8Transcoder{}})
	register(protoInfo{Code: P_CIRCUIT, Name: "p2p-circuit", Size: 0, Transcoder: nil})
}

// hasValue reports whether a component of this protocol carries a value
// token at all (some, like "ws", appear alone in textual form).
func (p protoInfo) hasValue() bool { return p.Transcoder != nil }

// --- transcoders ---

type ip4Transcoder struct{}

func (ip4Transcoder) stringToBytes(s string) ([]byte, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return nil, ErrInvalidAddress
	}
	b := addr.As4()
	return b[:], nil
}
func (ip4Transcoder) bytesToString(b []byte) (string, error) {
	if len(b) != 4 {
		return "", ErrInvalidAddress
	}
	addr := netip.AddrFrom4([4]byte{b[0], b[1], b[2], b[3]})
	return addr.String(), nil
}

type ip6Transcoder struct{}

func (ip6Transcoder) stringToBytes(s string) ([]byte, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is6() {
		return nil, ErrInvalidAddress
	}
	b := addr.As16()
	return b[:], nil
}
func (ip6Transcoder) bytesToString(b []byte) (string, error) {
	if len(b) != 16 {
		return "", ErrInvalidAddress
	}
	var a [16]byte
	copy(a[:], b)
	addr := netip.AddrFrom16(a)
	// Normalize to the fully expanded, lower-case eight-group form per
	// spec.md §3, rather than netip's zero-compressed default String().
	return expandIPv6(addr), nil
}

type portTranscoder struct{}

func (portTranscoder) stringToBytes(s string) ([]byte, error) {
	n, err := parseUint16(s)
	if err != nil {
		return nil, ErrInvalidFormat
	}
	return []byte{byte(n >> 8), byte(n)}, nil
}
func (portTranscoder) bytesToString(b []byte) (string, error) {
	if len(b) != 2 {
		return "", ErrInvalidFormat
	}
	n := uint16(b[0])<<8 | uint16(b[1])
	return formatUint(uint64(n)), nil
}

type utf8Transcoder struct{}

func (utf8Transcoder) stringToBytes(s string) ([]byte, error) { return []byte(s), nil }
func (utf8Transcoder) bytesToString(b []byte) (string, error) { return string(b), nil }

// utf8PathTranscoder is for protocols whose value itself may contain "/"
// (unix socket paths); textual parsing for these consumes
// the remainder of the string instead of stopping at the next "/".
type utf8PathTranscoder struct{}

func (utf8PathTranscoder) stringToBytes(s string) ([]byte, error) { return []byte(s), nil }
func (utf8PathTranscoder) bytesToString(b []byte) (string, error) { return string(b), nil }

func (p protoInfo) isPath() bool {
	_, ok := p.Transcoder.(utf8PathTranscoder)
	return ok
}
