// Package multiaddr implements the self-describing composable network
// address described in spec.md §3/§4.3.
package multiaddr

import (
	"strings"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
	"github.com/lanikai/libp2p-core-lite/peer"
)

// Component is one typed element of a Multiaddr. Value holds the binary
// representation (the transcoder's stringToBytes output), not the textual
// form.
type Component struct {
	Code  int
	Value []byte
}

// Multiaddr is an ordered, finite sequence of Components.
type Multiaddr struct {
	components []Component
}

// Components returns a copy of the address's component list.
func (m Multiaddr) Components() []Component {
	out := make([]Component, len(m.components))
	copy(out, m.components)
	return out
}

// Len reports the number of components.
func (m Multiaddr) Len() int { return len(m.components) }

// --- binary codec ---

// Bytes returns the binary encoding: varint(code) || value, concatenated
// per component.
func (m Multiaddr) Bytes() []byte {
	var buf []byte
	for _, c := range m.components {
		buf = varint.AppendUvarint(buf, uint64(c.Code))
		info, ok := protocolsByCode[c.Code]
		if ok && info.Size == -1 {
			buf = varint.AppendUvarint(buf, uint64(len(c.Value)))
		}
		buf = append(buf, c.Value...)
	}
	return buf
}

// Decode parses the binary form of a Multiaddr.
func Decode(b []byte) (Multiaddr, error) {
	if len(b) > MaxEncodedSize {
		return Multiaddr{}, ErrInputTooLarge
	}

	var components []Component
	for len(b) > 0 {
		if len(components) >= MaxComponents {
			return Multiaddr{}, ErrTooManyComponents
		}

		code, n, err := varint.Decode(b)
		if err != nil {
			return Multiaddr{}, ErrInvalidFormat
		}
		b = b[n:]

		info, ok := protocolsByCode[int(code)]
		if !ok {
			return Multiaddr{}, &UnknownProtocolError{Code: int(code)}
		}

		var value []byte
		switch {
		case info.Size == 0:
			value = nil
		case info.Size == -1:
			length, ln, err := varint.Decode(b)
			if err != nil {
				return Multiaddr{}, ErrInvalidFormat
			}
			b = b[ln:]
			if uint64(len(b)) < length {
				return Multiaddr{}, ErrInvalidFormat
			}
			value = append([]byte(nil), b[:length]...)
			b = b[length:]
		default:
			size := info.Size / 8
			if len(b) < size {
				return Multiaddr{}, ErrInvalidFormat
			}
			value = append([]byte(nil), b[:size]...)
			b = b[size:]
		}

		if err := validateComponentValue(info, value); err != nil {
			return Multiaddr{}, err
		}

		components = append(components, Component{Code: int(code), Value: value})
	}
	return Multiaddr{components: components}, nil
}

// validateComponentValue re-runs the protocol's transcoder over a decoded
// binary value to enforce the same syntactic checks textual parsing gets
// (spec.md §9: validation is always-on, not "strict vs lax").
func validateComponentValue(info protoInfo, value []byte) error {
	if info.Transcoder == nil {
		return nil
	}
	_, err := info.Transcoder.bytesToString(value)
	return err
}

// --- textual codec ---

// String renders the address in "/name/value/..." textual form.
func (m Multiaddr) String() string {
	var sb strings.Builder
	for _, c := range m.components {
		info := protocolsByCode[c.Code]
		sb.WriteByte('/')
		sb.WriteString(info.Name)
		if info.hasValue() {
			s, err := info.Transcoder.bytesToString(c.Value)
			if err == nil {
				sb.WriteByte('/')
				sb.WriteString(s)
			}
		}
	}
	return sb.String()
}

// Parse parses the textual form of a Multiaddr.
func Parse(s string) (Multiaddr, error) {
	if len(s) > MaxEncodedSize {
		return Multiaddr{}, ErrInputTooLarge
	}
	if s == "" || s == "/" {
		return Multiaddr{}, nil
	}
	if s[0] != '/' {
		return Multiaddr{}, ErrInvalidFormat
	}

	tokens := strings.Split(s, "/")[1:] // drop leading empty token

	var components []Component
	i := 0
	for i < len(tokens) {
		if len(components) >= MaxComponents {
			return Multiaddr{}, ErrTooManyComponents
		}

		name := tokens[i]
		i++
		info, ok := protocolsByName[name]
		if !ok {
			return Multiaddr{}, &UnknownProtocolError{Name: name}
		}

		var value []byte
		if info.hasValue() {
			if info.isPath() {
				if i >= len(tokens) {
					return Multiaddr{}, ErrMissingValue
				}
				raw := strings.Join(tokens[i:], "/")
				i = len(tokens)
				v, err := info.Transcoder.stringToBytes(raw)
				if err != nil {
					return Multiaddr{}, err
				}
				value = v
			} else {
				if i >= len(tokens) {
					return Multiaddr{}, ErrMissingValue
				}
				v, err := info.Transcoder.stringToBytes(tokens[i])
				if err != nil {
					return Multiaddr{}, err
				}
				value = v
				i++
			}
		}

		components = append(components, Component{Code: info.Code, Value: value})
	}

	ma := Multiaddr{components: components}
	if len(ma.Bytes()) > MaxEncodedSize {
		return Multiaddr{}, ErrInputTooLarge
	}
	return ma, nil
}

// --- operations (spec.md §3) ---

// FirstByCode returns the first component with the given code.
func (m Multiaddr) FirstByCode(code int) (Component, bool) {
	for _, c := range m.components {
		if c.Code == code {
			return c, true
		}
	}
	return Component{}, false
}

// FilterByCode returns every component with the given code, in order.
func (m Multiaddr) FilterByCode(code int) []Component {
	var out []Component
	for _, c := range m.components {
		if c.Code == code {
			out = append(out, c)
		}
	}
	return out
}

// Append returns a new Multiaddr with other's components appended.
func (m Multiaddr) Append(other Multiaddr) Multiaddr {
	out := make([]Component, 0, len(m.components)+len(other.components))
	out = append(out, m.components...)
	out = append(out, other.components...)
	return Multiaddr{components: out}
}

// Encapsulate is an alias for Append, matching spec.md's naming.
func (m Multiaddr) Encapsulate(other Multiaddr) Multiaddr { return m.Append(other) }

// DecapsulateFromCode returns a new Multiaddr truncated immediately before
// the last component matching code (removing that component and
// everything after it). If no component matches, m is returned unchanged.
func (m Multiaddr) DecapsulateFromCode(code int) Multiaddr {
	last := -1
	for i, c := range m.components {
		if c.Code == code {
			last = i
		}
	}
	if last == -1 {
		return m
	}
	out := make([]Component, last)
	copy(out, m.components[:last])
	return Multiaddr{components: out}
}

// PeerID returns the peer id carried by a /p2p component, if present.
func (m Multiaddr) PeerID() (peer.ID, bool) {
	c, ok := m.FirstByCode(P_P2P)
	if !ok {
		return "", false
	}
	return peer.ID(c.Value), true
}

// IPAddress returns the textual IPv4 or IPv6 address, if present.
func (m Multiaddr) IPAddress() (string, bool) {
	if c, ok := m.FirstByCode(P_IP4); ok {
		s, err := ip4Transcoder{}.bytesToString(c.Value)
		return s, err == nil
	}
	if c, ok := m.FirstByCode(P_IP6); ok {
		s, err := ip6Transcoder{}.bytesToString(c.Value)
		return s, err == nil
	}
	return "", false
}

// TCPPort returns the /tcp port, if present.
func (m Multiaddr) TCPPort() (uint16, bool) { return portOf(m, P_TCP) }

// UDPPort returns the /udp port, if present.
func (m Multiaddr) UDPPort() (uint16, bool) { return portOf(m, P_UDP) }

func portOf(m Multiaddr, code int) (uint16, bool) {
	c, ok := m.FirstByCode(code)
	if !ok || len(c.Value) != 2 {
		return 0, false
	}
	return uint16(c.Value[0])<<8 | uint16(c.Value[1]), true
}

// SocketAddressString renders "host:port" for IPv4 or "[host]:port" for
// IPv6, using the first /tcp or /udp port found.
func (m Multiaddr) SocketAddressString() (string, bool) {
	host, ok := m.IPAddress()
	if !ok {
		return "", false
	}
	port, ok := m.TCPPort()
	if !ok {
		port, ok = m.UDPPort()
	}
	if !ok {
		return "", false
	}
	_, isV6 := m.FirstByCode(P_IP6)
	if isV6 {
		return "[" + host + "]:" + formatUint(uint64(port)), true
	}
	return host + ":" + formatUint(uint64(port)), true
}
