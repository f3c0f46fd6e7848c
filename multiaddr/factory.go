package multiaddr

import "github.com/lanikai/libp2p-core-lite/peer"

// Factory helpers for known-small compositions bypass the general textual
// parser (and therefore its MaxComponents bookkeeping on the caller's
// behalf) because every component is already well-formed by construction.

func comp(code int, value []byte) Component { return Component{Code: code, Value: value} }

// TCP builds "/ip4-or-ip6/<host>/tcp/<port>".
func TCP(host string, port uint16) (Multiaddr, error) {
	return hostPort(P_TCP, host, port)
}

// UDP builds "/ip4-or-ip6/<host>/udp/<port>".
func UDP(host string, port uint16) (Multiaddr, error) {
	return hostPort(P_UDP, host, port)
}

// QUIC builds "/ip4-or-ip6/<host>/udp/<port>/quic-v1".
func QUIC(host string, port uint16) (Multiaddr, error) {
	base, err := hostPort(P_UDP, host, port)
	if err != nil {
		return Multiaddr{}, err
	}
	return base.Append(Multiaddr{components: []Component{comp(P_QUIC_V1, nil)}}), nil
}

// WS builds "/ip4-or-ip6/<host>/tcp/<port>/ws".
func WS(host string, port uint16) (Multiaddr, error) {
	base, err := hostPort(P_TCP, host, port)
	if err != nil {
		return Multiaddr{}, err
	}
	return base.Append(Multiaddr{components: []Component{comp(P_WS, nil)}}), nil
}

// WSS builds "/ip4-or-ip6/<host>/tcp/<port>/wss".
func WSS(host string, port uint16) (Multiaddr, error) {
	base, err := hostPort(P_TCP, host, port)
	if err != nil {
		return Multiaddr{}, err
	}
	return base.Append(Multiaddr{components: []Component{comp(P_WSS, nil)}}), nil
}

// WebTransport builds "/ip4-or-ip6/<host>/udp/<port>/quic-v1/webtransport".
func WebTransport(host string, port uint16) (Multiaddr, error) {
	base, err := QUIC(host, port)
	if err != nil {
		return Multiaddr{}, err
	}
	return base.Append(Multiaddr{components: []Component{comp(P_WEBTRANSPORT, nil)}}), nil
}

// WebRTCDirect builds "/ip4-or-ip6/<host>/udp/<port>/webrtc-direct".
func WebRTCDirect(host string, port uint16) (Multiaddr, error) {
	base, err := hostPort(P_UDP, host, port)
	if err != nil {
		return Multiaddr{}, err
	}
	return base.Append(Multiaddr{components: []Component{comp(P_WEBRTC_DIRECT, nil)}}), nil
}

// Memory builds "/memory/<id>", the in-process transport's address form.
func Memory(id string) Multiaddr {
	return Multiaddr{components: []Component{comp(P_MEMORY, []byte(id))}}
}

// WithPeer appends "/p2p/<id>" to an existing address.
func WithPeer(base Multiaddr, id peer.ID) Multiaddr {
	return base.Append(Multiaddr{components: []Component{comp(P_P2P, id.Bytes())}})
}

func hostPort(portCode int, host string, port uint16) (Multiaddr, error) {
	ipCode, value, err := hostToIPComponent(host)
	if err != nil {
		return Multiaddr{}, err
	}
	portValue := []byte{byte(port >> 8), byte(port)}
	return Multiaddr{components: []Component{
		comp(ipCode, value),
		comp(portCode, portValue),
	}}, nil
}

func hostToIPComponent(host string) (int, []byte, error) {
	if v, err := (ip4Transcoder{}).stringToBytes(host); err == nil {
		return P_IP4, v, nil
	}
	if v, err := (ip6Transcoder{}).stringToBytes(host); err == nil {
		return P_IP6, v, nil
	}
	return 0, nil, ErrInvalidAddress
}
