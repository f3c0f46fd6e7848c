package webrtcdirect

import "net"

// preflightMagic tags this package's one-shot rendezvous datagram (see
// webrtcdirect.go) so demuxConn can steer it away from pion's ICE/STUN
// reader instead of corrupting the ICE agent's read loop. STUN messages
// always start with the top two bits clear (RFC 5389 §6), so any byte
// with either top bit set is unambiguously not STUN.
const preflightMagic = 0xF9

type preflightPacket struct {
	data []byte
	addr net.Addr
}

// demuxConn wraps a shared UDP socket so a listener can run pion's ICE
// agent and this package's unsigned rendezvous exchange over the same
// bound port: ReadFrom intercepts preflight datagrams before pion's ICE
// UDP mux ever sees them.
type demuxConn struct {
	*net.UDPConn
	preflight chan preflightPacket
}

func newDemuxConn(conn *net.UDPConn) *demuxConn {
	return &demuxConn{UDPConn: conn, preflight: make(chan preflightPacket, 16)}
}

func (d *demuxConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		n, addr, err := d.UDPConn.ReadFrom(p)
		if err != nil {
			return n, addr, err
		}
		if n > 0 && p[0] == preflightMagic {
			cp := make([]byte, n-1)
			copy(cp, p[1:n])
			select {
			case d.preflight <- preflightPacket{data: cp, addr: addr}:
			default:
			}
			continue
		}
		return n, addr, nil
	}
}
