package transport

import (
	"context"
	"net"
	"sync"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

// UDP is a packet-oriented Transport. It demultiplexes a single bound
// socket into one virtual RawConn per remote source address, the same
// way QUIC and WebRTC-Direct demux a shared socket, but without any of
// their security or framing.
type UDP struct{}

func (UDP) CanDial(addr multiaddr.Multiaddr) bool   { return isUDPAddr(addr) }
func (UDP) CanListen(addr multiaddr.Multiaddr) bool { return isUDPAddr(addr) }

func isUDPAddr(addr multiaddr.Multiaddr) bool {
	_, hasUDP := addr.FirstByCode(multiaddr.P_UDP)
	_, hasIP4 := addr.FirstByCode(multiaddr.P_IP4)
	_, hasIP6 := addr.FirstByCode(multiaddr.P_IP6)
	return hasUDP && (hasIP4 || hasIP6)
}

func (UDP) Dial(ctx context.Context, addr multiaddr.Multiaddr) (RawConn, error) {
	sock, ok := addr.SocketAddressString()
	if !ok {
		return nil, ErrUnsupportedAddress
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", sock)
	if err != nil {
		return nil, &IoError{Err: err}
	}

	local, err := netAddrToMultiaddr("udp", conn.LocalAddr())
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &udpConn{Conn: conn, local: local, remote: addr}, nil
}

func (UDP) Listen(addr multiaddr.Multiaddr) (Listener, error) {
	sock, ok := addr.SocketAddressString()
	if !ok {
		return nil, ErrUnsupportedAddress
	}

	laddr, err := net.ResolveUDPAddr("udp", sock)
	if err != nil {
		return nil, &IoError{Err: err}
	}
	pc, err := net.ListenUDP("udp", laddr)
	if err != nil {
		if isAddrInUse(err) {
			return nil, ErrAddressInUse
		}
		return nil, &IoError{Err: err}
	}

	local, err := netAddrToMultiaddr("udp", pc.LocalAddr())
	if err != nil {
		pc.Close()
		return nil, err
	}

	l := &udpListener{
		pc:       pc,
		local:    local,
		sessions: map[string]*udpSession{},
		accept:   make(chan *udpConn),
		closed:   make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

type udpSession struct {
	inbound chan []byte
}

type udpListener struct {
	pc    *net.UDPConn
	local multiaddr.Multiaddr

	mu       sync.Mutex
	sessions map[string]*udpSession

	accept    chan *udpConn
	closeOnce sync.Once
	closed    chan struct{}
}

func (l *udpListener) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := l.pc.ReadFromUDP(buf)
		if err != nil {
			return
		}
		key := raddr.String()

		l.mu.Lock()
		sess, exists := l.sessions[key]
		if !exists {
			sess = &udpSession{inbound: make(chan []byte, 64)}
			l.sessions[key] = sess
		}
		l.mu.Unlock()

		payload := append([]byte(nil), buf[:n]...)

		if !exists {
			remote, err := netAddrToMultiaddr("udp", raddr)
			if err == nil {
				conn := &udpConn{
					pc:      l.pc,
					raddr:   raddr,
					local:   l.local,
					remote:  remote,
					inbound: sess.inbound,
				}
				select {
				case l.accept <- conn:
				case <-l.closed:
					return
				}
			}
		}

		select {
		case sess.inbound <- payload:
		default:
			// Slow consumer; drop rather than block the shared read loop.
		}
	}
}

func (l *udpListener) Accept(ctx context.Context) (RawConn, error) {
	select {
	case conn := <-l.accept:
		return conn, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *udpListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.pc.Close()
	})
	return nil
}

func (l *udpListener) Addr() multiaddr.Multiaddr { return l.local }

// udpConn is a virtual connection to one remote source address, either a
// genuinely connected dialed socket or a demultiplexed listener session.
type udpConn struct {
	net.Conn // non-nil only for the dialed case

	pc      *net.UDPConn // non-nil only for the listener case
	raddr   *net.UDPAddr
	local   multiaddr.Multiaddr
	remote  multiaddr.Multiaddr
	inbound chan []byte

	mu           sync.Mutex
	readInFlight bool
}

func (c *udpConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.readInFlight {
		c.mu.Unlock()
		return 0, ErrConcurrentRead
	}
	c.readInFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.readInFlight = false
		c.mu.Unlock()
	}()

	if c.Conn != nil {
		n, err := c.Conn.Read(p)
		if err != nil {
			return n, &IoError{Err: err}
		}
		return n, nil
	}

	payload, ok := <-c.inbound
	if !ok {
		return 0, ErrConnectionClosed
	}
	n := copy(p, payload)
	return n, nil
}

func (c *udpConn) Write(p []byte) (int, error) {
	if c.Conn != nil {
		n, err := c.Conn.Write(p)
		if err != nil {
			return n, &IoError{Err: err}
		}
		return n, nil
	}

	n, err := c.pc.WriteToUDP(p, c.raddr)
	if err != nil {
		return n, &IoError{Err: err}
	}
	return n, nil
}

func (c *udpConn) Close() error {
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

func (c *udpConn) LocalAddr() multiaddr.Multiaddr  { return c.local }
func (c *udpConn) RemoteAddr() multiaddr.Multiaddr { return c.remote }
