package transport

import (
	"context"
	"net"
	"sync"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

// TCP is a Transport backed by the stdlib net package.
type TCP struct{}

func (TCP) CanDial(addr multiaddr.Multiaddr) bool   { return isTCPAddr(addr) }
func (TCP) CanListen(addr multiaddr.Multiaddr) bool { return isTCPAddr(addr) }

func isTCPAddr(addr multiaddr.Multiaddr) bool {
	_, hasTCP := addr.FirstByCode(multiaddr.P_TCP)
	_, hasIP4 := addr.FirstByCode(multiaddr.P_IP4)
	_, hasIP6 := addr.FirstByCode(multiaddr.P_IP6)
	return hasTCP && (hasIP4 || hasIP6)
}

func (TCP) Dial(ctx context.Context, addr multiaddr.Multiaddr) (RawConn, error) {
	sock, ok := addr.SocketAddressString()
	if !ok {
		return nil, ErrUnsupportedAddress
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", sock)
	if err != nil {
		return nil, &IoError{Err: err}
	}
	return newTCPConn(conn)
}

func (TCP) Listen(addr multiaddr.Multiaddr) (Listener, error) {
	sock, ok := addr.SocketAddressString()
	if !ok {
		return nil, ErrUnsupportedAddress
	}

	ln, err := net.Listen("tcp", sock)
	if err != nil {
		if isAddrInUse(err) {
			return nil, ErrAddressInUse
		}
		return nil, &IoError{Err: err}
	}

	localAddr, err := netAddrToMultiaddr("tcp", ln.Addr())
	if err != nil {
		ln.Close()
		return nil, err
	}

	return &tcpListener{ln: ln, local: localAddr}, nil
}

func isAddrInUse(err error) bool {
	var opErr *net.OpError
	if ok := asOpError(err, &opErr); ok {
		return isAddrInUseSyscall(opErr.Err)
	}
	return false
}

type tcpConn struct {
	net.Conn
	local, remote multiaddr.Multiaddr

	mu          sync.Mutex
	readInFlight bool
}

func newTCPConn(conn net.Conn) (*tcpConn, error) {
	local, err := netAddrToMultiaddr("tcp", conn.LocalAddr())
	if err != nil {
		conn.Close()
		return nil, err
	}
	remote, err := netAddrToMultiaddr("tcp", conn.RemoteAddr())
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &tcpConn{Conn: conn, local: local, remote: remote}, nil
}

func (c *tcpConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	if c.readInFlight {
		c.mu.Unlock()
		return 0, ErrConcurrentRead
	}
	c.readInFlight = true
	c.mu.Unlock()

	n, err := c.Conn.Read(p)

	c.mu.Lock()
	c.readInFlight = false
	c.mu.Unlock()

	if err != nil {
		return n, &IoError{Err: err}
	}
	return n, nil
}

func (c *tcpConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if err != nil {
		return n, &IoError{Err: err}
	}
	return n, nil
}

func (c *tcpConn) LocalAddr() multiaddr.Multiaddr  { return c.local }
func (c *tcpConn) RemoteAddr() multiaddr.Multiaddr { return c.remote }

type tcpListener struct {
	ln    net.Listener
	local multiaddr.Multiaddr
}

func (l *tcpListener) Accept(ctx context.Context) (RawConn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := l.ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, ErrListenerClosed
		}
		return newTCPConn(r.conn)
	}
}

func (l *tcpListener) Close() error { return l.ln.Close() }
func (l *tcpListener) Addr() multiaddr.Multiaddr { return l.local }
