package transport

import (
	"context"
	"net"
	"sync"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

// memoryHub is process-wide state shared by every Memory transport
// instance, keyed by memory id. Real transports own no global state; this
// one deliberately does, per spec.md §5.
var memoryHub = struct {
	mu        sync.Mutex
	listeners map[string]*memoryListener
}{listeners: map[string]*memoryListener{}}

// ResetMemoryHub clears all registered in-memory listeners. Intended for
// test isolation between cases that each bind their own memory ids.
func ResetMemoryHub() {
	memoryHub.mu.Lock()
	defer memoryHub.mu.Unlock()
	memoryHub.listeners = map[string]*memoryListener{}
}

// Memory is a Transport that connects peers within the same process via
// net.Pipe, addressed by an opaque memory id instead of a socket address.
type Memory struct{}

func (Memory) CanDial(addr multiaddr.Multiaddr) bool   { return isMemoryAddr(addr) }
func (Memory) CanListen(addr multiaddr.Multiaddr) bool { return isMemoryAddr(addr) }

func isMemoryAddr(addr multiaddr.Multiaddr) bool {
	_, ok := addr.FirstByCode(multiaddr.P_MEMORY)
	return ok
}

func memoryID(addr multiaddr.Multiaddr) (string, bool) {
	c, ok := addr.FirstByCode(multiaddr.P_MEMORY)
	if !ok {
		return "", false
	}
	return string(c.Value), true
}

func (Memory) Dial(ctx context.Context, addr multiaddr.Multiaddr) (RawConn, error) {
	id, ok := memoryID(addr)
	if !ok {
		return nil, ErrUnsupportedAddress
	}

	memoryHub.mu.Lock()
	ln, ok := memoryHub.listeners[id]
	memoryHub.mu.Unlock()
	if !ok {
		return nil, ErrNoSuchListener
	}

	client, server := net.Pipe()
	select {
	case ln.pending <- server:
	case <-ln.closed:
		client.Close()
		server.Close()
		return nil, ErrNoSuchListener
	case <-ctx.Done():
		client.Close()
		server.Close()
		return nil, ctx.Err()
	}

	return &memoryConn{Conn: client, local: multiaddr.Memory(id + "-dial"), remote: addr}, nil
}

func (Memory) Listen(addr multiaddr.Multiaddr) (Listener, error) {
	id, ok := memoryID(addr)
	if !ok {
		return nil, ErrUnsupportedAddress
	}

	memoryHub.mu.Lock()
	defer memoryHub.mu.Unlock()

	if _, exists := memoryHub.listeners[id]; exists {
		return nil, ErrAddressInUse
	}

	ln := &memoryListener{
		id:      id,
		addr:    multiaddr.Memory(id),
		pending: make(chan net.Conn),
		closed:  make(chan struct{}),
	}
	memoryHub.listeners[id] = ln
	return ln, nil
}

type memoryListener struct {
	id      string
	addr    multiaddr.Multiaddr
	pending chan net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

func (l *memoryListener) Accept(ctx context.Context) (RawConn, error) {
	select {
	case conn := <-l.pending:
		return &memoryConn{Conn: conn, local: l.addr, remote: l.addr}, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *memoryListener) Close() error {
	l.closeOnce.Do(func() {
		memoryHub.mu.Lock()
		if memoryHub.listeners[l.id] == l {
			delete(memoryHub.listeners, l.id)
		}
		memoryHub.mu.Unlock()
		close(l.closed)
	})
	return nil
}

func (l *memoryListener) Addr() multiaddr.Multiaddr { return l.addr }

type memoryConn struct {
	net.Conn
	local, remote multiaddr.Multiaddr

	mu           sync.Mutex
	readInFlight bool
}

func (c *memoryConn) Read(p []byte) (int, error) {
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

func (c *memoryConn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	if err != nil {
		return n, &IoError{Err: err}
	}
	return n, nil
}

func (c *memoryConn) LocalAddr() multiaddr.Multiaddr  { return c.local }
func (c *memoryConn) RemoteAddr() multiaddr.Multiaddr { return c.remote }
