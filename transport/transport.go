// Package transport implements the raw byte-stream transport layer
// (spec.md §4.8): dialers and listeners over TCP, an in-memory hub, and a
// UDP adapter, with no security or multiplexing of their own.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/lanikai/libp2p-core-lite/multiaddr"
)

// Error kinds named by spec.md §7 (Transport domain).
var (
	ErrUnsupportedAddress   = errors.New("transport: unsupported address")
	ErrUnsupportedOperation = errors.New("transport: unsupported operation")
	ErrListenerClosed       = errors.New("transport: listener closed")
	ErrNoSuchListener       = errors.New("transport: no such listener")
	ErrAddressInUse         = errors.New("transport: address in use")
	ErrConcurrentRead       = errors.New("transport: concurrent read")
	ErrConnectionClosed     = errors.New("transport: connection closed")
)

// IoError wraps an underlying I/O failure so callers can still detect the
// transport-layer error domain while retaining the original cause.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return "transport: io error: " + e.Err.Error() }
func (e *IoError) Unwrap() error { return e.Err }

// RawConn is an unframed, unsecured byte-stream connection. At most one
// read and one write may be outstanding at a time.
type RawConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	LocalAddr() multiaddr.Multiaddr
	RemoteAddr() multiaddr.Multiaddr
}

// Listener accepts inbound RawConns for one bound address.
type Listener interface {
	Accept(ctx context.Context) (RawConn, error)
	Close() error
	Addr() multiaddr.Multiaddr
}

// Transport dials and listens on addresses it recognizes. CanDial/CanListen
// let the upgrade orchestrator pick the right transport for a given
// Multiaddr without attempting and failing.
type Transport interface {
	CanDial(addr multiaddr.Multiaddr) bool
	CanListen(addr multiaddr.Multiaddr) bool
	Dial(ctx context.Context, addr multiaddr.Multiaddr) (RawConn, error)
	Listen(addr multiaddr.Multiaddr) (Listener, error)
}

// netAddrToMultiaddr converts a stdlib net.Addr carrying an IP/port pair
// into the corresponding tcp or udp Multiaddr.
func netAddrToMultiaddr(network string, a net.Addr) (multiaddr.Multiaddr, error) {
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return multiaddr.Multiaddr{}, &IoError{Err: err}
	}
	port, err := parsePort(portStr)
	if err != nil {
		return multiaddr.Multiaddr{}, &IoError{Err: err}
	}
	switch network {
	case "tcp":
		return multiaddr.TCP(host, port)
	case "udp":
		return multiaddr.UDP(host, port)
	default:
		return multiaddr.Multiaddr{}, ErrUnsupportedAddress
	}
}

func parsePort(s string) (uint16, error) {
	var n uint16
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.New("transport: malformed port")
		}
		n = n*10 + uint16(r-'0')
	}
	return n, nil
}
