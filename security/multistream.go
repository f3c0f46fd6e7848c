// Package security implements the upgrade from a raw byte stream to an
// authenticated, encrypted one (spec.md §4.9): multistream-select
// negotiation followed by a Noise or plaintext handshake.
package security

import (
	"bufio"
	"errors"
	"io"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
	"github.com/lanikai/libp2p-core-lite/transport"
)

const multistreamHeader = "/multistream/1.0.0"

var (
	ErrNegotiationFailed = errors.New("security: negotiation failed")
	ErrHandshakeFailed   = errors.New("security: handshake failed")
)

// PeerIDMismatchError is returned when the remote's verified public key
// does not hash to the peer id implied by the dialed address.
type PeerIDMismatchError struct {
	Expected, Actual string
}

func (e *PeerIDMismatchError) Error() string {
	return "security: peer id mismatch: expected " + e.Expected + " got " + e.Actual
}

// writeMultistreamLine writes one varint-length-prefixed, newline-terminated
// protocol line, per the multistream-select wire format.
func writeMultistreamLine(w io.Writer, line string) error {
	payload := append([]byte(line), '\n')
	prefix := varint.Encode(uint64(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readMultistreamLine reads one varint-length-prefixed line and strips its
// trailing newline.
func readMultistreamLine(r *bufio.Reader) (string, error) {
	length, err := varint.DecodeReader(r)
	if err != nil {
		return "", ErrNegotiationFailed
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", ErrNegotiationFailed
	}
	if length == 0 || buf[length-1] != '\n' {
		return "", ErrNegotiationFailed
	}
	return string(buf[:length-1]), nil
}

// NegotiateInitiator performs the dialer side of multistream-select: send
// the header, then try each candidate in order until one is accepted.
func NegotiateInitiator(conn transport.RawConn, candidates []string) (string, *bufio.Reader, error) {
	br := bufio.NewReader(conn)

	if err := writeMultistreamLine(conn, multistreamHeader); err != nil {
		return "", nil, ErrNegotiationFailed
	}
	ack, err := readMultistreamLine(br)
	if err != nil || ack != multistreamHeader {
		return "", nil, ErrNegotiationFailed
	}

	for _, proto := range candidates {
		if err := writeMultistreamLine(conn, proto); err != nil {
			return "", nil, ErrNegotiationFailed
		}
		resp, err := readMultistreamLine(br)
		if err != nil {
			return "", nil, ErrNegotiationFailed
		}
		if resp == proto {
			return proto, br, nil
		}
		// "na" (not available): try the next candidate.
	}
	return "", nil, ErrNegotiationFailed
}

// NegotiateResponder performs the listener side: acknowledge the header,
// then accept the first offered protocol id present in supported.
func NegotiateResponder(conn transport.RawConn, supported []string) (string, *bufio.Reader, error) {
	br := bufio.NewReader(conn)

	hdr, err := readMultistreamLine(br)
	if err != nil || hdr != multistreamHeader {
		return "", nil, ErrNegotiationFailed
	}
	if err := writeMultistreamLine(conn, multistreamHeader); err != nil {
		return "", nil, ErrNegotiationFailed
	}

	for {
		proto, err := readMultistreamLine(br)
		if err != nil {
			return "", nil, ErrNegotiationFailed
		}
		if contains(supported, proto) {
			if err := writeMultistreamLine(conn, proto); err != nil {
				return "", nil, ErrNegotiationFailed
			}
			return proto, br, nil
		}
		if err := writeMultistreamLine(conn, "na"); err != nil {
			return "", nil, ErrNegotiationFailed
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
