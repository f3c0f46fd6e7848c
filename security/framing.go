package security

import (
	"bufio"
	"io"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
)

// writeFrame writes a varint-length-prefixed binary payload. Handshake
// messages use this instead of writeMultistreamLine because their bytes
// are arbitrary binary, not newline-safe text.
func writeFrame(w io.Writer, payload []byte) error {
	prefix := varint.Encode(uint64(len(payload)))
	if _, err := w.Write(prefix); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one varint-length-prefixed binary payload.
func readFrame(r *bufio.Reader) ([]byte, error) {
	length, err := varint.DecodeReader(r)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrHandshakeFailed
	}
	return buf, nil
}
