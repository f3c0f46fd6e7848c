// Package multihash implements the self-describing hash digest format
// {code, length, digest}, per spec.md §4.2.
package multihash

import (
	"crypto/sha256"
	"fmt"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
)

// Well-known hash function codes.
const (
	Identity uint64 = 0x00
	SHA2_256 uint64 = 0x12
)

// MaxDigestSize is the largest digest this implementation will accept or
// produce.
const MaxDigestSize = 65536

// Multihash is a self-describing hash digest.
type Multihash struct {
	Code   uint64
	Digest []byte
}

// Error kinds named by spec.md §7.
type UnknownCodeError struct{ Code uint64 }

func (e *UnknownCodeError) Error() string { return fmt.Sprintf("multihash: unknown code %#x", e.Code) }

type DigestTooLargeError struct{ Size uint64 }

func (e *DigestTooLargeError) Error() string {
	return fmt.Sprintf("multihash: digest too large (%d > %d)", e.Size, MaxDigestSize)
}

var ErrInsufficientData = fmt.Errorf("multihash: insufficient data")

// knownCodes enumerates the codes this implementation can validate/produce
// directly; codes outside this set can still be decoded generically (the
// registry closed set only applies to Sum, not Decode, since a multihash
// carrying a code we don't implement locally is still well-formed wire
// data and callers may just want the digest bytes).
var knownCodes = map[uint64]bool{
	Identity: true,
	SHA2_256: true,
}

// Sum computes the multihash of data using the named code.
func Sum(code uint64, data []byte) (Multihash, error) {
	switch code {
	case Identity:
		return Encode(code, data)
	case SHA2_256:
		sum := sha256.Sum256(data)
		return Encode(code, sum[:])
	default:
		return Multihash{}, &UnknownCodeError{Code: code}
	}
}

// Encode builds a Multihash from a pre-computed digest, validating the
// length cap.
func Encode(code uint64, digest []byte) (Multihash, error) {
	if uint64(len(digest)) > MaxDigestSize {
		return Multihash{}, &DigestTooLargeError{Size: uint64(len(digest))}
	}
	cp := make([]byte, len(digest))
	copy(cp, digest)
	return Multihash{Code: code, Digest: cp}, nil
}

// Bytes returns the binary form: varint(code) || varint(len) || digest.
func (m Multihash) Bytes() []byte {
	buf := varint.AppendUvarint(nil, m.Code)
	buf = varint.AppendUvarint(buf, uint64(len(m.Digest)))
	buf = append(buf, m.Digest...)
	return buf
}

// Equal reports whether two multihashes carry the same code and digest.
func (m Multihash) Equal(other Multihash) bool {
	if m.Code != other.Code || len(m.Digest) != len(other.Digest) {
		return false
	}
	for i := range m.Digest {
		if m.Digest[i] != other.Digest[i] {
			return false
		}
	}
	return true
}

// Decode parses the binary form of a multihash.
func Decode(buf []byte) (Multihash, error) {
	code, n, err := varint.Decode(buf)
	if err != nil {
		return Multihash{}, ErrInsufficientData
	}
	buf = buf[n:]

	length, n, err := varint.Decode(buf)
	if err != nil {
		return Multihash{}, ErrInsufficientData
	}
	buf = buf[n:]

	if length > MaxDigestSize {
		return Multihash{}, &DigestTooLargeError{Size: length}
	}
	if uint64(len(buf)) < length {
		return Multihash{}, ErrInsufficientData
	}

	digest := make([]byte, length)
	copy(digest, buf[:length])
	return Multihash{Code: code, Digest: digest}, nil
}
