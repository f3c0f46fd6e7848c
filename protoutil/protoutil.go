// Package protoutil implements a minimal length-delimited wire codec
// (spec.md §4.5): wire type 2 fields only, zero-copy decode, bounded
// field size.
package protoutil

import (
	"errors"

	"github.com/lanikai/libp2p-core-lite/internal/varint"
)

// DefaultMaxFieldSize is the default bound on a single field's length.
const DefaultMaxFieldSize = 1 << 20 // 1 MiB

const wireTypeLengthDelimited = 2

var (
	ErrUnsupportedWireType = errors.New("protoutil: unsupported wire type")
	ErrFieldTooLarge       = errors.New("protoutil: field exceeds max size")
	ErrTruncated           = errors.New("protoutil: truncated message")
)

// Field is a zero-copy view of one decoded field: its number and the raw
// bytes of its value, sharing the original input buffer.
type Field struct {
	Number uint64
	Value  []byte
}

// Decode parses buf into an ordered list of Fields. Every tag must encode
// wire type 2; any other wire type is a hard error. maxFieldSize bounds
// each field's length; pass 0 to use DefaultMaxFieldSize.
func Decode(buf []byte, maxFieldSize int) ([]Field, error) {
	if maxFieldSize <= 0 {
		maxFieldSize = DefaultMaxFieldSize
	}

	var fields []Field
	for len(buf) > 0 {
		tag, n, err := varint.Decode(buf)
		if err != nil {
			return nil, ErrTruncated
		}
		buf = buf[n:]

		wireType := tag & 7
		fieldNumber := tag >> 3
		if wireType != wireTypeLengthDelimited {
			return nil, ErrUnsupportedWireType
		}

		length, n, err := varint.Decode(buf)
		if err != nil {
			return nil, ErrTruncated
		}
		buf = buf[n:]

		if length > uint64(maxFieldSize) {
			return nil, ErrFieldTooLarge
		}
		if uint64(len(buf)) < length {
			return nil, ErrTruncated
		}

		fields = append(fields, Field{Number: fieldNumber, Value: buf[:length]})
		buf = buf[length:]
	}
	return fields, nil
}

// Encode appends one wire-type-2 field (tag || varint(len) || bytes) to
// dst and returns the extended slice.
func Encode(dst []byte, fieldNumber uint64, value []byte) []byte {
	tag := fieldNumber<<3 | wireTypeLengthDelimited
	dst = varint.AppendUvarint(dst, tag)
	dst = varint.AppendUvarint(dst, uint64(len(value)))
	dst = append(dst, value...)
	return dst
}

// First returns the value of the first field with the given number,
// preserving unknown fields elsewhere in the message (the caller simply
// never looks at them).
func First(fields []Field, number uint64) ([]byte, bool) {
	for _, f := range fields {
		if f.Number == number {
			return f.Value, true
		}
	}
	return nil, false
}

// All returns every field with the given number, in order.
func All(fields []Field, number uint64) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.Number == number {
			out = append(out, f.Value)
		}
	}
	return out
}
