package protoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf []byte
	buf = Encode(buf, 1, []byte("hello"))
	buf = Encode(buf, 2, []byte("world"))

	fields, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Len(t, fields, 2)

	v, ok := First(fields, 1)
	require.True(t, ok)
	require.Equal(t, "hello", string(v))

	v, ok = First(fields, 2)
	require.True(t, ok)
	require.Equal(t, "world", string(v))
}

func TestUnknownFieldsPreserved(t *testing.T) {
	var buf []byte
	buf = Encode(buf, 1, []byte("a"))
	buf = Encode(buf, 99, []byte("unknown"))
	buf = Encode(buf, 2, []byte("b"))

	fields, err := Decode(buf, 0)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	require.Equal(t, uint64(99), fields[1].Number)
	require.Equal(t, "unknown", string(fields[1].Value))
}

func TestRejectsNonWireType2(t *testing.T) {
	// tag = (1 << 3) | 0 -> field 1, wire type 0 (varint).
	buf := []byte{0x08, 0x01}
	_, err := Decode(buf, 0)
	require.ErrorIs(t, err, ErrUnsupportedWireType)
}

func TestMaxFieldSize(t *testing.T) {
	var buf []byte
	buf = Encode(buf, 1, make([]byte, 100))
	_, err := Decode(buf, 10)
	require.ErrorIs(t, err, ErrFieldTooLarge)
}

func TestTruncated(t *testing.T) {
	var buf []byte
	buf = Encode(buf, 1, []byte("hello"))
	_, err := Decode(buf[:len(buf)-2], 0)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestZeroCopy(t *testing.T) {
	var buf []byte
	buf = Encode(buf, 1, []byte("hello"))
	fields, err := Decode(buf, 0)
	require.NoError(t, err)
	// The returned value must share storage with buf, not a copy.
	require.Equal(t, &buf[len(buf)-5], &fields[0].Value[0])
}
