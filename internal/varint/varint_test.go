package varint

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<64 - 1}
	for _, n := range cases {
		enc := Encode(n)
		require.LessOrEqual(t, len(enc), MaxLen)
		got, consumed, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, len(enc), consumed)
		require.Equal(t, n, got)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, _, err := Decode([]byte{0x80})
	require.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeOverflow(t *testing.T) {
	buf := bytes.Repeat([]byte{0x80}, MaxLen+1)
	_, _, err := Decode(buf)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeReader(t *testing.T) {
	enc := Encode(123456789)
	n, err := DecodeReader(bytes.NewReader(enc))
	require.NoError(t, err)
	require.Equal(t, uint64(123456789), n)
}
