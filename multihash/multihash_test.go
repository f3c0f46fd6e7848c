package multihash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	mh, err := Encode(SHA2_256, bytes.Repeat([]byte{0xab}, 32))
	require.NoError(t, err)

	decoded, err := Decode(mh.Bytes())
	require.NoError(t, err)
	require.True(t, mh.Equal(decoded))
}

func TestDigestTooLarge(t *testing.T) {
	_, err := Encode(SHA2_256, make([]byte, MaxDigestSize+1))
	require.Error(t, err)
	var tooLarge *DigestTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestDigestAtBoundary(t *testing.T) {
	mh, err := Encode(Identity, make([]byte, MaxDigestSize))
	require.NoError(t, err)
	_, err = Decode(mh.Bytes())
	require.NoError(t, err)
}

func TestSumIdentitySmallKey(t *testing.T) {
	mh, err := Sum(Identity, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), mh.Digest)
}

func TestInsufficientData(t *testing.T) {
	_, err := Decode([]byte{0x12, 0x20}) // claims 32-byte digest, provides none
	require.ErrorIs(t, err, ErrInsufficientData)
}
