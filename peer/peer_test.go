package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEd25519DerivationAndTextualForms(t *testing.T) {
	_, pub, err := GenerateEd25519()
	require.NoError(t, err)

	id, err := FromPublicKey(pub)
	require.NoError(t, err)
	require.NoError(t, id.Validate())

	// Ed25519 canonical encoding (1 byte tag + 32 byte key = 33 bytes) is
	// within the identity-hash threshold, so the id round-trips the key.
	extracted, err := ExtractPublicKey(id)
	require.NoError(t, err)
	raw1, _ := pub.Bytes()
	raw2, _ := extracted.Bytes()
	require.Equal(t, raw1, raw2)

	b58 := id.Base58()
	decoded, err := Decode(b58)
	require.NoError(t, err)
	require.Equal(t, id, decoded)

	cid := id.CIDString()
	decodedCID, err := Decode(cid)
	require.NoError(t, err)
	require.Equal(t, id, decodedCID)
}

func TestRSARequiresExternalLookup(t *testing.T) {
	_, pub, err := GenerateRSA(2048)
	require.NoError(t, err)

	id, err := FromPublicKey(pub)
	require.NoError(t, err)

	_, err = ExtractPublicKey(id)
	require.ErrorIs(t, err, ErrRequiresExternalLookup)
}

func TestOrdering(t *testing.T) {
	ids := []ID{ID([]byte{0x02}), ID([]byte{0x01}), ID([]byte{0x03})}
	SortIDs(ids)
	require.Equal(t, ID([]byte{0x01}), ids[0])
	require.Equal(t, ID([]byte{0x03}), ids[2])
}
