// Package peer implements the PeerID identity (spec.md §3, §4.4) and the
// key-pair variants it is derived from.
package peer

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"

	"github.com/lanikai/libp2p-core-lite/multihash"
)

// maxInlineKeySize is the canonical-encoding length threshold at or under
// which the identity multihash is used instead of sha2-256.
const maxInlineKeySize = 42

// libp2pKeyMulticodec is the CIDv1 multicodec for a libp2p public key,
// required in the CIDv1-base32 textual form.
const libp2pKeyMulticodec = 0x72

// ErrRequiresExternalLookup is returned by ExtractPublicKey when the
// PeerID's multihash is not the identity hash, so the public key cannot be
// recovered from the id bytes alone.
var ErrRequiresExternalLookup = errors.New("peer: public key requires external lookup")

// ID is an immutable, comparable peer identifier: the multihash of a
// peer's canonically-encoded public key.
type ID string

// FromPublicKey derives the PeerID for a public key, using the identity
// hash for small keys and sha2-256 otherwise (spec.md §4.4).
func FromPublicKey(pub PublicKey) (ID, error) {
	raw, err := pub.Bytes()
	if err != nil {
		return "", err
	}

	var mh multihash.Multihash
	if len(raw) <= maxInlineKeySize {
		mh, err = multihash.Encode(multihash.Identity, raw)
	} else {
		mh, err = multihash.Sum(multihash.SHA2_256, raw)
	}
	if err != nil {
		return "", err
	}
	return ID(mh.Bytes()), nil
}

// Validate reports whether id decodes to a well-formed multihash.
func (id ID) Validate() error {
	_, err := multihash.Decode([]byte(id))
	return err
}

// Bytes returns the raw multihash bytes of the id.
func (id ID) Bytes() []byte { return []byte(id) }

// String renders the id in legacy base58-btc form, the conventional
// Stringer form used in logs.
func (id ID) String() string { return id.Base58() }

// Base58 renders the PeerID using the legacy base58-btc textual form.
func (id ID) Base58() string {
	return base58.Encode([]byte(id))
}

// CIDString renders the PeerID using the modern CIDv1-base32 textual form:
// multibase-base32(varint(cidv1) || varint(libp2p-key) || multihash-bytes).
func (id ID) CIDString() string {
	buf := []byte{0x01, libp2pKeyMulticodec}
	buf = append(buf, []byte(id)...)
	s, err := multibase.Encode(multibase.Base32, buf)
	if err != nil {
		// multibase.Encode only fails for unknown encodings; Base32 is
		// always valid, so this is unreachable in practice.
		return ""
	}
	return s
}

// Decode parses either textual form (base58-btc legacy, or CIDv1-base32)
// into an ID. Legacy identifiers are plain base58 (no multibase prefix);
// CIDv1 identifiers carry a multibase prefix byte (e.g. 'b' for lower
// base32), which base58-btc's alphabet never produces at that position in
// a way that also decodes to a valid multihash, so trying base58 first is
// unambiguous in practice.
func Decode(s string) (ID, error) {
	if raw, err := base58.Decode(s); err == nil {
		if _, derr := multihash.Decode(raw); derr == nil {
			return ID(raw), nil
		}
	}
	return decodeCID(s)
}

func decodeCID(s string) (ID, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return "", fmt.Errorf("peer: invalid CIDv1 peer id: %w", err)
	}
	if len(data) < 2 {
		return "", errors.New("peer: CIDv1 peer id too short")
	}
	// varint(version) — must be 1 for CIDv1.
	if data[0] != 0x01 {
		return "", errors.New("peer: unsupported CID version")
	}
	if data[1] != libp2pKeyMulticodec {
		return "", fmt.Errorf("peer: CID multicodec %#x is not libp2p-key", data[1])
	}
	mhBytes := data[2:]
	if _, err := multihash.Decode(mhBytes); err != nil {
		return "", fmt.Errorf("peer: invalid embedded multihash: %w", err)
	}
	return ID(mhBytes), nil
}

// ExtractPublicKey recovers the public key embedded in id when id was
// derived using the identity hash; otherwise returns ErrRequiresExternalLookup.
func ExtractPublicKey(id ID) (PublicKey, error) {
	mh, err := multihash.Decode([]byte(id))
	if err != nil {
		return nil, err
	}
	if mh.Code != multihash.Identity {
		return nil, ErrRequiresExternalLookup
	}
	return UnmarshalPublicKey(mh.Digest)
}

// Less orders two PeerIDs by lexicographic byte comparison, as required by
// spec.md §3's orderability invariant.
func Less(a, b ID) bool {
	return bytes.Compare([]byte(a), []byte(b)) < 0
}

// SortIDs sorts a slice of IDs in place using byte-lexicographic order.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })
}
