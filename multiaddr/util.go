package multiaddr

import (
	"fmt"
	"net/netip"
	"strconv"
)

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func formatUint(n uint64) string {
	return strconv.FormatUint(n, 10)
}

// expandIPv6 renders addr as the fully expanded, lower-case, eight-group
// form, per spec.md §3's normalization invariant (netip.Addr.String()
// instead compresses zero runs with "::", which we deliberately avoid).
func expandIPv6(addr netip.Addr) string {
	b := addr.As16()
	groups := make([]uint16, 8)
	for i := 0; i < 8; i++ {
		groups[i] = uint16(b[i*2])<<8 | uint16(b[i*2+1])
	}
	return fmt.Sprintf("%04x:%04x:%04x:%04x:%04x:%04x:%04x:%04x",
		groups[0], groups[1], groups[2], groups[3],
		groups[4], groups[5], groups[6], groups[7])
}
