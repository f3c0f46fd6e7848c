package multiaddr

import (
	"errors"
	"fmt"
)

// Error kinds named by spec.md §4.3 / §7.
var (
	ErrInvalidFormat     = errors.New("multiaddr: invalid format")
	ErrInvalidAddress    = errors.New("multiaddr: invalid address")
	ErrMissingValue      = errors.New("multiaddr: missing value")
	ErrInputTooLarge     = errors.New("multiaddr: input too large")
	ErrTooManyComponents = errors.New("multiaddr: too many components")
)

// UnknownProtocolError carries the offending protocol code or name.
type UnknownProtocolError struct {
	Code int
	Name string
}

func (e *UnknownProtocolError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("multiaddr: unknown protocol %q", e.Name)
	}
	return fmt.Sprintf("multiaddr: unknown protocol code %#x", e.Code)
}

// Limits from spec.md §3.
const (
	MaxComponents  = 20
	MaxEncodedSize = 1024
)
