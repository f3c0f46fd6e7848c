package transport

import (
	"errors"
	"net"
	"syscall"
)

func asOpError(err error, target **net.OpError) bool {
	return errors.As(err, target)
}

func isAddrInUseSyscall(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
