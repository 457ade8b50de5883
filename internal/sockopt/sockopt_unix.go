//go:build unix

// Package sockopt holds socket options applied before bind.
package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Control is a net.ListenConfig.Control func that sets SO_REUSEADDR.
func Control(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
