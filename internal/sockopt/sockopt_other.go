//go:build !unix

package sockopt

import "syscall"

// Control is a no-op where SO_REUSEADDR semantics differ.
func Control(network, address string, c syscall.RawConn) error {
	return nil
}
