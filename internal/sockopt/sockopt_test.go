//go:build unix

package sockopt

import (
	"context"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestControlSetsReuseAddr(t *testing.T) {
	lc := net.ListenConfig{Control: Control}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	raw, err := ln.(*net.TCPListener).SyscallConn()
	require.NoError(t, err)

	var (
		val  int
		gerr error
	)
	require.NoError(t, raw.Control(func(fd uintptr) {
		val, gerr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR)
	}))
	require.NoError(t, gerr)
	require.NotZero(t, val)
}

func TestRebindSameAddress(t *testing.T) {
	lc := net.ListenConfig{Control: Control}
	ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()

	// leave a connection behind so the port has TIME_WAIT state
	done := make(chan struct{})
	go func() {
		defer close(done)
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	<-done
	c.Close()
	require.NoError(t, ln.Close())

	ln2, err := lc.Listen(context.Background(), "tcp", addr)
	require.NoError(t, err, "rebind must not fail with %v", syscall.EADDRINUSE)
	ln2.Close()
}
