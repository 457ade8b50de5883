// listening socket and accept loop
package engine

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/filesrv/internal/sockopt"
)

const maxAcceptDelay = time.Second

// Listen opens a TCP listener with SO_REUSEADDR set before bind,
// so a restart does not fail on a socket left in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := net.ListenConfig{Control: sockopt.Control}
	return lc.Listen(ctx, "tcp", addr)
}

// Accept hands every accepted connection to d until ln is closed
// or d is shut down. Accept errors are logged and retried with backoff.
func Accept(ln net.Listener, d Dispatcher, log zerolog.Logger) error {
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(2*delay, maxAcceptDelay)
			}
			log.Warn().Err(err).Dur("retry_in", delay).Msg("accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0

		if err := d.Submit(conn); err != nil {
			conn.Close()
			if errors.Is(err, ErrPoolClosed) {
				return nil
			}
			log.Warn().Err(err).Msg("submit failed")
		}
	}
}
