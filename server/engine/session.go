// connection session: one accepted connection, many sequential requests
package engine

import (
	"bufio"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kfcemployee/filesrv/server/protocol"
)

const (
	DefaultIdleTimeout = 10 * time.Second

	readBufSize  = 4096
	writeBufSize = 4096
)

// Exchange handles one parsed request on s, usually by sending one response.
// keepAlive false, or an error, ends the session.
type Exchange func(s *Session, req *protocol.Request) (keepAlive bool, err error)

type SessionConfig struct {
	IdleTimeout time.Duration
	Limits      protocol.Limits

	// optional, sessions register their connection here while they run
	Conns *Conns
}

// Session is the per-connection arena: buffered reader and writer bound to conn.
// Sessions come from a pool and are owned by exactly one worker at a time.
type Session struct {
	conn   net.Conn
	remote string
	idle   time.Duration

	br *bufio.Reader
	bw *bufio.Writer
}

var sessionPool = sync.Pool{
	New: func() any {
		return &Session{
			br: bufio.NewReaderSize(nil, readBufSize),
			bw: bufio.NewWriterSize(nil, writeBufSize),
		}
	},
}

// bind session to conn, nil conn clears it for the pool
func (s *Session) reset(conn net.Conn, idle time.Duration) {
	s.conn = conn
	s.idle = idle
	s.remote = ""
	if conn != nil {
		s.remote = conn.RemoteAddr().String()
	}
	s.br.Reset(conn)
	s.bw.Reset(conn)
}

func (s *Session) RemoteAddr() string {
	return s.remote
}

// NewSessionHandler returns the ConnHandler that runs the session loop.
func NewSessionHandler(cfg SessionConfig, ex Exchange, log zerolog.Logger) ConnHandler {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Limits == (protocol.Limits{}) {
		cfg.Limits = protocol.DefaultLimits()
	}

	return func(conn net.Conn) {
		s := sessionPool.Get().(*Session)
		s.reset(conn, cfg.IdleTimeout)
		clog := log.With().Str("remote", s.remote).Logger()

		if cfg.Conns != nil {
			cfg.Conns.add(conn)
			defer cfg.Conns.remove(conn)
		}

		defer func() {
			if r := recover(); r != nil {
				clog.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("request handling panicked")
			}
			conn.Close()

			s.reset(nil, 0)
			sessionPool.Put(s)
		}()

		s.serve(cfg.Limits, ex, clog)
	}
}

// read, exchange, repeat; returning closes the connection
func (s *Session) serve(lim protocol.Limits, ex Exchange, log zerolog.Logger) {
	for {
		// the deadline covers the head and the whole body of the next request
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
			log.Debug().Err(err).Msg("set read deadline")
			return
		}

		req, err := protocol.ReadRequest(s.br, lim)
		if err != nil {
			logTeardown(log, err)
			return
		}

		keepAlive, err := ex(s, req)
		if err != nil {
			log.Debug().Err(err).Str("request", req.String()).Msg("exchange failed, closing")
			return
		}
		if !keepAlive {
			log.Debug().Msg("connection: close")
			return
		}
	}
}

func logTeardown(log zerolog.Logger, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF):
		log.Debug().Msg("client closed connection")
	case errors.As(err, &ne) && ne.Timeout():
		log.Debug().Msg("connection timed out")
	case errors.Is(err, protocol.ErrInvalid), errors.Is(err, protocol.ErrTooLarge):
		log.Debug().Err(err).Msg("malformed request, closing")
	default:
		log.Debug().Err(err).Msg("read failed")
	}
}
