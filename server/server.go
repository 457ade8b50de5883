package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kfcemployee/filesrv/server/engine"
	"github.com/kfcemployee/filesrv/server/protocol"
	"github.com/kfcemployee/filesrv/server/router"
	"github.com/kfcemployee/filesrv/server/storage"
	"github.com/kfcemployee/filesrv/server/txlog"
)

// New(cfg, log)      - static root, transaction log, gate and router
// Run(ctx)           - listen, accept into the dispatcher until ctx ends, then drain
// Addr(), Ready()    - bound address once listening

type Option func(*Server)

// WithAppender replaces the file appender used by POST.
func WithAppender(a router.Appender) Option {
	return func(s *Server) {
		s.files = a
	}
}

type Server struct {
	cfg Config
	log zerolog.Logger

	root  *storage.Root
	sink  *txlog.Sink
	gate  *storage.Gate
	files router.Appender
	r     *router.HTTPRouter
	conns *engine.Conns

	ready chan struct{}
	addr  net.Addr
}

// New prepares the shared resources every worker uses. Failing to open the
// static root or the transaction log is fatal.
func New(cfg Config, log zerolog.Logger, opts ...Option) (*Server, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := storage.OpenRoot(cfg.StaticDir)
	if err != nil {
		return nil, err
	}
	sink, err := txlog.Open(cfg.LogFile)
	if err != nil {
		root.Close()
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		log:   log,
		root:  root,
		sink:  sink,
		gate:  storage.NewGate(cfg.MaxPosts),
		files: storage.NewAppender(root),
		conns: engine.NewConns(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.r = router.NewHTTPRouter(sink, log.With().Str("component", "router").Logger())
	s.r.Get(router.NewStatic(root).ServeGet)
	s.r.Post(router.NewUploads(s.gate, s.files).ServePost)
	return s, nil
}

func (s *Server) exchange(sess *engine.Session, req *protocol.Request) (bool, error) {
	return s.r.Serve(sess, req)
}

func (s *Server) dispatcher() engine.Dispatcher {
	h := engine.NewSessionHandler(engine.SessionConfig{
		IdleTimeout: s.cfg.IdleTimeout,
		Limits: protocol.Limits{
			MaxHeaderBytes: s.cfg.MaxHeaderBytes,
			MaxBodyBytes:   s.cfg.MaxBodyBytes,
		},
		Conns: s.conns,
	}, s.exchange, s.log.With().Str("component", "session").Logger())

	dlog := s.log.With().Str("component", "dispatch").Logger()
	if s.cfg.Strategy == StrategySpawn {
		return engine.NewSpawner(s.cfg.Workers, h, dlog)
	}
	return engine.NewPool(s.cfg.Workers, s.cfg.QueueSize, h, dlog)
}

// Run serves until ctx is done, then stops accepting and waits for the
// dispatcher to finish every accepted connection. Sessions still running
// after ShutdownGrace have their connections closed. Only call it once.
func (s *Server) Run(ctx context.Context) error {
	ln, err := engine.Listen(ctx, s.cfg.Addr())
	if err != nil {
		s.root.Close()
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	s.addr = ln.Addr()
	close(s.ready)

	d := s.dispatcher()
	s.log.Info().
		Str("addr", s.addr.String()).
		Str("root", s.root.Dir()).
		Str("log", s.sink.Path()).
		Str("strategy", s.cfg.Strategy).
		Int("workers", s.cfg.Workers).
		Int("max_posts", s.gate.Capacity()).
		Dur("idle_timeout", s.cfg.IdleTimeout).
		Msg("server started")

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return engine.Accept(ln, d, s.log.With().Str("component", "accept").Logger())
	})
	g.Go(func() error {
		<-ctx.Done()
		ln.Close()
		return nil
	})
	runErr := g.Wait()

	s.log.Info().Msg("shutting down, waiting for sessions")
	start := time.Now()
	if err := s.drain(d); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown: %w", err)
	}

	st := d.Stats()
	s.log.Info().
		Int64("submitted", st.Submitted).
		Int64("completed", st.Completed).
		Dur("took", time.Since(start)).
		Msg("server stopped")
	return runErr
}

// drain waits ShutdownGrace for the dispatcher, then closes the connections
// of sessions still running and waits another ShutdownGrace for them to
// return. The static root is closed only once no session can use it.
func (s *Server) drain(d engine.Dispatcher) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()

	err := d.Shutdown(ctx)
	if err == nil {
		s.root.Close()
		return nil
	}

	n := s.conns.CloseAll()
	s.log.Warn().Err(err).Int("closed", n).Msg("sessions still running after shutdown grace, closing their connections")

	fctx, fcancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer fcancel()
	if ferr := d.Shutdown(fctx); ferr != nil {
		s.log.Error().Err(ferr).Msg("sessions did not stop, static root left open")
		return err
	}
	s.root.Close()
	return err
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr is the bound listen address, nil before Ready.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.addr
	default:
		return nil
	}
}
