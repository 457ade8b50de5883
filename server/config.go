package server

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kfcemployee/filesrv/server/engine"
	"github.com/kfcemployee/filesrv/server/protocol"
	"github.com/kfcemployee/filesrv/server/storage"
)

var ErrInvalidConfig = errors.New("invalid config")

// dispatch strategies
const (
	StrategyPool  = "pool"  // fixed workers, shared queue
	StrategySpawn = "spawn" // goroutine per connection, bounded
)

const envPrefix = "FILESRV_"

// Config is everything the server can be told. Each option affects only its own behavior.
type Config struct {
	Host      string
	Port      int
	StaticDir string
	LogFile   string

	Workers   int
	QueueSize int
	Strategy  string

	MaxPosts       int
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodyBytes   int

	// how long Run waits for sessions to finish after its context ends
	ShutdownGrace time.Duration

	Debug bool
}

func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8080,
		StaticDir:      "./static",
		LogFile:        "./server.log",
		Workers:        4,
		QueueSize:      engine.DefaultQueueSize,
		Strategy:       StrategyPool,
		MaxPosts:       storage.DefaultCapacity,
		IdleTimeout:    engine.DefaultIdleTimeout,
		MaxHeaderBytes: protocol.DefaultMaxHeaderBytes,
		MaxBodyBytes:   protocol.DefaultMaxBodyBytes,
		ShutdownGrace:  30 * time.Second,
	}
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// fills zero values with defaults; Host and Port are taken as given,
// port 0 means any free port
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StaticDir == "" {
		c.StaticDir = def.StaticDir
	}
	if c.LogFile == "" {
		c.LogFile = def.LogFile
	}
	if c.Workers == 0 {
		c.Workers = def.Workers
	}
	if c.QueueSize == 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.MaxPosts == 0 {
		c.MaxPosts = def.MaxPosts
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = def.ShutdownGrace
	}
	return c
}

func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Port >= 0 && c.Port <= 65535, "port %d out of range", c.Port)
	check(c.Workers >= 1, "workers must be at least 1, got %d", c.Workers)
	check(c.QueueSize >= 0, "queue size must not be negative, got %d", c.QueueSize)
	check(c.Strategy == StrategyPool || c.Strategy == StrategySpawn, "unknown strategy %q", c.Strategy)
	check(c.MaxPosts >= 1, "max posts must be at least 1, got %d", c.MaxPosts)
	check(c.IdleTimeout > 0, "idle timeout must be positive, got %s", c.IdleTimeout)
	check(c.MaxHeaderBytes > 0, "max header bytes must be positive, got %d", c.MaxHeaderBytes)
	check(c.MaxBodyBytes >= 0, "max body bytes must not be negative, got %d", c.MaxBodyBytes)
	check(c.ShutdownGrace > 0, "shutdown grace must be positive, got %s", c.ShutdownGrace)

	return errors.Join(errs...)
}

// RegisterFlags binds every option to fs, current values are the defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "listen host")
	fs.IntVar(&c.Port, "port", c.Port, "listen port")
	fs.StringVar(&c.StaticDir, "root", c.StaticDir, "static root directory")
	fs.StringVar(&c.LogFile, "log", c.LogFile, "transaction log file")
	fs.IntVar(&c.Workers, "workers", c.Workers, "worker pool size")
	fs.IntVar(&c.QueueSize, "queue", c.QueueSize, "connections waiting for a worker before accept blocks")
	fs.StringVar(&c.Strategy, "strategy", c.Strategy, "dispatch strategy: pool or spawn")
	fs.IntVar(&c.MaxPosts, "max-posts", c.MaxPosts, "concurrent POST writes before 503")
	fs.DurationVar(&c.IdleTimeout, "idle-timeout", c.IdleTimeout, "close connections idle for this long")
	fs.IntVar(&c.MaxHeaderBytes, "max-header-bytes", c.MaxHeaderBytes, "largest accepted request head")
	fs.IntVar(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "largest accepted request body")
	fs.DurationVar(&c.ShutdownGrace, "shutdown-grace", c.ShutdownGrace, "wait this long for sessions on shutdown")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "debug logging")
}

// ApplyEnv sets every flag of fs that has a FILESRV_<NAME> variable,
// e.g. FILESRV_MAX_POSTS for -max-posts. Call it before fs.Parse so
// command-line flags still win.
func ApplyEnv(fs *flag.FlagSet, lookup func(string) (string, bool)) error {
	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := lookup(key); ok {
			if err := fs.Set(f.Name, v); err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))
			}
		}
	})
	return errors.Join(errs...)
}
