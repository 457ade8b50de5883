// connection dispatch: the acceptor submits, workers run sessions
package engine

import (
	"context"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const DefaultQueueSize = 1024

// ConnHandler owns conn until it returns and must close it.
type ConnHandler func(conn net.Conn)

// Dispatcher hands accepted connections to workers.
// Submit may block the acceptor while the dispatcher is saturated.
type Dispatcher interface {
	Submit(conn net.Conn) error
	Shutdown(ctx context.Context) error
	Stats() Stats
}

type Stats struct {
	Submitted int64
	Completed int64
}

// Pool is a fixed set of workers pulling connections from one FIFO queue.
// Each connection goes to exactly one worker, which runs it to completion
// before pulling the next.
type Pool struct {
	jobs chan net.Conn
	h    ConnHandler
	log  zerolog.Logger

	mu     sync.RWMutex // guards closed and the send side of jobs
	closed bool
	wg     sync.WaitGroup

	submitted, completed atomic.Int64
}

// NewPool starts workers goroutines. queue is the number of connections that
// may wait for a worker; when it is full Submit blocks.
func NewPool(workers, queue int, h ConnHandler, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = DefaultQueueSize
	}

	p := &Pool{
		jobs: make(chan net.Conn, queue),
		h:    h,
		log:  log,
	}
	p.wg.Add(workers)
	for id := range workers {
		go p.worker(id)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	// range ends once Shutdown closed the queue and everything in it was taken
	for conn := range p.jobs {
		safeRun(p.h, conn, p.log.With().Int("worker", id).Logger())
		p.completed.Add(1)
	}
}

func (p *Pool) Submit(conn net.Conn) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	p.jobs <- conn
	return nil
}

// Shutdown stops new submissions and waits until every queued connection
// was served and all workers exited. Sessions in progress are not interrupted;
// if ctx ends first its error is returned and the workers keep going.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	return waitGroup(ctx, &p.wg)
}

func (p *Pool) Stats() Stats {
	return Stats{Submitted: p.submitted.Load(), Completed: p.completed.Load()}
}

// Spawner runs every connection on its own goroutine, at most limit at once.
// Same contract as Pool, without a queue: Submit blocks while limit sessions run.
type Spawner struct {
	sem *semaphore.Weighted
	h   ConnHandler
	log zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted, completed atomic.Int64
}

func NewSpawner(limit int, h ConnHandler, log zerolog.Logger) *Spawner {
	if limit < 1 {
		limit = 1
	}
	return &Spawner{
		sem: semaphore.NewWeighted(int64(limit)),
		h:   h,
		log: log,
	}
}

func (s *Spawner) Submit(conn net.Conn) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrPoolClosed
	}
	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}

	s.submitted.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)

		safeRun(s.h, conn, s.log)
		s.completed.Add(1)
	}()
	return nil
}

func (s *Spawner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return waitGroup(ctx, &s.wg)
}

func (s *Spawner) Stats() Stats {
	return Stats{Submitted: s.submitted.Load(), Completed: s.completed.Load()}
}

// a panicking handler must not take the worker down with it
func safeRun(h ConnHandler, conn net.Conn, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("connection handler panicked")
			conn.Close()
		}
	}()
	h(conn)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
