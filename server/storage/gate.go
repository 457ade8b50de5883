package storage

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const DefaultCapacity = 5

// Gate is the admission control for writes: at most capacity tickets are out
// at once, system wide. It never queues, a caller that finds the gate full is
// turned away immediately.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inflight atomic.Int64
}

func NewGate(capacity int) *Gate {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Ticket is one admitted write. Release is safe to call more than once,
// only the first call returns the permit.
type Ticket struct {
	g    *Gate
	once sync.Once
}

func (t *Ticket) Release() {
	t.once.Do(func() {
		t.g.inflight.Add(-1)
		t.g.sem.Release(1)
	})
}

// TryAcquire never blocks: ok is false when all permits are held.
func (g *Gate) TryAcquire() (*Ticket, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}
	g.inflight.Add(1)
	return &Ticket{g: g}, true
}

// Do runs fn while holding a ticket and reports whether it was admitted.
// The ticket is released when fn returns or panics.
func (g *Gate) Do(fn func()) bool {
	t, ok := g.TryAcquire()
	if !ok {
		return false
	}
	defer t.Release()

	fn()
	return true
}

func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight is the number of tickets currently held.
func (g *Gate) InFlight() int {
	return int(g.inflight.Load())
}
