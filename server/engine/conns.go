package engine

import (
	"net"
	"sync"
)

// Conns is the set of connections with a live session.
type Conns struct {
	mu  sync.Mutex
	set map[net.Conn]struct{}
}

func NewConns() *Conns {
	return &Conns{set: make(map[net.Conn]struct{})}
}

func (c *Conns) add(conn net.Conn) {
	c.mu.Lock()
	c.set[conn] = struct{}{}
	c.mu.Unlock()
}

func (c *Conns) remove(conn net.Conn) {
	c.mu.Lock()
	delete(c.set, conn)
	c.mu.Unlock()
}

func (c *Conns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.set)
}

// CloseAll closes every live connection. Sessions blocked on the connection
// return at once, a session inside a handler fails on its next send.
// Returns how many were closed.
func (c *Conns) CloseAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for conn := range c.set {
		conn.Close()
	}
	return len(c.set)
}
