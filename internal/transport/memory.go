package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after either end closed the pair.
var ErrClosed = errors.New("transport closed")

// MemoryConn is an in-process Conn linked to a peer MemoryConn. Deliveries
// are FIFO through a single pump goroutine per end.
type MemoryConn struct {
	peerDID string
	peer    *MemoryConn
	inbox   chan []byte
	done    chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// Pair builds two linked in-memory ends. didA names the first end's local
// identity (so the second end reports it as peer) and vice versa.
func Pair(didA, didB string) (*MemoryConn, *MemoryConn) {
	a := &MemoryConn{peerDID: didB, inbox: make(chan []byte, 64), done: make(chan struct{})}
	b := &MemoryConn{peerDID: didA, inbox: make(chan []byte, 64), done: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// PeerDID identifies the remote end.
func (c *MemoryConn) PeerDID() string {
	return c.peerDID
}

// Start begins delivering inbound frames to the handler. Must be called
// once per end before traffic flows.
func (c *MemoryConn) Start(h Handler) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	go func() {
		for {
			select {
			case data := <-c.inbox:
				h(data)
			case <-c.done:
				return
			}
		}
	}()
}

// Send delivers one frame to the peer end.
func (c *MemoryConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case <-c.peer.done:
		return ErrClosed
	default:
	}

	// copy so the caller may reuse its buffer
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case c.peer.inbox <- buf:
		return nil
	case <-c.peer.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts down both directions of this end.
func (c *MemoryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return nil
}
