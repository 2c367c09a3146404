// File: protocol/handshake_pool.go
// Pooled HandshakeState allocation, per spec §4.4's handshake-state reuse
// requirement. Grounded on the teacher's pool/objpool.go SyncPool[T]
// pattern: a fixed-count preallocated slice under a mutex, with dynamic
// overflow allocated on demand and simply dropped (not retained) on
// release once the pool is full.
package protocol

import "sync"

// HandshakePool hands out HandshakeState values for the lifetime of one
// handshake attempt, reusing a fixed set of preallocated states and
// falling back to ad hoc allocation under load.
type HandshakePool struct {
	mu         sync.Mutex
	free       []*HandshakeState
	maxSize    int
	maxHeaders int
}

// NewHandshakePool preallocates count HandshakeStates, each configured
// with the given maxSize/maxHeaders caps.
func NewHandshakePool(count, maxSize, maxHeaders int) *HandshakePool {
	p := &HandshakePool{
		maxSize:    maxSize,
		maxHeaders: maxHeaders,
		free:       make([]*HandshakeState, 0, count),
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, NewHandshakeState(maxSize, maxHeaders))
	}
	return p
}

// Get returns a reset HandshakeState ready to Feed, from the pool if one
// is free or freshly allocated otherwise.
func (p *HandshakePool) Get() *HandshakeState {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		s.Reset(p.maxSize, p.maxHeaders)
		return s
	}
	p.mu.Unlock()
	return NewHandshakeState(p.maxSize, p.maxHeaders)
}

// Put returns a HandshakeState to the pool's free list while the list
// holds fewer than the pool's preallocated count; once the list is full,
// s is dropped and left for the garbage collector. Put does not tell
// preallocated states from ones allocated under overflow: whichever is
// put back first while there is room is kept.
func (p *HandshakePool) Put(s *HandshakeState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < cap(p.free) {
		p.free = append(p.free, s)
	}
}
