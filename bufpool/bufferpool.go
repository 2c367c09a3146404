// Package bufpool implements the spec's three-tier buffer provider: a
// per-connection static buffer owned externally by its Reader, a
// mutex-guarded free list of large buffers shared server-wide, and a
// size-capped dynamic-allocation fallback.
//
// Grounded on the teacher's pool/base_bufferpool.go and pool/bufferpool.go
// (free list under a mutex, NUMA-keyed pool-of-pools), simplified to the
// spec's exact three tiers — this module has no NUMA dimension, so the
// NUMA-node keying the teacher layers on top is not carried forward (see
// SPEC_FULL.md §6).
package bufpool

import (
	"errors"
	"sync"
)

// ErrRequestTooLarge is returned by Acquire when size exceeds the
// provider's configured max message size.
var ErrRequestTooLarge = errors.New("bufpool: requested size exceeds max_message_size")

// Static allocates a fixed-size buffer for exclusive use by one
// connection's Reader. It is never pooled or released back anywhere;
// its lifetime is the connection's lifetime.
func Static(size int) []byte {
	return make([]byte, size)
}

// owner tags how a Borrowed buffer must be released.
type owner byte

const (
	ownerPool owner = iota
	ownerHeap
)

// Borrowed is a large buffer on loan from a Provider. Exactly one of
// {message-complete, message-abort, connection-teardown} must call
// Release on it, per spec §3's buffer-provider invariant.
type Borrowed struct {
	buf      []byte
	owner    owner
	provider *Provider
}

// Bytes returns the full backing slice of the borrowed buffer, sized at
// construction time; callers reslice it to the bytes actually in use.
func (b *Borrowed) Bytes() []byte {
	return b.buf
}

// Release returns a pool-owned buffer to the free list, or drops a
// heap-owned one for the garbage collector. Calling Release more than
// once on the same Borrowed is a caller bug; the provider does not
// defend against double-release (the spec's invariant places that
// obligation on the Reader, which releases on exactly one terminal path).
func (b *Borrowed) Release() {
	if b == nil || b.provider == nil {
		return
	}
	if b.owner == ownerPool {
		b.provider.put(b.buf)
	}
	b.buf = nil
}

// Provider is the server-wide (or client-wide) large-buffer pool plus its
// dynamic-allocation fallback. The free list is mutex-guarded so that the
// blocking worker's one-thread-per-connection model can share a single
// Provider across all connection threads; contention is bounded by
// large_buffers.count, exactly as spec §4.2 describes.
type Provider struct {
	mu             sync.Mutex
	free           [][]byte
	pooledSize     int
	maxMessageSize int
}

// New constructs a Provider with `count` buffers of `pooledSize` bytes
// preallocated into the free list, and a dynamic-allocation ceiling of
// maxMessageSize for requests the pool can't satisfy.
func New(count, pooledSize, maxMessageSize int) *Provider {
	p := &Provider{
		pooledSize:     pooledSize,
		maxMessageSize: maxMessageSize,
		free:           make([][]byte, 0, count),
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, make([]byte, pooledSize))
	}
	return p
}

// Acquire returns a Borrowed buffer able to hold at least size bytes.
// If size fits the pooled buffer size and a free buffer exists, one is
// popped off the free list (pool-owned). Otherwise, if size is within
// max_message_size, a buffer is allocated dynamically (heap-owned).
// Requests beyond max_message_size fail with ErrRequestTooLarge.
func (p *Provider) Acquire(size int) (*Borrowed, error) {
	if size <= p.pooledSize {
		p.mu.Lock()
		if n := len(p.free); n > 0 {
			buf := p.free[n-1]
			p.free = p.free[:n-1]
			p.mu.Unlock()
			return &Borrowed{buf: buf, owner: ownerPool, provider: p}, nil
		}
		p.mu.Unlock()
	}
	if size > p.maxMessageSize {
		return nil, ErrRequestTooLarge
	}
	return &Borrowed{buf: make([]byte, size), owner: ownerHeap, provider: p}, nil
}

// put returns a pool-owned buffer to the free list. Buffers are never
// grown back to pooledSize here: callers only put back buffers obtained
// from Acquire, which are always exactly pooledSize for pool-owned
// entries.
func (p *Provider) put(buf []byte) {
	p.mu.Lock()
	p.free = append(p.free, buf[:p.pooledSize])
	p.mu.Unlock()
}

// FreeCount returns the number of buffers currently sitting in the free
// list, for tests asserting the release invariant (spec §8: after
// reader.done(msg), the pool free-count returns to its prior value).
func (p *Provider) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// PooledSize returns the configured size of one pooled large buffer.
func (p *Provider) PooledSize() int {
	return p.pooledSize
}

// MaxMessageSize returns the configured dynamic-allocation ceiling.
func (p *Provider) MaxMessageSize() int {
	return p.maxMessageSize
}
