// File: server/handlerconn.go
// HandlerConn: the per-connection record bound into the server's
// intrusive connection list, per spec §3. Grounded on the teacher's
// lowlevel/server/listener.go (the per-connection bufferedConnTransport
// struct bundling socket, pool, and buffered reader into one record) and
// spec §9's guidance to use a typed-handle wrapper guarded by the
// worker's mutex rather than raw pointers — this implementation takes
// the simpler of the two re-architecture strategies §9 offers (no
// arena/slab indexing, since this module has no NUMA dimension to size
// the arena against).
package server

import (
	"github.com/wsforge/wsforge/protocol"
)

// HandlerConn is the per-connection record: socket (via Connection),
// reader, handler, and its feature-detected capabilities. It is also a
// node in the server's intrusive doubly-linked connection list.
type HandlerConn struct {
	conn    *protocol.Connection
	reader  *protocol.Reader
	handler Handler
	caps    capabilities

	hs *protocol.HandshakeState // non-nil while the handshake is in progress

	prev, next *HandlerConn
}

// connList is an intrusive doubly-linked list of HandlerConns, guarded by
// an external mutex (the blocking worker's server mutex, or left
// lock-free for the nonblocking worker's reactor-thread-only access per
// spec §5).
type connList struct {
	head, tail *HandlerConn
	count      int
}

func (l *connList) pushBack(hc *HandlerConn) {
	hc.prev, hc.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = hc
	} else {
		l.head = hc
	}
	l.tail = hc
	l.count++
}

func (l *connList) remove(hc *HandlerConn) {
	if hc.prev != nil {
		hc.prev.next = hc.next
	} else {
		l.head = hc.next
	}
	if hc.next != nil {
		hc.next.prev = hc.prev
	} else {
		l.tail = hc.prev
	}
	hc.prev, hc.next = nil, nil
	l.count--
}

func (l *connList) forEach(fn func(*HandlerConn)) {
	for hc := l.head; hc != nil; {
		next := hc.next
		fn(hc)
		hc = next
	}
}
