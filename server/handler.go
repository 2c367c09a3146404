// File: server/handler.go
// The application handler capability set (spec §6, §9): a small set of
// optional methods feature-detected once per connection, cached as
// dispatch closures. Grounded on the teacher's api.Handler interface
// (a single required Handle method) generalized to the richer capability
// set spec §9 calls for — "in a statically typed implementation, express
// as a capability trait with default-noop methods... feature-detect...
// and cache dispatch function pointers."
package server

import "github.com/wsforge/wsforge/protocol"

// Handler is the required capability every application handler must
// implement: construction from a completed handshake, and handling of
// inbound data messages.
type Handler interface {
	// Init is called once, immediately after a successful handshake,
	// with the parsed handshake state, the connection object, and the
	// request path. Returning a non-nil error aborts the upgrade: if
	// the handler also implements HandshakeErrorResponder, its custom
	// reply is sent; otherwise a generic 400 is sent.
	Init(hs *protocol.HandshakeState, conn *protocol.Connection, path string) error

	// HandleMessage is invoked for every completed data message, in
	// strict on-wire order, on the connection that produced it.
	HandleMessage(data []byte, kind protocol.MessageType)
}

// AfterIniter is called once, right after Init succeeds.
type AfterIniter interface {
	AfterInit()
}

// Closer is notified when the connection is about to be torn down,
// regardless of which side initiated the close.
type Closer interface {
	Close()
}

// PingHandler overrides the library's default ping behavior (echo as
// pong). If absent, incoming pings are answered automatically.
type PingHandler interface {
	HandlePing(data []byte)
}

// PongHandler receives incoming pongs. If absent, pongs are silently
// dropped.
type PongHandler interface {
	HandlePong(data []byte)
}

// CloseHandler takes full responsibility for a received close frame,
// including replying and the decision of how to close — if present, the
// library's own close-code validation and canned-reply logic (spec §4.8)
// is bypassed entirely.
type CloseHandler interface {
	HandleClose(data []byte)
}

// HandshakeErrorResponder customizes the HTTP response sent when Init
// fails, in place of the library's generic 400.
type HandshakeErrorResponder interface {
	HandshakeErrorResponse(err error) []byte
}

// capabilities caches one connection's feature-detected optional methods,
// computed once at construction per spec §9's "binding is fixed at
// type-resolution time, not per call."
type capabilities struct {
	afterInit    AfterIniter
	closer       Closer
	pingHandler  PingHandler
	pongHandler  PongHandler
	closeHandler CloseHandler
}

func detectCapabilities(h Handler) capabilities {
	var c capabilities
	c.afterInit, _ = h.(AfterIniter)
	c.closer, _ = h.(Closer)
	c.pingHandler, _ = h.(PingHandler)
	c.pongHandler, _ = h.(PongHandler)
	c.closeHandler, _ = h.(CloseHandler)
	return c
}
