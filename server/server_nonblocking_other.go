//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

// File: server/server_nonblocking_other.go
// On platforms without a reactor backend, the nonblocking worker model
// is simply unavailable; the blocking (thread-per-connection) model
// works everywhere net.Listener does. Mirrors the teacher's own
// reactor/reactor_stub.go stance of failing fast rather than silently
// degrading.
package server

import "github.com/wsforge/wsforge/reactor"

func (s *Server) serveNonblocking(newHandler func() Handler) error {
	return reactor.ErrUnsupportedPlatform
}
