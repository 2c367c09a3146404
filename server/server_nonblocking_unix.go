//go:build linux || darwin || freebsd || netbsd || openbsd

// File: server/server_nonblocking_unix.go
// The nonblocking worker model is only available where the reactor
// package has a real epoll/kqueue backend (see reactor.New's build
// tags); this file carries the Server method that wires it up,
// separated from server.go so platforms without a reactor backend don't
// need rawListen/newNonblockingWorker to exist (see
// server_nonblocking_other.go).
package server

import (
	"github.com/wsforge/wsforge/reactor"
	"golang.org/x/sys/unix"
)

func (s *Server) serveNonblocking(newHandler func() Handler) error {
	fd, err := rawListen(s.cfg)
	if err != nil {
		return err
	}
	r, err := reactor.New()
	if err != nil {
		unix.Close(fd)
		return err
	}
	w, err := newNonblockingWorker(s.cfg, fd, r, s.provider, s.hsPool, newHandler)
	if err != nil {
		r.Close()
		unix.Close(fd)
		return err
	}
	s.nonblocking = w
	return w.Serve()
}
