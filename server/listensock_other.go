//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

// File: server/listensock_other.go
// Fallback listening-socket setup for platforms without the
// golang.org/x/sys/unix socket-option surface listensock_unix.go uses.
// The blocking worker still works here via plain net.Listen; it just
// can't set SO_REUSEPORT.
package server

import (
	"net"
	"strconv"
)

func listen(cfg *Config) (net.Listener, error) {
	if cfg.UnixPath != "" {
		return net.Listen("unix", cfg.UnixPath)
	}
	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(int(cfg.Port)))
	return net.Listen("tcp", addr)
}

func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
