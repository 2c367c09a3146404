//go:build linux || darwin || freebsd || netbsd || openbsd

// File: server/listensock_unix.go
// Listening-socket setup per spec §6: SO_REUSEADDR, plus SO_REUSEPORT
// where the platform accepts it, and TCP_NODELAY on accepted connections.
// The 1024 backlog is applied only by rawListen (rawsocket_unix.go); this
// net.ListenConfig path uses the kernel default. No teacher file sets these socket
// options directly (its net.Listen calls take OS defaults); this is new,
// grounded on golang.org/x/sys/unix, the library the teacher already
// uses for epoll, applied here via net.ListenConfig.Control the way
// idiomatic Go programs reach into raw socket options without dropping
// to a hand-rolled syscall-level listener.
package server

import (
	"context"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

func portString(port uint16) string {
	return strconv.Itoa(int(port))
}

// listenBacklog is the spec's target backlog (1024). rawListen passes it
// to listen(2). The standard library's net.ListenConfig has no hook to
// set it, so listen below does not apply it and the kernel's own default
// (net.core.somaxconn on Linux) is used there.
const listenBacklog = 1024

// listen opens the configured TCP or Unix-domain listening socket with
// SO_REUSEADDR set and SO_REUSEPORT set where supported.
func listen(cfg *Config) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr != nil {
					return
				}
				// SO_REUSEPORT is best-effort: falling back to plain
				// SO_REUSEADDR (already set above) is acceptable per
				// spec §6's preference order.
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	if cfg.UnixPath != "" {
		return lc.Listen(context.Background(), "unix", cfg.UnixPath)
	}
	addr := net.JoinHostPort(cfg.Address, portString(cfg.Port))
	return lc.Listen(context.Background(), "tcp", addr)
}

// setNoDelay applies TCP_NODELAY to an accepted connection when it is a
// TCP connection (no-op for Unix-domain sockets).
func setNoDelay(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
}
