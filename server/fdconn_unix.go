//go:build linux || darwin || freebsd || netbsd || openbsd

// File: server/fdconn_unix.go
// fdConn adapts a raw nonblocking socket file descriptor to net.Conn, the
// interface protocol.Connection is built around, without routing reads
// through the Go runtime's own integrated netpoller (which would fight
// the reactor package's independent epoll/kqueue instance over the same
// descriptor). The teacher never needs this: its connections always flow
// through net.Listener/net.Dial, which already returns a netpoller-backed
// net.Conn — this adapter only exists because the nonblocking worker
// model manages its own readiness loop (spec §4.7).
package server

import (
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

type fdConn struct {
	fd         int
	localAddr  net.Addr
	remoteAddr net.Addr
}

func (c *fdConn) Read(p []byte) (int, error) {
	n, err := unix.Read(c.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write retries on EAGAIN rather than surfacing it, since the reactor
// does not track write-readiness; this is acceptable for the frame sizes
// control and data messages typically use, and documented as a
// simplification rather than full write-readiness multiplexing.
func (c *fdConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(c.fd, p[written:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				continue
			}
			return written, err
		}
		written += n
	}
	return written, nil
}

func (c *fdConn) Close() error                       { return unix.Close(c.fd) }
func (c *fdConn) LocalAddr() net.Addr                { return c.localAddr }
func (c *fdConn) RemoteAddr() net.Addr               { return c.remoteAddr }
func (c *fdConn) SetDeadline(t time.Time) error      { return nil }
func (c *fdConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fdConn) SetWriteDeadline(t time.Time) error { return nil }
