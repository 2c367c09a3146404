//go:build linux

// File: server/accept_linux.go
// Linux accepts directly into nonblocking mode via accept4(2)'s
// SOCK_NONBLOCK flag, avoiding the separate fcntl call the BSD/macOS path
// needs (see accept_bsd.go).
package server

import "golang.org/x/sys/unix"

func acceptNonblocking(listenFd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}
