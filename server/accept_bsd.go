//go:build darwin || freebsd || netbsd || openbsd

// File: server/accept_bsd.go
// BSD/macOS have no accept4(2); a plain accept(2) followed by an
// explicit SetNonblock achieves the same nonblocking-socket result spec
// §4.7 requires for every accepted connection.
package server

import "golang.org/x/sys/unix"

func acceptNonblocking(listenFd int) (int, unix.Sockaddr, error) {
	fd, sa, err := unix.Accept(listenFd)
	if err != nil {
		return -1, nil, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, sa, nil
}
