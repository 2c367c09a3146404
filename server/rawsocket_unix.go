//go:build linux || darwin || freebsd || netbsd || openbsd

// File: server/rawsocket_unix.go
// Raw nonblocking listening-socket construction for the readiness-driven
// worker (spec §4.7), which needs a bare file descriptor to register
// with its own epoll/kqueue reactor rather than a net.Listener (whose
// Accept blocks through the Go runtime's own integrated netpoller — a
// second, competing event loop on the same fd). Grounded on the same
// golang.org/x/sys/unix surface the teacher's reactor_linux.go already
// depends on, extended to socket creation/bind/listen which the teacher
// never does at this level (it always goes through net.Listen).
package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// rawListen creates a nonblocking listening socket per cfg (TCP or
// Unix-domain) with SO_REUSEADDR/SO_REUSEPORT set and the spec's backlog,
// returning its raw file descriptor.
func rawListen(cfg *Config) (int, error) {
	if cfg.UnixPath != "" {
		return rawListenUnix(cfg.UnixPath)
	}
	return rawListenTCP(cfg.Address, cfg.Port)
}

func rawListenTCP(address string, port uint16) (int, error) {
	ipStr := address
	if ipStr == "" {
		ipStr = "0.0.0.0"
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		resolved, err := net.ResolveIPAddr("ip", ipStr)
		if err != nil {
			return -1, fmt.Errorf("resolve %s: %w", ipStr, err)
		}
		ip = resolved.IP
	}

	if ip4 := ip.To4(); ip4 != nil {
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
		if err != nil {
			return -1, err
		}
		if err := setReuse(fd); err != nil {
			unix.Close(fd)
			return -1, err
		}
		var addr unix.SockaddrInet4
		copy(addr.Addr[:], ip4)
		addr.Port = int(port)
		if err := unix.Bind(fd, &addr); err != nil {
			unix.Close(fd)
			return -1, err
		}
		if err := unix.Listen(fd, listenBacklog); err != nil {
			unix.Close(fd)
			return -1, err
		}
		return fd, nil
	}

	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := setReuse(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	var addr unix.SockaddrInet6
	copy(addr.Addr[:], ip.To16())
	addr.Port = int(port)
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func rawListenUnix(path string) (int, error) {
	_ = unix.Unlink(path)
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func setReuse(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	// Best-effort, per spec §6's SO_REUSEPORT_LB/SO_REUSEPORT/SO_REUSEADDR
	// preference order.
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	return nil
}

func setTCPNoDelayFd(fd int) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
}
