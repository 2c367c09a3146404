//go:build linux

// File: reactor/reactor_epoll.go
// Linux epoll(7) reactor. Grounded on the teacher's reactor/reactor_linux.go
// (golang.org/x/sys/unix epoll wrapping, EPOLLET edge-triggering), extended
// with EPOLLONESHOT and an explicit Rearm per spec §4.7's one-shot
// readiness requirement — the teacher's linuxReactor re-arms nothing and
// has no Unregister, since its own usage never needed to hand a fd off to
// a separate worker pool thread.
package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type epollReactor struct {
	epfd int
}

// New constructs the Linux epoll-backed EventReactor.
func New() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollReactor{epfd: epfd}, nil
}

func (r *epollReactor) Register(fd uintptr, userData uintptr) error {
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLONESHOT,
		Fd:     int32(fd),
	}
	packUserData(ev, userData)
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), ev)
}

func (r *epollReactor) Rearm(fd uintptr, userData uintptr) error {
	ev := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLET | unix.EPOLLONESHOT,
		Fd:     int32(fd),
	}
	packUserData(ev, userData)
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), ev)
}

func (r *epollReactor) Unregister(fd uintptr) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func (r *epollReactor) Wait(events []Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		events[i] = Event{
			Fd:       uintptr(raw[i].Fd),
			UserData: unpackUserData(&raw[i]),
			Readable: raw[i].Events&unix.EPOLLIN != 0,
			Writable: raw[i].Events&unix.EPOLLOUT != 0,
			Err:      raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
	}
	return n, nil
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}

// packUserData stashes userData into the epoll_data union's padding,
// mirroring the teacher's use of unsafe.Pointer over ev.Pad for the same
// purpose.
func packUserData(ev *unix.EpollEvent, userData uintptr) {
	*(*uintptr)(unsafe.Pointer(&ev.Pad)) = userData
}

func unpackUserData(ev *unix.EpollEvent) uintptr {
	return *(*uintptr)(unsafe.Pointer(&ev.Pad))
}
