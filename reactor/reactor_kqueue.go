//go:build darwin || freebsd || netbsd || openbsd

// File: reactor/reactor_kqueue.go
// kqueue(2)-based reactor for BSD and macOS. The teacher carries no
// kqueue implementation at all (its cross-platform story stops at Linux
// epoll, Windows IOCP, and a stub); this file is new, grounded on the
// shape of reactor_epoll.go in this same package — same EventReactor
// methods, same one-shot rearm discipline — translated to kqueue's
// EVFILT_READ/EV_DISPATCH idiom via golang.org/x/sys/unix, the library
// the teacher already uses for epoll.
package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

type kqueueReactor struct {
	kq int
}

// New constructs the kqueue-backed EventReactor.
func New() (EventReactor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueReactor{kq: kq}, nil
}

func (r *kqueueReactor) Register(fd uintptr, userData uintptr) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE | unix.EV_DISPATCH,
		Udata:  udataPtr(userData),
	}
	_, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (r *kqueueReactor) Rearm(fd uintptr, userData uintptr) error {
	// EV_DISPATCH automatically disables the filter after it fires;
	// re-enabling it is a plain EV_ENABLE, not a fresh EV_ADD.
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ENABLE | unix.EV_DISPATCH,
		Udata:  udataPtr(userData),
	}
	_, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (r *kqueueReactor) Unregister(fd uintptr) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(r.kq, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (r *kqueueReactor) Wait(events []Event) (int, error) {
	raw := make([]unix.Kevent_t, len(events))
	n, err := unix.Kevent(r.kq, nil, raw, nil)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		events[i] = Event{
			Fd:       uintptr(raw[i].Ident),
			UserData: userDataFromPtr(raw[i].Udata),
			Readable: raw[i].Filter == unix.EVFILT_READ,
			Err:      raw[i].Flags&(unix.EV_EOF|unix.EV_ERROR) != 0,
		}
	}
	return n, nil
}

func (r *kqueueReactor) Close() error {
	return unix.Close(r.kq)
}

// udataPtr and userDataFromPtr round-trip a uintptr through kqueue's
// *byte Udata field, the same way reactor_epoll.go stashes userData in
// epoll_data's padding.
func udataPtr(userData uintptr) *byte {
	return (*byte)(unsafe.Pointer(userData))
}

func userDataFromPtr(p *byte) uintptr {
	return uintptr(unsafe.Pointer(p))
}
