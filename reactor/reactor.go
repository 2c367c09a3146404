// File: reactor/reactor.go
// Platform-neutral readiness-driven event reactor interface, backing the
// nonblocking worker model of spec §4.7. Grounded on the teacher's
// reactor/reactor.go EventReactor interface (Register/Wait/Close), with
// Unregister and Rearm added: the teacher's epoll usage was
// level-triggered and never needed rearming, but spec §4.7 requires
// one-shot edge-triggered readiness (EPOLLONESHOT / EV_DISPATCH) so a
// connection's fd is never concurrently woken on two pool threads.
package reactor

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms with no
// readiness-driven reactor implementation.
var ErrUnsupportedPlatform = errors.New("reactor: this platform is not supported")

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd       uintptr // the ready file descriptor
	UserData uintptr // the value passed to Register/Rearm for this fd
	Readable bool
	Writable bool
	Err      bool // peer hangup or error condition
}

// EventReactor multiplexes readiness notifications across many file
// descriptors using the OS's native mechanism (epoll on Linux, kqueue on
// BSD/macOS). Every registration is one-shot: once a fd fires in Wait, it
// generates no further events until Rearm is called again, so a reactor
// thread can safely hand the fd off to a worker pool without another
// reactor wakeup racing the handoff.
type EventReactor interface {
	// Register arms fd for read readiness, one-shot, tagging it with
	// userData (typically an index or pointer into the caller's
	// connection table).
	Register(fd uintptr, userData uintptr) error

	// Rearm re-arms fd for another one-shot read readiness
	// notification, after a worker has finished draining it.
	Rearm(fd uintptr, userData uintptr) error

	// Unregister removes fd from the watch set entirely, e.g. on
	// connection close.
	Unregister(fd uintptr) error

	// Wait blocks until at least one registered fd is ready (or the
	// reactor is closed) and writes ready events into the given slice,
	// returning how many were written.
	Wait(events []Event) (n int, err error)

	// Close releases the reactor's underlying OS resources. Any
	// in-progress Wait returns with an error.
	Close() error
}
