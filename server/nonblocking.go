//go:build linux || darwin || freebsd || netbsd || openbsd

// File: server/nonblocking.go
// Readiness-driven nonblocking worker (spec §4.7): a single reactor
// thread multiplexing accept and connection readiness via the reactor
// package's epoll/kqueue abstraction, handing ready connections off to a
// bounded thread pool. Grounded on the teacher's reactor/epoll_reactor.go
// shape (register, wait, dispatch to a callback) with the callback
// replaced by a real handoff queue — github.com/eapache/queue, declared
// in the teacher's go.mod but never imported anywhere in its source — as
// the FIFO structure between the reactor thread and the pool, satisfying
// spec §4.7's "enqueues that HandlerConn to a fixed-size thread pool."
package server

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/wsforge/wsforge/bufpool"
	"github.com/wsforge/wsforge/protocol"
	"github.com/wsforge/wsforge/reactor"
	"golang.org/x/sys/unix"
)

// nonblockingWorker implements the reactor + thread-pool model.
type nonblockingWorker struct {
	cfg        *Config
	listenFd   int
	r          reactor.EventReactor
	provider   *bufpool.Provider
	hsPool     *protocol.HandshakePool
	newHandler func() Handler

	shutdownR, shutdownW int

	// conns is touched only by the reactor thread (spec §5: "Connection
	// list (nonblocking worker): touched only by the reactor thread —
	// no lock needed").
	conns map[int]*HandlerConn

	backlogMu    sync.Mutex
	backlogCond  *sync.Cond
	backlogSpace *sync.Cond
	backlog      *queue.Queue
	stopped      int32
	connCount    int32

	wg sync.WaitGroup
}

func newNonblockingWorker(cfg *Config, listenFd int, r reactor.EventReactor, provider *bufpool.Provider, hsPool *protocol.HandshakePool, newHandler func() Handler) (*nonblockingWorker, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		return nil, err
	}

	w := &nonblockingWorker{
		cfg:        cfg,
		listenFd:   listenFd,
		r:          r,
		provider:   provider,
		hsPool:     hsPool,
		newHandler: newHandler,
		shutdownR:  fds[0],
		shutdownW:  fds[1],
		conns:      make(map[int]*HandlerConn),
		backlog:    queue.New(),
	}
	w.backlogCond = sync.NewCond(&w.backlogMu)
	w.backlogSpace = sync.NewCond(&w.backlogMu)
	return w, nil
}

// Serve registers the listening socket and shutdown pipe, launches the
// thread pool, and runs the reactor loop until Shutdown is called.
func (w *nonblockingWorker) Serve() error {
	if err := w.r.Register(uintptr(w.listenFd), uintptr(w.listenFd)); err != nil {
		return err
	}
	if err := w.r.Register(uintptr(w.shutdownR), uintptr(w.shutdownR)); err != nil {
		return err
	}

	for i := 0; i < w.cfg.ThreadPool.Count; i++ {
		w.wg.Add(1)
		go w.poolWorker()
	}

	events := make([]reactor.Event, 256)
	for {
		n, err := w.r.Wait(events)
		if err != nil {
			if atomic.LoadInt32(&w.stopped) == 1 {
				return nil
			}
			return err
		}
		for i := 0; i < n; i++ {
			w.handleEvent(events[i])
		}
		if atomic.LoadInt32(&w.stopped) == 1 {
			return nil
		}
	}
}

func (w *nonblockingWorker) handleEvent(ev reactor.Event) {
	fd := int(ev.Fd)
	switch fd {
	case w.listenFd:
		w.drainAccept()
		_ = w.r.Rearm(uintptr(w.listenFd), uintptr(w.listenFd))
	case w.shutdownR:
		atomic.StoreInt32(&w.stopped, 1)
	default:
		hc, ok := w.conns[fd]
		if !ok {
			return
		}
		w.enqueue(hc)
	}
}

func (w *nonblockingWorker) drainAccept() {
	for {
		if w.cfg.MaxConn > 0 && int(atomic.LoadInt32(&w.connCount)) >= w.cfg.MaxConn {
			return
		}
		connFd, _, err := acceptNonblocking(w.listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			if w.cfg.Debug {
				log.Printf("wsforge: accept error: %v", err)
			}
			return
		}
		setTCPNoDelayFd(connFd)

		hc := &HandlerConn{
			conn: protocol.NewConnection(&fdConn{fd: connFd}, ""),
			hs:   protocol.NewHandshakeState(w.cfg.Handshake.MaxSize, w.cfg.Handshake.MaxHeaders),
		}
		w.conns[connFd] = hc
		atomic.AddInt32(&w.connCount, 1)
		if err := w.r.Register(uintptr(connFd), uintptr(connFd)); err != nil {
			w.closeConn(hc, connFd)
			continue
		}
	}
}

func (w *nonblockingWorker) enqueue(hc *HandlerConn) {
	w.backlogMu.Lock()
	for w.backlog.Length() >= w.cfg.ThreadPool.Backlog {
		w.backlogSpace.Wait()
	}
	w.backlog.Add(hc)
	w.backlogMu.Unlock()
	w.backlogCond.Signal()
}

func (w *nonblockingWorker) popTask() *HandlerConn {
	w.backlogMu.Lock()
	defer w.backlogMu.Unlock()
	for w.backlog.Length() == 0 {
		if atomic.LoadInt32(&w.stopped) == 1 {
			return nil
		}
		w.backlogCond.Wait()
	}
	hc := w.backlog.Remove().(*HandlerConn)
	w.backlogSpace.Signal()
	return hc
}

func (w *nonblockingWorker) poolWorker() {
	defer w.wg.Done()
	for {
		hc := w.popTask()
		if hc == nil {
			return
		}
		w.processReady(hc)
	}
}

// processReady implements one wake-up's worth of work for a HandlerConn:
// either advancing an in-progress handshake or draining buffered
// messages, then rearming for the next readiness notification. Per spec
// §4.7's concurrency invariant, at most one worker ever holds a given
// HandlerConn, since it is only enqueued again after this call returns
// and the fd is rearmed.
func (w *nonblockingWorker) processReady(hc *HandlerConn) {
	fd := hc.conn.Conn().(*fdConn).fd

	if hc.hs != nil {
		if !w.advanceHandshake(hc, fd) {
			return // connection closed or awaiting more bytes
		}
	}

	for {
		n, err := hc.reader.Fill(hc.conn.Reader())
		if err != nil {
			w.closeConn(hc, fd)
			return
		}
		for {
			hasMore, msg, rerr := hc.reader.Read()
			if rerr != nil {
				if w.cfg.Shutdown.NotifyClient {
					_ = hc.conn.WriteCloseWithCode(protocol.CloseCodeFor(rerr), "")
				}
				w.closeConn(hc, fd)
				return
			}
			if msg == nil {
				break
			}
			shouldClose, code, reason, handled := dispatch(hc, msg)
			hc.reader.Done()
			if shouldClose {
				if w.cfg.Shutdown.NotifyClient && !handled {
					_ = hc.conn.WriteCloseWithCode(code, reason)
				}
				w.closeConn(hc, fd)
				return
			}
			if !hasMore {
				break
			}
		}
		if n == 0 {
			break // EAGAIN: no more data buffered right now
		}
	}
	_ = w.r.Rearm(uintptr(fd), uintptr(fd))
}

// advanceHandshake reads into hc.hs until the handshake completes, fails,
// or the socket returns EAGAIN (spec §9: "mirror the blocking handshake
// logic but break out of the read loop when the socket returns
// WouldBlock"). Returns true if the caller should proceed to data mode
// in the same wake-up (handshake just completed), false if it already
// rearmed or closed and the caller must return.
func (w *nonblockingWorker) advanceHandshake(hc *HandlerConn, fd int) bool {
	buf := make([]byte, 512)
	var surplus []byte
	for {
		ok, s, err := hc.hs.TryParse()
		if err != nil {
			w.rejectHandshake(hc, fd, err)
			return false
		}
		if ok {
			surplus = s
			break
		}
		n, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				_ = w.r.Rearm(uintptr(fd), uintptr(fd))
				return false
			}
			w.closeConn(hc, fd)
			return false
		}
		if n == 0 {
			w.closeConn(hc, fd)
			return false
		}
		if err := hc.hs.Feed(buf[:n]); err != nil {
			w.rejectHandshake(hc, fd, err)
			return false
		}
	}

	handler := w.newHandler()
	if err := handler.Init(hc.hs, hc.conn, hc.hs.Path); err != nil {
		hc.handler = handler
		w.rejectHandshake(hc, fd, err)
		return false
	}
	if _, err := hc.conn.Conn().Write(hc.hs.Accept()); err != nil {
		w.closeConn(hc, fd)
		return false
	}
	hc.handler = handler
	hc.caps = detectCapabilities(handler)
	hc.reader = protocol.NewReader(w.cfg.ConnectionBufferSize, w.provider, w.cfg.MaxMessageSize)
	if len(surplus) > 0 {
		hc.reader.Seed(surplus)
	}
	hc.hs = nil
	if hc.caps.afterInit != nil {
		hc.caps.afterInit.AfterInit()
	}
	return true
}

func (w *nonblockingWorker) rejectHandshake(hc *HandlerConn, fd int, err error) {
	var resp []byte
	if responder, ok := hc.handler.(HandshakeErrorResponder); ok {
		resp = responder.HandshakeErrorResponse(err)
	} else {
		resp = protocol.BadRequestResponse(err.Error())
	}
	_, _ = hc.conn.Conn().Write(resp)
	w.closeConn(hc, fd)
}

func (w *nonblockingWorker) closeConn(hc *HandlerConn, fd int) {
	_ = w.r.Unregister(uintptr(fd))
	delete(w.conns, fd)
	atomic.AddInt32(&w.connCount, -1)
	if w.cfg.Shutdown.NotifyHandler && hc.caps.closer != nil {
		hc.caps.closer.Close()
	}
	if hc.reader != nil {
		hc.reader.Abort()
	}
	if w.cfg.Shutdown.CloseSocket {
		hc.conn.Close()
	}
}

// Shutdown signals the reactor loop to stop and wakes the thread pool.
func (w *nonblockingWorker) Shutdown() error {
	atomic.StoreInt32(&w.stopped, 1)
	_, err := unix.Write(w.shutdownW, []byte{0})

	w.backlogMu.Lock()
	w.backlogCond.Broadcast()
	w.backlogMu.Unlock()
	w.wg.Wait()

	if w.cfg.Shutdown.CloseSocket {
		for fd, hc := range w.conns {
			w.closeConn(hc, fd)
		}
		unix.Close(w.listenFd)
	}
	return err
}
