// File: server/blocking.go
// Thread-per-connection blocking worker (spec §4.6). Grounded on the
// teacher's lowlevel/server/listener.go (Accept + handshake + wrap in a
// connection object) and server/server.go's Serve (accept loop spawning
// a goroutine per connection, mutex-guarded shutdown channel), extended
// with the full handshake-pool/deadline/handler-capability flow spec
// §4.6 requires that the teacher's Serve does not implement at all (the
// teacher calls a single always-succeeding handshake helper and never
// constructs a polymorphic handler).
package server

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/wsforge/wsforge/bufpool"
	"github.com/wsforge/wsforge/protocol"
)

// blockingWorker implements the thread-per-connection model.
type blockingWorker struct {
	cfg      *Config
	ln       net.Listener
	provider *bufpool.Provider
	hsPool   *protocol.HandshakePool
	newHandler func() Handler

	mu       sync.Mutex
	conns    connList
	closing  bool
}

func newBlockingWorker(cfg *Config, ln net.Listener, provider *bufpool.Provider, hsPool *protocol.HandshakePool, newHandler func() Handler) *blockingWorker {
	return &blockingWorker{cfg: cfg, ln: ln, provider: provider, hsPool: hsPool, newHandler: newHandler}
}

// Serve runs the accept loop until the listener is closed by Shutdown.
func (w *blockingWorker) Serve() error {
	for {
		conn, err := w.ln.Accept()
		if err != nil {
			w.mu.Lock()
			closing := w.closing
			w.mu.Unlock()
			if closing {
				return nil
			}
			return err
		}
		go w.handleConnection(conn)
	}
}

// Shutdown tears down every live connection per the configured
// ShutdownConfig and, when Shutdown.CloseSocket is set, closes the
// listener.
func (w *blockingWorker) Shutdown() error {
	w.mu.Lock()
	w.closing = true
	var toClose []*HandlerConn
	w.conns.forEach(func(hc *HandlerConn) { toClose = append(toClose, hc) })
	w.mu.Unlock()

	for _, hc := range toClose {
		w.teardown(hc)
	}
	if w.cfg.Shutdown.CloseSocket {
		return w.ln.Close()
	}
	return nil
}

func (w *blockingWorker) handleConnection(conn net.Conn) {
	setNoDelay(conn)
	hs := w.hsPool.Get()
	defer w.hsPool.Put(hs)

	if w.cfg.Handshake.Timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(w.cfg.Handshake.Timeout))
	}
	surplus, err := w.readHandshake(conn, hs)
	if err != nil {
		w.rejectHandshake(conn, nil, err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	wsConn := protocol.NewConnection(conn, hs.Path)
	handler := w.newHandler()
	if err := handler.Init(hs, wsConn, hs.Path); err != nil {
		w.rejectHandshake(conn, handler, err)
		conn.Close()
		return
	}
	if _, err := conn.Write(hs.Accept()); err != nil {
		conn.Close()
		return
	}

	hc := &HandlerConn{
		conn:    wsConn,
		reader:  protocol.NewReader(w.cfg.ConnectionBufferSize, w.provider, w.cfg.MaxMessageSize),
		handler: handler,
		caps:    detectCapabilities(handler),
	}
	if len(surplus) > 0 {
		hc.reader.Seed(surplus)
	}
	w.mu.Lock()
	w.conns.pushBack(hc)
	w.mu.Unlock()

	if hc.caps.afterInit != nil {
		hc.caps.afterInit.AfterInit()
	}

	w.readLoop(hc)

	w.mu.Lock()
	w.conns.remove(hc)
	w.mu.Unlock()
	w.teardown(hc)
}

func (w *blockingWorker) readHandshake(conn net.Conn, hs *protocol.HandshakeState) ([]byte, error) {
	buf := make([]byte, 512)
	for {
		ok, surplus, err := hs.TryParse()
		if err != nil {
			return nil, err
		}
		if ok {
			return surplus, nil
		}
		n, err := conn.Read(buf)
		if err != nil {
			return nil, err
		}
		if err := hs.Feed(buf[:n]); err != nil {
			return nil, err
		}
	}
}

func (w *blockingWorker) rejectHandshake(conn net.Conn, handler Handler, err error) {
	var resp []byte
	if responder, ok := handler.(HandshakeErrorResponder); ok {
		resp = responder.HandshakeErrorResponse(err)
	} else {
		resp = protocol.BadRequestResponse(err.Error())
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_, _ = conn.Write(resp)
}

func (w *blockingWorker) readLoop(hc *HandlerConn) {
	defer hc.reader.Abort()
	for {
		// Drain before filling, so bytes seeded from the handshake
		// surplus are delivered without waiting for more input.
		for {
			hasMore, msg, err := hc.reader.Read()
			if err != nil {
				w.handleProtocolError(hc, err)
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
				return
			}
			if !hasMore {
				break
			}
		}
		if _, err := hc.reader.Fill(hc.conn.Reader()); err != nil {
			if w.cfg.Debug {
				log.Printf("wsforge: connection read error: %v", err)
			}
			return
		}
	}
}

func (w *blockingWorker) handleProtocolError(hc *HandlerConn, err error) {
	if w.cfg.Debug {
		log.Printf("wsforge: protocol error: %v", err)
	}
	if w.cfg.Shutdown.NotifyClient {
		_ = hc.conn.WriteCloseWithCode(protocol.CloseCodeFor(err), "")
	}
}

func (w *blockingWorker) teardown(hc *HandlerConn) {
	if w.cfg.Shutdown.NotifyHandler && hc.caps.closer != nil {
		hc.caps.closer.Close()
	}
	if w.cfg.Shutdown.CloseSocket {
		hc.conn.Close()
	}
}
