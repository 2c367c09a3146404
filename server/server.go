// File: server/server.go
// Server is the top-level façade wiring together the buffer provider,
// handshake pool, and whichever worker model the Config selects.
// Grounded on the teacher's server/types.go Server struct and
// server/server.go's NewServer/Serve/Shutdown shape, generalized from a
// single hard-wired listener+pool combination to the spec's dual worker
// model (blocking vs. nonblocking), with the NUMA-pool-manager
// construction the teacher does in NewServer dropped in favor of this
// module's simpler, non-NUMA bufpool.Provider (see SPEC_FULL.md §6).
package server

import (
	"errors"

	"github.com/wsforge/wsforge/bufpool"
	"github.com/wsforge/wsforge/protocol"
)

// ErrAlreadyRunning is returned by Serve if called more than once.
var ErrAlreadyRunning = errors.New("wsforge: server already running")

// reactorWorker is satisfied by *nonblockingWorker where the platform
// has a reactor backend; kept as an interface here so server.go itself
// stays buildable on platforms with no epoll/kqueue support (see
// server_nonblocking_other.go).
type reactorWorker interface {
	Serve() error
	Shutdown() error
}

// Server is the façade applications construct to run either worker
// model described in spec §4.6/§4.7.
type Server struct {
	cfg      *Config
	provider *bufpool.Provider
	hsPool   *protocol.HandshakePool

	blocking    *blockingWorker
	nonblocking reactorWorker

	running bool
}

// New constructs a Server from cfg, preallocating the buffer provider
// and handshake pool per the configured sizes. The per-connection
// handler constructor is supplied to Serve, not here.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Server{
		cfg:      cfg,
		provider: bufpool.New(cfg.LargeBuffers.Count, cfg.pooledBufferSize(), cfg.MaxMessageSize),
		hsPool:   protocol.NewHandshakePool(cfg.Handshake.PoolCount, cfg.Handshake.MaxSize, cfg.Handshake.MaxHeaders),
	}
}

// Serve binds the configured listening socket and runs the selected
// worker model until Shutdown is called. It blocks until the worker's
// accept/reactor loop exits.
func (s *Server) Serve(newHandler func() Handler) error {
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true

	if s.cfg.Nonblocking {
		return s.serveNonblocking(newHandler)
	}
	return s.serveBlocking(newHandler)
}

func (s *Server) serveBlocking(newHandler func() Handler) error {
	ln, err := listen(s.cfg)
	if err != nil {
		return err
	}
	s.blocking = newBlockingWorker(s.cfg, ln, s.provider, s.hsPool, newHandler)
	return s.blocking.Serve()
}

// Shutdown stops the running worker per the configured ShutdownConfig.
func (s *Server) Shutdown() error {
	if s.blocking != nil {
		return s.blocking.Shutdown()
	}
	if s.nonblocking != nil {
		return s.nonblocking.Shutdown()
	}
	return nil
}

// BufferProvider exposes the server's shared large-buffer pool, e.g. for
// an application handler that wants to borrow buffers with the same
// discipline the reader uses.
func (s *Server) BufferProvider() *bufpool.Provider {
	return s.provider
}
