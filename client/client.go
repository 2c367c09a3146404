// File: client/client.go
// Outbound WebSocket client: dial, handshake, read loop, masked writes
// (spec §4.4, §4.6's "client read loop: one thread per client, no
// internal thread pool"). Grounded on the teacher's client/client.go
// (WebSocketClient: dialAndHandshake, recvLoop, heartbeatLoop,
// reconnect-with-backoff, lifecycle handlers), replacing its
// NUMA-pooled-buffer/batch-channel transport with this module's
// protocol.Reader/Connection pair.
package client

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wsforge/wsforge/bufpool"
	"github.com/wsforge/wsforge/protocol"
)

// Client is a single outbound WebSocket connection with optional
// automatic reconnect and heartbeat.
type Client struct {
	cfg      *Config
	provider *bufpool.Provider
	handler  Handler
	caps     capabilities

	mu      sync.Mutex
	conn    *protocol.Connection
	reader  *protocol.Reader
	closed  atomic.Bool
	closeCh chan struct{}

	attempts int
}

// Dial connects, performs the handshake, and starts the client's read
// loop (and heartbeat loop, if configured) in a background goroutine.
// It blocks until the first successful handshake or the configured
// reconnect attempts are exhausted.
func Dial(cfg *Config, handler Handler) (*Client, error) {
	provider := bufpool.New(4, cfg.pooledBufferSize(), cfg.MaxMessageSize)
	c := &Client{
		cfg:      cfg,
		provider: provider,
		handler:  handler,
		caps:     detectCapabilities(handler),
		closeCh:  make(chan struct{}),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.readLoop()
	if cfg.HeartbeatInterval > 0 {
		go c.heartbeatLoop()
	}
	return c, nil
}

func (cfg *Config) pooledBufferSize() int {
	size := cfg.ConnectionBufferSize * 4
	if size > cfg.MaxMessageSize {
		return cfg.MaxMessageSize
	}
	return size
}

func (c *Client) connect() error {
	var lastErr error
	for {
		if c.cfg.ReconnectMax == 0 && c.attempts > 0 {
			return lastErr
		}
		if c.cfg.ReconnectMax > 0 && c.attempts >= c.cfg.ReconnectMax {
			return fmt.Errorf("max reconnect attempts reached: %w", lastErr)
		}
		c.attempts++
		if err := c.dialAndHandshake(); err != nil {
			lastErr = err
			if c.cfg.ReconnectMax > 0 {
				time.Sleep(time.Duration(c.attempts) * 100 * time.Millisecond)
				continue
			}
			return lastErr
		}
		return nil
	}
}

func (c *Client) dialAndHandshake() error {
	rawConn, err := net.DialTimeout("tcp", c.cfg.Addr, c.cfg.DialTimeout)
	if err != nil {
		return err
	}

	conn, err := c.maybeWrapTLS(rawConn)
	if err != nil {
		rawConn.Close()
		return err
	}

	if c.cfg.HandshakeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	}

	key, err := protocol.NewClientKey()
	if err != nil {
		conn.Close()
		return err
	}
	host := c.cfg.HostHeader
	if host == "" {
		host = c.cfg.Addr
	}
	if _, err := conn.Write(protocol.BuildUpgradeRequest(host, c.cfg.Path, key)); err != nil {
		conn.Close()
		return err
	}

	buf := make([]byte, 1024)
	total := 0
	var surplus []byte
	for {
		n, err := conn.Read(buf[total:])
		if err != nil {
			conn.Close()
			return err
		}
		total += n
		ok, s, perr := protocol.ParseUpgradeResponse(buf[:total], key)
		if perr != nil {
			conn.Close()
			return perr
		}
		if ok {
			surplus = s
			break
		}
		if total == len(buf) {
			conn.Close()
			return protocol.ErrRequestTooLarge
		}
	}
	conn.SetDeadline(time.Time{})

	wsConn := protocol.NewClientConnection(conn)
	if c.cfg.MaskKeyFn != nil {
		wsConn.SetMaskKeyFn(c.cfg.MaskKeyFn)
	}
	reader := protocol.NewReader(c.cfg.ConnectionBufferSize, c.provider, c.cfg.MaxMessageSize)
	if len(surplus) > 0 {
		reader.Seed(surplus)
	}

	c.mu.Lock()
	c.conn = wsConn
	c.reader = reader
	c.mu.Unlock()
	c.attempts = 0

	if c.caps.connecter != nil {
		c.caps.connecter.OnConnect()
	}
	return nil
}

func (c *Client) maybeWrapTLS(rawConn net.Conn) (net.Conn, error) {
	if c.cfg.TLSConfig != nil {
		tc := tls.Client(rawConn, c.cfg.TLSConfig)
		return tc, tc.Handshake()
	}
	if !c.cfg.TLS {
		return rawConn, nil
	}
	tlsCfg := &tls.Config{ServerName: hostOnly(c.cfg.Addr)}
	if c.cfg.CABundle != "" {
		pem, err := os.ReadFile(c.cfg.CABundle)
		if err != nil {
			return rawConn, err
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(pem)
		tlsCfg.RootCAs = pool
	}
	tc := tls.Client(rawConn, tlsCfg)
	return tc, tc.Handshake()
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// readLoop runs for the lifetime of the client, feeding the frame reader
// and dispatching completed messages, reconnecting on transport error if
// configured to do so.
func (c *Client) readLoop() {
	var fillErr error
	for {
		if c.closed.Load() {
			return
		}
		c.mu.Lock()
		conn, reader := c.conn, c.reader
		c.mu.Unlock()

		// Drain before filling, so bytes seeded from the handshake
		// surplus are delivered without waiting for more input.
		for {
			hasMore, msg, err := reader.Read()
			if err != nil {
				c.handleProtocolError(err)
				break
			}
			if msg == nil {
				break
			}
			c.dispatch(msg)
			reader.Done()
			if !hasMore {
				break
			}
		}

		if fillErr != nil {
			c.handleTransportError(fillErr)
			if c.closed.Load() || !c.reconnectAfterError() {
				return
			}
			fillErr = nil
			continue
		}
		if c.closed.Load() {
			return
		}
		_, fillErr = reader.Fill(conn.Reader())
	}
}

func (c *Client) dispatch(msg *protocol.Message) {
	switch msg.Opcode {
	case protocol.OpcodeText, protocol.OpcodeBinary:
		c.handler.HandleMessage(msg.Payload, protocol.MessageType(msg.Opcode))
	case protocol.OpcodePong:
		if c.caps.pongHandler != nil {
			c.caps.pongHandler.HandlePong(msg.Payload)
		}
	case protocol.OpcodePing:
		if c.caps.pingHandler != nil {
			c.caps.pingHandler.HandlePing(msg.Payload)
		} else if !c.cfg.HandlePing {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			_ = conn.WritePong(msg.Payload)
		}
	case protocol.OpcodeClose:
		if c.caps.closeHandler != nil {
			c.caps.closeHandler.HandleClose(msg.Payload)
		} else if !c.cfg.HandleClose {
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			_ = conn.WriteClose()
		}
		c.Close()
	}
}

func (c *Client) handleTransportError(err error) {
	if c.caps.disconnecter != nil {
		c.caps.disconnecter.OnDisconnect(err)
	}
}

func (c *Client) handleProtocolError(err error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	_ = conn.WriteCloseWithCode(protocol.CloseCodeFor(err), "")
	c.Close()
}

func (c *Client) reconnectAfterError() bool {
	if c.cfg.ReconnectMax == 0 {
		return false
	}
	c.mu.Lock()
	c.conn.Close()
	c.mu.Unlock()
	c.attempts = 0
	return c.connect() == nil
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			_ = conn.WritePing(nil)
		case <-c.closeCh:
			return
		}
	}
}

// WriteText sends a complete, unfragmented, masked text message.
func (c *Client) WriteText(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn.WriteText(payload)
}

// WriteBinary sends a complete, unfragmented, masked binary message.
func (c *Client) WriteBinary(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn.WriteBinary(payload)
}

// Close ends the client connection. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(c.closeCh)
	if c.caps.disconnecter != nil {
		c.caps.disconnecter.OnDisconnect(nil)
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn.Close()
}
