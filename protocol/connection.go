// File: protocol/connection.go
// Connection ties the frame codec and handshake together into the
// per-socket object both the blocking and nonblocking workers operate on.
// Grounded on the teacher's protocol/connection.go (WSConnection): the
// atomic CAS close-once guard and Close shape are carried over
// directly; the channel-based inbox/outbox/recvLoop machinery is dropped
// since this connection is driven externally by a worker (blocking or
// reactor-based) rather than owning its own goroutines (see SPEC_FULL.md
// §6 — the teacher's internal channel plumbing assumed it always owned
// both loops, which neither of this module's worker models do).
package protocol

import (
	"crypto/rand"
	"io"
	"net"
	"sync/atomic"
)

// Connection wraps a net.Conn with the write-side framing operations
// spec §4.5 requires: masked writes when acting as a client, control
// frame helpers, and an idempotent, concurrency-safe Close.
type Connection struct {
	conn     net.Conn
	isClient bool
	closed   int32

	path   string
	maskFn func() [4]byte
}

// NewConnection wraps conn for server-side use (outbound frames sent
// unmasked).
func NewConnection(conn net.Conn, path string) *Connection {
	return &Connection{conn: conn, path: path}
}

// NewClientConnection wraps conn for client-side use (outbound frames
// masked with a fresh per-frame key, per RFC 6455 §5.3).
func NewClientConnection(conn net.Conn) *Connection {
	return &Connection{conn: conn, isClient: true}
}

// Conn returns the underlying net.Conn, for callers that need to set
// deadlines or inspect the local/remote address.
func (c *Connection) Conn() net.Conn {
	return c.conn
}

// Path returns the request path this connection was upgraded on
// (server-side only; empty for client connections).
func (c *Connection) Path() string {
	return c.path
}

// SetMaskKeyFn overrides the per-frame masking key generator used by a
// client connection (spec's client config `mask_fn` knob). Passing nil
// restores the default crypto/rand source. Has no effect on a
// server-side connection, which never masks its own writes.
func (c *Connection) SetMaskKeyFn(fn func() [4]byte) {
	c.maskFn = fn
}

func (c *Connection) maskKey() (key [4]byte, masked bool) {
	if !c.isClient {
		return key, false
	}
	if c.maskFn != nil {
		return c.maskFn(), true
	}
	_, _ = rand.Read(key[:])
	return key, true
}

// writeFramed writes a single complete frame with the given opcode and
// payload, applying masking when this connection is a client.
func (c *Connection) writeFramed(opcode byte, payload []byte) error {
	if atomic.LoadInt32(&c.closed) == 1 {
		return ErrClosed
	}
	key, masked := c.maskKey()
	frame := EncodeFrame(opcode, true, payload, masked, key)
	_, err := c.conn.Write(frame)
	return err
}

// WriteText sends a complete, unfragmented text message.
func (c *Connection) WriteText(payload []byte) error {
	return c.writeFramed(OpcodeText, payload)
}

// WriteBinary sends a complete, unfragmented binary message.
func (c *Connection) WriteBinary(payload []byte) error {
	return c.writeFramed(OpcodeBinary, payload)
}

// WritePing sends a ping control frame with an optional application
// payload (spec §4.3: at most MaxControlPayloadLen bytes).
func (c *Connection) WritePing(payload []byte) error {
	if len(payload) > MaxControlPayloadLen {
		return ErrLargeControl
	}
	return c.writeFramed(OpcodePing, payload)
}

// WritePong sends a pong control frame, echoing the given payload.
func (c *Connection) WritePong(payload []byte) error {
	if len(payload) > MaxControlPayloadLen {
		return ErrLargeControl
	}
	return c.writeFramed(OpcodePong, payload)
}

// WriteClose sends a close frame with CloseNormalClosure and no reason.
func (c *Connection) WriteClose() error {
	return c.WriteCloseWithCode(CloseNormalClosure, "")
}

// WriteCloseWithCode sends a close frame carrying the given close code
// and UTF-8 reason string, per RFC 6455 §5.5.1.
func (c *Connection) WriteCloseWithCode(code uint16, reason string) error {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return c.writeFramed(OpcodeClose, payload)
}

// Close marks the connection closed and closes the underlying socket.
// It is idempotent and safe to call concurrently with in-flight writes
// or reads: only the first caller actually closes the socket, per
// spec §8's close-once-under-concurrency invariant.
func (c *Connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	return c.conn.Close()
}

// IsClosed reports whether Close has already run.
func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Reader returns the underlying connection as an io.Reader, for use by a
// protocol.Reader's Fill.
func (c *Connection) Reader() io.Reader {
	return c.conn
}
