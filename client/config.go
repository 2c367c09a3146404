// File: client/config.go
// Outbound client configuration, per spec §6's client config surface.
// Grounded on the teacher's client/client.go ClientConfig struct, pared
// down to the fields the spec actually names (the teacher's NUMA-node
// pinning and internal batch size have no counterpart here — this
// module's client is one thread per connection, not a batched transport).
package client

import (
	"crypto/tls"
	"time"
)

// Config holds all client-side configuration parameters.
type Config struct {
	// Addr is host:port to dial. Host is also sent as the handshake
	// request's Host header unless HostHeader overrides it.
	Addr       string
	Path       string
	HostHeader string

	MaxMessageSize       int
	ConnectionBufferSize int

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	// TLS enables wrapping the raw TCP dial in a TLS client handshake.
	// CABundle, when non-empty, is a PEM file path used to build a
	// private root pool instead of trusting the system roots. The
	// library never inspects certificate internals beyond this: per
	// spec, TLS is an external collaborator plugged in at the stream
	// boundary, not part of the protocol core.
	TLS       bool
	CABundle  string
	TLSConfig *tls.Config // takes precedence over TLS/CABundle when set

	// MaskKeyFn overrides the per-frame masking key generator (spec's
	// `mask_fn` client config knob). Nil uses crypto/rand.
	MaskKeyFn func() [4]byte

	// HandlePing/HandlePong/HandleClose, when true, suppress this
	// library's default control-frame behavior (auto-pong on ping,
	// silently dropping pong, auto-replying to close) even when the
	// application Handler does not implement the matching capability
	// interface — per spec, "default false = library handles them."
	HandlePing  bool
	HandlePong  bool
	HandleClose bool

	HeartbeatInterval time.Duration // 0 = disabled

	ReconnectMax int // 0 = no automatic reconnect
}

// DefaultConfig returns sensible defaults; Addr and Path must still be
// set by the caller.
func DefaultConfig() *Config {
	return &Config{
		Path:                 "/",
		MaxMessageSize:       65536,
		ConnectionBufferSize: 4096,
		DialTimeout:          10 * time.Second,
		HandshakeTimeout:     10 * time.Second,
	}
}
