// File: server/config.go
// Server configuration surface, per spec §6. Grounded on the teacher's
// server/types.go Config struct (a plain struct plus a DefaultConfig
// constructor, no flag/env/file-parsing library — config loading is
// explicitly out of scope per the spec's non-goals, and the teacher
// itself never reaches for viper/cobra for this).
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package server

import "time"

// HandshakeConfig bounds the handshake parser/generator and its pool.
type HandshakeConfig struct {
	Timeout    time.Duration // 0 = unbounded
	MaxSize    int
	MaxHeaders int
	PoolCount  int
}

// LargeBufferConfig configures the buffer provider's pooled tier.
type LargeBufferConfig struct {
	Count int
	Size  int
}

// ThreadPoolConfig configures the nonblocking worker's worker pool.
type ThreadPoolConfig struct {
	Count      int
	Backlog    int
	BufferSize int
}

// ShutdownConfig toggles independent aspects of connection teardown on
// server shutdown.
type ShutdownConfig struct {
	CloseSocket   bool
	NotifyClient  bool
	NotifyHandler bool
}

// Config holds all server-side configuration parameters (spec §6).
type Config struct {
	Port     uint16 // 0 = unix_path must be set
	Address  string
	UnixPath string

	MaxMessageSize       int
	ConnectionBufferSize int

	Handshake    HandshakeConfig
	LargeBuffers LargeBufferConfig
	ThreadPool   ThreadPoolConfig
	Shutdown     ShutdownConfig

	MaxConn int

	// Nonblocking selects the readiness-driven reactor worker model
	// instead of the thread-per-connection blocking model.
	Nonblocking bool

	// Debug enables verbose logging of handshake and connection
	// lifecycle events via the standard library logger.
	Debug bool
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() *Config {
	return &Config{
		Address:              "127.0.0.1",
		MaxMessageSize:       65536,
		ConnectionBufferSize: 4096,
		Handshake: HandshakeConfig{
			Timeout:    0,
			MaxSize:    1024,
			MaxHeaders: 10,
			PoolCount:  32,
		},
		LargeBuffers: LargeBufferConfig{
			Count: 8,
			Size:  65536 * 2,
		},
		ThreadPool: ThreadPoolConfig{
			Count:      0, // 0 = caller must set; no silent CPU-count guess
			Backlog:    500,
			BufferSize: 32768,
		},
		Shutdown: ShutdownConfig{
			CloseSocket:   true,
			NotifyClient:  true,
			NotifyHandler: true,
		},
	}
}

// pooledBufferSize caps LargeBuffers.Size at MaxMessageSize, per spec §6
// ("capped at max_message_size").
func (c *Config) pooledBufferSize() int {
	if c.LargeBuffers.Size > c.MaxMessageSize {
		return c.MaxMessageSize
	}
	return c.LargeBuffers.Size
}
