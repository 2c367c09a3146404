package server

import "testing"

func TestDefaultConfigSanity(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxMessageSize <= 0 {
		t.Error("MaxMessageSize must be positive")
	}
	if cfg.Handshake.MaxSize <= 0 || cfg.Handshake.MaxHeaders <= 0 {
		t.Error("handshake bounds must be positive")
	}
	if cfg.LargeBuffers.Size <= cfg.MaxMessageSize {
		t.Error("default pooled buffer size should exceed max message size before capping")
	}
	if !cfg.Shutdown.CloseSocket || !cfg.Shutdown.NotifyClient || !cfg.Shutdown.NotifyHandler {
		t.Error("default shutdown behavior should notify everyone and close the socket")
	}
}

func TestPooledBufferSizeCapsAtMaxMessageSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 1024
	cfg.LargeBuffers.Size = 65536
	if got := cfg.pooledBufferSize(); got != 1024 {
		t.Fatalf("pooledBufferSize() = %d, want 1024", got)
	}

	cfg.LargeBuffers.Size = 512
	if got := cfg.pooledBufferSize(); got != 512 {
		t.Fatalf("pooledBufferSize() = %d, want 512", got)
	}
}
