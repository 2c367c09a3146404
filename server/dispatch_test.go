package server

import (
	"net"
	"testing"

	"github.com/wsforge/wsforge/protocol"
)

type recordingHandler struct {
	messages [][]byte
	pings    [][]byte
	closed   bool
}

func (h *recordingHandler) Init(*protocol.HandshakeState, *protocol.Connection, string) error { return nil }
func (h *recordingHandler) HandleMessage(data []byte, kind protocol.MessageType) {
	h.messages = append(h.messages, append([]byte{}, data...))
}
func (h *recordingHandler) HandlePing(data []byte) {
	h.pings = append(h.pings, append([]byte{}, data...))
}
func (h *recordingHandler) Close() { h.closed = true }

func newTestHandlerConn() (*HandlerConn, net.Conn) {
	server, client := net.Pipe()
	h := &recordingHandler{}
	hc := &HandlerConn{
		conn:    protocol.NewConnection(server, "/"),
		handler: h,
		caps:    detectCapabilities(h),
	}
	return hc, client
}

func TestDispatchDataMessageCallsHandler(t *testing.T) {
	hc, client := newTestHandlerConn()
	defer client.Close()
	h := hc.handler.(*recordingHandler)

	shouldClose, _, _, _ := dispatch(hc, &protocol.Message{Opcode: protocol.OpcodeText, Payload: []byte("hi")})
	if shouldClose {
		t.Fatal("data message must not close")
	}
	if len(h.messages) != 1 || string(h.messages[0]) != "hi" {
		t.Fatalf("got %v", h.messages)
	}
}

func TestDispatchPingWithoutHandlerRepliesPong(t *testing.T) {
	hc, client := newTestHandlerConn()
	// no PingHandler implemented by recordingHandler's ping path here —
	// wrap with a handler lacking HandlePing to exercise the default.
	hc.handler = &minimalHandler{}
	hc.caps = detectCapabilities(hc.handler)

	done := make(chan struct{})
	go func() {
		shouldClose, _, _, _ := dispatch(hc, &protocol.Message{Opcode: protocol.OpcodePing, Payload: []byte("x")})
		if shouldClose {
			t.Error("ping must not close")
		}
		close(done)
	}()

	raw := make([]byte, 64)
	n, err := client.Read(raw)
	if err != nil {
		t.Fatal(err)
	}
	<-done
	client.Close()
	frame, _, err := protocol.DecodeFrame(raw[:n])
	if err != nil {
		t.Fatal(err)
	}
	if frame.Opcode != protocol.OpcodePong || string(frame.Payload) != "x" {
		t.Fatalf("expected pong echo, got %+v", frame)
	}
}

type minimalHandler struct{}

func (h *minimalHandler) Init(*protocol.HandshakeState, *protocol.Connection, string) error { return nil }
func (h *minimalHandler) HandleMessage(data []byte, kind protocol.MessageType)               {}

// Boundary scenario 4 (spec §8): close payload 0x03 0xE8 ("1000")
// triggers a normal-closure reply.
func TestDispatchCloseNormal(t *testing.T) {
	hc, client := newTestHandlerConn()
	hc.handler = &minimalHandler{}
	hc.caps = detectCapabilities(hc.handler)
	defer client.Close()

	shouldClose, code, _, handled := dispatchClose(hc, []byte{0x03, 0xE8})
	if !shouldClose || code != protocol.CloseNormalClosure {
		t.Fatalf("got close=%v code=%d", shouldClose, code)
	}
	if handled {
		t.Fatal("expected handled=false when no CloseHandler is registered")
	}
}

// Boundary scenario 5 (spec §8): close payload 0x03 0xEC (1004) is
// rejected as a protocol error.
func TestDispatchCloseReservedCodeIsProtocolError(t *testing.T) {
	hc, client := newTestHandlerConn()
	hc.handler = &minimalHandler{}
	hc.caps = detectCapabilities(hc.handler)
	defer client.Close()

	shouldClose, code, _, _ := dispatchClose(hc, []byte{0x03, 0xEC})
	if !shouldClose || code != protocol.CloseProtocolError {
		t.Fatalf("got close=%v code=%d", shouldClose, code)
	}
}

func TestDispatchCloseEmptyPayload(t *testing.T) {
	hc, client := newTestHandlerConn()
	hc.handler = &minimalHandler{}
	hc.caps = detectCapabilities(hc.handler)
	defer client.Close()

	shouldClose, code, _, _ := dispatchClose(hc, nil)
	if !shouldClose || code != protocol.CloseNormalClosure {
		t.Fatalf("got close=%v code=%d", shouldClose, code)
	}
}

func TestDispatchCloseSingleByteIsProtocolError(t *testing.T) {
	hc, client := newTestHandlerConn()
	hc.handler = &minimalHandler{}
	hc.caps = detectCapabilities(hc.handler)
	defer client.Close()

	shouldClose, code, _, _ := dispatchClose(hc, []byte{0x03})
	if !shouldClose || code != protocol.CloseProtocolError {
		t.Fatalf("got close=%v code=%d", shouldClose, code)
	}
}

type closeDelegatingHandler struct {
	minimalHandler
	closePayload []byte
}

func (h *closeDelegatingHandler) HandleClose(payload []byte) {
	h.closePayload = append([]byte{}, payload...)
}

// Per spec §4.8, a handler implementing HandleClose owns the wire-level
// close reply; dispatch must report handled=true so the caller does not
// also write a framework-generated close frame on top of it.
func TestDispatchCloseDelegatesToHandleCloseHandler(t *testing.T) {
	hc, client := newTestHandlerConn()
	defer client.Close()
	h := &closeDelegatingHandler{}
	hc.handler = h
	hc.caps = detectCapabilities(h)

	shouldClose, code, _, handled := dispatch(hc, &protocol.Message{Opcode: protocol.OpcodeClose, Payload: []byte{0x03, 0xE8}})
	if !shouldClose || code != protocol.CloseNormalClosure {
		t.Fatalf("got close=%v code=%d", shouldClose, code)
	}
	if !handled {
		t.Fatal("expected handled=true when a CloseHandler is registered")
	}
	if len(h.closePayload) != 2 || h.closePayload[0] != 0x03 || h.closePayload[1] != 0xE8 {
		t.Fatalf("handler did not receive close payload: %v", h.closePayload)
	}
}

func TestValidCloseCodeRanges(t *testing.T) {
	cases := []struct {
		code uint16
		want bool
	}{
		{999, false},
		{1000, true},
		{1004, false},
		{1005, false},
		{1006, false},
		{1008, true},
		{1013, true},
		{1014, false},
		{2999, false},
		{3000, true},
		{4000, true},
	}
	for _, c := range cases {
		if got := validCloseCode(c.code); got != c.want {
			t.Errorf("validCloseCode(%d) = %v, want %v", c.code, got, c.want)
		}
	}
}
