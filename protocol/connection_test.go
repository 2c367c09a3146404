package protocol

import (
	"net"
	"sync"
	"testing"
)

func pipeConnections() (*Connection, *Connection) {
	a, b := net.Pipe()
	return NewConnection(a, "/"), NewClientConnection(b)
}

func TestConnectionWriteTextUnmaskedFromServer(t *testing.T) {
	server, client := pipeConnections()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- server.WriteText([]byte("hi")) }()

	raw := make([]byte, 64)
	n, err := client.Conn().Read(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	frame, _, err := DecodeFrame(raw[:n])
	if err != nil {
		t.Fatal(err)
	}
	if frame.Masked {
		t.Fatal("server-sent frame must not be masked")
	}
	if string(frame.Payload) != "hi" {
		t.Fatalf("got %q", frame.Payload)
	}
}

func TestConnectionWriteTextMaskedFromClient(t *testing.T) {
	server, client := pipeConnections()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- client.WriteText([]byte("hi")) }()

	raw := make([]byte, 64)
	n, err := server.Conn().Read(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	frame, _, err := DecodeFrame(raw[:n])
	if err != nil {
		t.Fatal(err)
	}
	if !frame.Masked {
		t.Fatal("client-sent frame must be masked")
	}
	if string(frame.Payload) != "hi" {
		t.Fatalf("got %q", frame.Payload)
	}
}

func TestConnectionWriteCloseWithCode(t *testing.T) {
	server, client := pipeConnections()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- server.WriteCloseWithCode(CloseGoingAway, "bye") }()

	raw := make([]byte, 64)
	n, err := client.Conn().Read(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	frame, _, err := DecodeFrame(raw[:n])
	if err != nil {
		t.Fatal(err)
	}
	if frame.Opcode != OpcodeClose {
		t.Fatalf("expected close opcode, got %x", frame.Opcode)
	}
	code := uint16(frame.Payload[0])<<8 | uint16(frame.Payload[1])
	if code != CloseGoingAway {
		t.Fatalf("got code %d", code)
	}
	if string(frame.Payload[2:]) != "bye" {
		t.Fatalf("got reason %q", frame.Payload[2:])
	}
}

func TestConnectionWritePingRejectsOversizePayload(t *testing.T) {
	server, client := pipeConnections()
	defer server.Close()
	defer client.Close()

	err := server.WritePing(make([]byte, 200))
	if err != ErrLargeControl {
		t.Fatalf("want ErrLargeControl, got %v", err)
	}
}

// Spec §8: concurrent Close calls must close the underlying socket
// exactly once.
func TestConnectionCloseOnceUnderConcurrency(t *testing.T) {
	server, client := pipeConnections()
	defer client.Close()

	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = server.Close()
		}(i)
	}
	wg.Wait()

	if !server.IsClosed() {
		t.Fatal("expected connection marked closed")
	}
	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error from concurrent Close: %v", err)
		}
	}
}

func TestConnectionWriteAfterCloseFails(t *testing.T) {
	server, client := pipeConnections()
	defer client.Close()

	if err := server.Close(); err != nil {
		t.Fatal(err)
	}
	err := server.WriteText([]byte("too late"))
	if err != ErrClosed {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}
