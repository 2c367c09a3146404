//go:build linux

package reactor

import (
	"os"
	"testing"
	"time"
)

func TestEpollReactorRegisterAndWait(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	defer wr.Close()

	if err := r.Register(rd.Fd(), 42); err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		wr.Write([]byte("x"))
	}()

	events := make([]Event, 4)
	n, err := r.Wait(events)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
	if events[0].UserData != 42 {
		t.Fatalf("expected userData 42, got %d", events[0].UserData)
	}
	if !events[0].Readable {
		t.Fatal("expected readable event")
	}
}

func TestEpollReactorRearmAfterOneshotFire(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	defer wr.Close()

	if err := r.Register(rd.Fd(), 7); err != nil {
		t.Fatal(err)
	}
	wr.Write([]byte("a"))

	events := make([]Event, 4)
	if _, err := r.Wait(events); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1)
	rd.Read(buf)

	if err := r.Rearm(rd.Fd(), 7); err != nil {
		t.Fatal(err)
	}
	wr.Write([]byte("b"))
	n, err := r.Wait(events)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected rearmed fd to fire again, got %d events", n)
	}
}
