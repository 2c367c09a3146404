package protocol

import (
	"bytes"
	"testing"

	"github.com/wsforge/wsforge/bufpool"
)

func newTestReader(staticSize, maxMsg int) *Reader {
	return NewReader(staticSize, bufpool.New(4, staticSize*2, maxMsg), maxMsg)
}

// Boundary scenario 1 (spec §8): two concatenated text frames arrive in
// one read; Read returns them one after another, hasMore=true then false.
func TestReaderTwoConcatenatedFrames(t *testing.T) {
	r := newTestReader(4096, 65536)
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeText, true, []byte("abc"), false, [4]byte{}))
	buf.Write(EncodeFrame(OpcodeText, true, []byte("def"), false, [4]byte{}))

	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}

	hasMore, msg, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || string(msg.Payload) != "abc" {
		t.Fatalf("first message = %v", msg)
	}
	if !hasMore {
		t.Fatal("expected hasMore=true after first message")
	}
	r.Done()

	hasMore, msg, err = r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || string(msg.Payload) != "def" {
		t.Fatalf("second message = %v", msg)
	}
	if hasMore {
		t.Fatal("expected hasMore=false after draining buffer")
	}
	r.Done()
}

// Boundary scenario 2 (spec §8): a text message split mid-codepoint
// across two frames; UTF-8 validation succeeds once assembled even
// though the first fragment alone is invalid UTF-8.
func TestReaderSplitCodepointUTF8(t *testing.T) {
	r := newTestReader(4096, 65536)
	full := []byte("héllo") // "héllo"
	split := 2                  // splits the 2-byte 'é' encoding
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeText, false, full[:split], false, [4]byte{}))
	buf.Write(EncodeFrame(OpcodeContinuation, true, full[split:], false, [4]byte{}))

	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}
	_, msg, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil {
		t.Fatal("expected a completed message")
	}
	if string(msg.Payload) != string(full) {
		t.Fatalf("got %q want %q", msg.Payload, full)
	}
}

// Boundary scenario 3 (spec §8): a 127-byte control ping must be
// rejected as LargeControl.
func TestReaderRejectsOversizeControlFrame(t *testing.T) {
	r := newTestReader(4096, 65536)
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodePing, true, make([]byte, 127), false, [4]byte{}))
	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}
	_, _, err := r.Read()
	if err != ErrLargeControl {
		t.Fatalf("want ErrLargeControl, got %v", err)
	}
}

func TestReaderControlFrameDoesNotDisturbFragmentation(t *testing.T) {
	r := newTestReader(4096, 65536)
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeText, false, []byte("frag1"), false, [4]byte{}))
	buf.Write(EncodeFrame(OpcodePing, true, []byte("ping"), false, [4]byte{}))
	buf.Write(EncodeFrame(OpcodeContinuation, true, []byte("frag2"), false, [4]byte{}))

	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}

	_, msg, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || msg.Opcode != OpcodePing || string(msg.Payload) != "ping" {
		t.Fatalf("expected ping message first, got %+v", msg)
	}
	r.Done()

	_, msg, err = r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if msg == nil || string(msg.Payload) != "frag1frag2" {
		t.Fatalf("expected reassembled message, got %+v", msg)
	}
}

func TestReaderMessageTooLarge(t *testing.T) {
	r := newTestReader(64, 128)
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeBinary, true, make([]byte, 256), false, [4]byte{}))
	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}
	_, _, err := r.Read()
	if err != ErrMessageTooLarge {
		t.Fatalf("want ErrMessageTooLarge, got %v", err)
	}
}

func TestReaderOverflowsIntoLargeBuffer(t *testing.T) {
	provider := bufpool.New(2, 256, 65536)
	r := &Reader{
		raw:            bufpool.Static(64),
		scratch:        bufpool.Static(64),
		provider:       provider,
		maxMessageSize: 65536,
	}
	before := provider.FreeCount()

	payload := bytes.Repeat([]byte("x"), 200)
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeBinary, true, payload, false, [4]byte{}))
	// The 64-byte raw buffer takes the frame in more than one Fill.
	var msg *Message
	for msg == nil {
		if _, err := r.Fill(&buf); err != nil {
			t.Fatal(err)
		}
		var err error
		_, msg, err = r.Read()
		if err != nil {
			t.Fatal(err)
		}
	}
	if msg == nil || !bytes.Equal(msg.Payload, payload) {
		t.Fatalf("large-buffer message mismatch")
	}
	if provider.FreeCount() != before-1 {
		t.Fatalf("expected a buffer borrowed, free count = %d", provider.FreeCount())
	}
	r.Done()
	if provider.FreeCount() != before {
		t.Fatalf("expected buffer released on Done, free count = %d", provider.FreeCount())
	}
}

// A continuation frame that pushes the cumulative message length past
// the large buffer acquired for an earlier, smaller overflow frame must
// grow into a bigger buffer rather than overrun the one it already
// holds.
func TestReaderGrowsLargeBufferAcrossContinuationFrames(t *testing.T) {
	provider := bufpool.New(2, 256, 65536)
	r := &Reader{
		raw:            bufpool.Static(64),
		scratch:        bufpool.Static(64),
		provider:       provider,
		maxMessageSize: 65536,
	}

	first := bytes.Repeat([]byte("a"), 300)
	second := bytes.Repeat([]byte("b"), 300)

	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeBinary, false, first, false, [4]byte{}))
	buf.Write(EncodeFrame(OpcodeContinuation, true, second, false, [4]byte{}))

	want := append(append([]byte{}, first...), second...)
	var msg *Message
	for msg == nil {
		if _, err := r.Fill(&buf); err != nil {
			t.Fatal(err)
		}
		var err error
		_, msg, err = r.Read()
		if err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(msg.Payload, want) {
		t.Fatalf("grown large-buffer message mismatch: got %d bytes, want %d", len(msg.Payload), len(want))
	}
	r.Done()
}

func TestReaderInvalidUTF8ClosePayload(t *testing.T) {
	r := newTestReader(4096, 65536)
	badPayload := append([]byte{0x03, 0xE8}, 0xFF, 0xFE) // valid code + invalid utf8 tail
	var buf bytes.Buffer
	buf.Write(EncodeFrame(OpcodeClose, true, badPayload, false, [4]byte{}))
	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}
	_, _, err := r.Read()
	if err != ErrInvalidUTF8 {
		t.Fatalf("want ErrInvalidUTF8, got %v", err)
	}
}

func TestReaderNeedsMoreData(t *testing.T) {
	r := newTestReader(4096, 65536)
	frame := EncodeFrame(OpcodeText, true, []byte("hello"), false, [4]byte{})
	var buf bytes.Buffer
	buf.Write(frame[:len(frame)-2])
	if _, err := r.Fill(&buf); err != nil {
		t.Fatal(err)
	}
	hasMore, msg, err := r.Read()
	if err != nil || msg != nil || hasMore {
		t.Fatalf("expected incomplete read to yield nothing, got hasMore=%v msg=%v err=%v", hasMore, msg, err)
	}
}
