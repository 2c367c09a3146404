// File: protocol/reader.go
// Message reassembly: accumulates frames into messages, enforcing the
// size, control-frame, and fragmentation rules of spec §4.3. The teacher
// has no equivalent of this component (its WSConnection.recvLoop decodes
// one frame at a time and hands control frames directly to the
// connection, with no fragmentation support at all) — this is a new
// component grounded on the teacher's frame-decoding style
// (protocol/frame_codec.go) and its inline control-frame handling
// (protocol/connection.go's handleControl), extended to the full
// RFC 6455 fragmentation state machine spec §4.3 describes.
package protocol

import (
	"errors"
	"io"
	"net"
	"syscall"
	"unicode/utf8"

	"github.com/wsforge/wsforge/bufpool"
)

type payloadTarget byte

const (
	targetNone payloadTarget = iota
	targetControl
	targetScratch
	targetLarge
)

// pendingHeader records a parsed frame header while its payload is still
// being collected across one or more Fill calls.
type pendingHeader struct {
	fin     bool
	opcode  byte
	masked  bool
	maskKey [4]byte
}

// Reader accumulates frames read from a stream into complete Messages.
// It owns two fixed-size static buffers of the same size (spec §3): raw
// stages incoming bytes, and scratch assembles a message whose payload
// fits within it without borrowing a large buffer. Messages that don't
// fit are assembled in a buffer acquired from a bufpool.Provider.
type Reader struct {
	raw                 []byte
	dataStart, dataEnd  int

	scratch    []byte
	scratchLen int

	provider       *bufpool.Provider
	maxMessageSize int

	large    *bufpool.Borrowed
	hdr      *pendingHeader
	remaining int64

	target    payloadTarget
	frameBase int64 // offset within target where the current frame's payload starts
	control   []byte

	fragmented bool
	fragType   MessageType
	accumLen   int64
}

// NewReader constructs a Reader with a staticSize-byte static buffer and
// matching scratch accumulation buffer, borrowing large buffers from
// provider for messages exceeding staticSize, up to maxMessageSize.
func NewReader(staticSize int, provider *bufpool.Provider, maxMessageSize int) *Reader {
	return &Reader{
		raw:            bufpool.Static(staticSize),
		scratch:        bufpool.Static(staticSize),
		provider:       provider,
		maxMessageSize: maxMessageSize,
	}
}

// Seed primes the raw staging buffer with bytes already read off the
// wire before this Reader existed — the surplus left over after a
// client's handshake response parse (spec §8's boundary scenario: bytes
// following the terminating CRLFCRLF belong to the first frame, not the
// handshake). Must be called before the first Fill/Read.
func (r *Reader) Seed(data []byte) {
	n := copy(r.raw, data)
	r.dataStart = 0
	r.dataEnd = n
}

// Fill reads as much as the buffer can accept into the current writable
// region — the raw staging buffer by default, or directly into the
// scratch/large accumulation target while a frame's payload is being
// streamed in across multiple reads. It returns the classified transport
// error (ErrClosed / ErrConnectionReset / ErrBrokenPipe) on failure.
func (r *Reader) Fill(stream io.Reader) (int, error) {
	dst := r.writableRegion()
	if len(dst) == 0 {
		return 0, nil
	}
	n, err := stream.Read(dst)
	if n > 0 {
		r.advance(n)
	}
	if err != nil {
		return n, classifyReadErr(err)
	}
	return n, nil
}

func (r *Reader) writableRegion() []byte {
	if r.hdr != nil && r.remaining > 0 {
		switch r.target {
		case targetControl:
			return r.control[len(r.control)-int(r.remaining):]
		case targetScratch:
			end := r.scratchLen
			return r.scratch[end : end+int(r.remaining)]
		case targetLarge:
			buf := r.large.Bytes()
			end := r.scratchLen // reused as the large-buffer write offset when target==targetLarge
			return buf[end : end+int(r.remaining)]
		}
	}
	if r.dataStart > 0 && r.dataEnd == len(r.raw) {
		r.compactRaw()
	}
	return r.raw[r.dataEnd:]
}

func (r *Reader) advance(n int) {
	if r.hdr != nil && r.remaining > 0 {
		switch r.target {
		case targetControl:
			// control already sized to payload length; bytes landed
			// directly at the tail via writableRegion's slicing.
		case targetScratch:
			r.scratchLen += n
		case targetLarge:
			r.scratchLen += n // reused as large-buffer write offset
		}
		r.remaining -= int64(n)
		return
	}
	r.dataEnd += n
}

func (r *Reader) compactRaw() {
	n := copy(r.raw, r.raw[r.dataStart:r.dataEnd])
	r.dataStart = 0
	r.dataEnd = n
}

// Read parses as many complete frames out of the buffered bytes as
// needed to assemble one Message, returning it along with hasMore=true
// if unconsumed bytes remain that may hold another complete message.
// (false, nil, nil) means more bytes are needed — call Fill again.
//
// Callers must fully consume the returned Message and call Done before
// calling Read again: Done's release/compaction is what makes it safe to
// start overwriting the accumulation buffer for the next message.
func (r *Reader) Read() (hasMore bool, msg *Message, err error) {
	for {
		if r.hdr == nil {
			ok, herr := r.parseHeader()
			if herr != nil {
				return false, nil, herr
			}
			if !ok {
				return false, nil, nil
			}
		}
		if r.remaining > 0 {
			return false, nil, nil
		}

		msg, err = r.finalizeFrame()
		if err != nil {
			return false, nil, err
		}
		if msg != nil {
			hasMore = r.dataEnd > r.dataStart
			return hasMore, msg, nil
		}
		// Frame consumed but no message produced yet (e.g. the first
		// fragment of a multi-frame message): loop to try the next
		// buffered frame without returning to the caller.
	}
}

// parseHeader attempts to parse the next frame header out of the raw
// staging buffer and set up the payload target. Returns ok=false when
// more bytes are needed.
func (r *Reader) parseHeader() (bool, error) {
	fin, opcode, masked, maskKey, payloadLen, headerLen, err := DecodeFrameHeader(r.raw[r.dataStart:r.dataEnd])
	if err != nil {
		return false, err
	}
	if headerLen == 0 {
		return false, nil
	}

	if opcode == OpcodeContinuation {
		if !r.fragmented {
			return false, ErrInvalidFragmentation
		}
	} else if !isControlOpcode(opcode) {
		if r.fragmented {
			return false, ErrInvalidFragmentation
		}
	}

	r.dataStart += headerLen
	r.hdr = &pendingHeader{fin: fin, opcode: opcode, masked: masked, maskKey: maskKey}

	switch {
	case isControlOpcode(opcode):
		r.target = targetControl
		r.control = make([]byte, payloadLen)
		r.remaining = payloadLen
	case opcode == OpcodeContinuation:
		if err := r.setupDataTarget(r.accumLen + payloadLen); err != nil {
			return false, err
		}
		r.frameBase = r.accumLen
		r.remaining = payloadLen
	default: // text/binary, first frame of a (possibly single-frame) message
		if err := r.setupDataTarget(payloadLen); err != nil {
			return false, err
		}
		r.frameBase = 0
		r.remaining = payloadLen
	}

	// Consume whatever payload bytes are already buffered in raw.
	avail := r.dataEnd - r.dataStart
	if avail > int(r.remaining) {
		avail = int(r.remaining)
	}
	if avail > 0 {
		dst := r.writableRegion()[:avail]
		copy(dst, r.raw[r.dataStart:r.dataStart+avail])
		r.dataStart += avail
		r.advance(avail)
	}
	return true, nil
}

// setupDataTarget ensures the accumulation buffer for a data frame of
// total required length `required` (this frame's contribution, plus any
// prior fragments) is ready, acquiring a large buffer from the provider
// and copying over already-accumulated bytes if scratch is too small.
func (r *Reader) setupDataTarget(required int64) error {
	if required > int64(r.maxMessageSize) {
		return ErrMessageTooLarge
	}
	if r.large != nil {
		if required <= int64(len(r.large.Bytes())) {
			r.target = targetLarge
			return nil // already redirected and still fits
		}
		return r.growLarge(required)
	}
	if required <= int64(len(r.scratch)) {
		r.target = targetScratch
		return nil
	}
	large, err := r.provider.Acquire(int(required))
	if err != nil {
		return ErrMessageTooLarge
	}
	copy(large.Bytes(), r.scratch[:r.accumLen])
	r.large = large
	r.scratchLen = int(r.accumLen)
	r.target = targetLarge
	return nil
}

// growLarge re-acquires a bigger large buffer when a later continuation
// frame pushes the cumulative message length past what the current
// large buffer (sized for an earlier, smaller requirement) can hold,
// copying the bytes accumulated so far forward and releasing the old
// buffer back to its provider.
func (r *Reader) growLarge(required int64) error {
	bigger, err := r.provider.Acquire(int(required))
	if err != nil {
		return ErrMessageTooLarge
	}
	copy(bigger.Bytes(), r.large.Bytes()[:r.scratchLen])
	r.large.Release()
	r.large = bigger
	r.target = targetLarge
	return nil
}

// finalizeFrame is called once a frame's full payload has been collected.
// It either delivers a Message (control frame, or the final fragment of a
// data message) or updates fragmentation state and returns (nil, nil) to
// let Read() continue with the next buffered frame.
func (r *Reader) finalizeFrame() (*Message, error) {
	h := r.hdr
	r.hdr = nil

	if isControlOpcode(h.opcode) {
		payload := r.control
		r.control = nil
		if h.masked {
			MaskInPlace(payload, h.maskKey)
		}
		if h.opcode == OpcodeClose && len(payload) > 2 {
			if !utf8.Valid(payload[2:]) {
				return nil, ErrInvalidUTF8
			}
		}
		return &Message{Opcode: h.opcode, Payload: payload}, nil
	}

	frameLen := int(r.currentFrameLen())
	target := r.currentTargetBytes()
	frameSlice := target[r.frameBase : r.frameBase+int64(frameLen)]
	if h.masked {
		MaskInPlace(frameSlice, h.maskKey)
	}

	if h.opcode == OpcodeText || h.opcode == OpcodeBinary {
		r.fragType = MessageType(h.opcode)
	}
	r.accumLen += int64(frameLen)

	if !h.fin {
		r.fragmented = true
		return nil, nil
	}

	full := target[:r.accumLen]
	if r.fragType == MessageText {
		if !utf8.Valid(full) {
			r.resetMessageState()
			return nil, ErrInvalidUTF8
		}
	}
	msg := &Message{Type: r.fragType, Opcode: byte(r.fragType), Payload: full}
	r.resetMessageState()
	return msg, nil
}

func (r *Reader) currentFrameLen() int64 {
	// The number of bytes written for the just-finalized frame is the
	// distance from frameBase to the current write offset.
	switch r.target {
	case targetScratch, targetLarge:
		return int64(r.scratchLen) - r.frameBase
	default:
		return 0
	}
}

func (r *Reader) currentTargetBytes() []byte {
	switch r.target {
	case targetLarge:
		return r.large.Bytes()
	default:
		return r.scratch
	}
}

// resetMessageState clears per-message accounting once a message has
// been fully assembled and handed to Read's caller. It does NOT release
// the large buffer or compact raw — that happens in Done, once the
// caller has finished consuming the Message's payload.
func (r *Reader) resetMessageState() {
	r.fragmented = false
	r.accumLen = 0
	r.frameBase = 0
	r.target = targetNone
}

// Done signals that the message (or control frame) most recently
// returned by Read has been fully consumed by the caller. Any large
// buffer borrowed for it is released, and residual unconsumed bytes are
// compacted to the front of the raw staging buffer. When the delivered
// message is a control frame that arrived between the fragments of a data
// message, the partly assembled data message (and any large buffer holding
// it) is kept for the remaining fragments.
func (r *Reader) Done() {
	if r.fragmented {
		r.compactRaw()
		return
	}
	if r.large != nil {
		r.large.Release()
		r.large = nil
	}
	r.scratchLen = 0
	r.compactRaw()
}

// Abort releases any resources held for an in-progress message without
// delivering it, used on connection teardown per spec §3's buffer
// release invariant.
func (r *Reader) Abort() {
	if r.large != nil {
		r.large.Release()
		r.large = nil
	}
}

func classifyReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrConnectionReset
	}
	if errors.Is(err, syscall.EPIPE) {
		return ErrBrokenPipe
	}
	return err
}
