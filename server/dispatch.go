// File: server/dispatch.go
// Message dispatch per spec §4.8: ping/pong/close handling and
// close-code validation. New component — the teacher's recvLoop only
// ever forwards raw payload buffers to a single Handle method and has no
// ping/pong/close-code logic at all (control frames are decoded but not
// acted upon beyond logging) — grounded on the frame-opcode constants
// and error taxonomy already established in the protocol package, with
// the validation ranges spec §4.8 and §9's open question about RFC 6455
// confirm.
package server

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/wsforge/wsforge/protocol"
)

// dispatch routes one completed Message to the handler per spec §4.8,
// returning shouldClose=true with the close code (and reason) to reply
// with if the connection must be closed as a result, or shouldClose=false
// with code 0 for a message that requires no close. handled reports whether the handler
// itself already wrote a close reply (via a CloseHandler), in which case
// the caller must not also write its own close frame.
func dispatch(hc *HandlerConn, msg *protocol.Message) (shouldClose bool, code uint16, reason string, handled bool) {
	switch msg.Opcode {
	case protocol.OpcodeText, protocol.OpcodeBinary:
		hc.handler.HandleMessage(msg.Payload, protocol.MessageType(msg.Opcode))
		return false, 0, "", false

	case protocol.OpcodePong:
		if hc.caps.pongHandler != nil {
			hc.caps.pongHandler.HandlePong(msg.Payload)
		}
		return false, 0, "", false

	case protocol.OpcodePing:
		if hc.caps.pingHandler != nil {
			hc.caps.pingHandler.HandlePing(msg.Payload)
		} else {
			_ = hc.conn.WritePong(msg.Payload)
		}
		return false, 0, "", false

	case protocol.OpcodeClose:
		return dispatchClose(hc, msg.Payload)

	default:
		return true, protocol.CloseProtocolError, "", false
	}
}

// dispatchClose implements spec §4.8's close-frame validation ladder. Per
// spec §4.8, "if HandleClose is present, delegate entirely and then
// close" — the handler owns the wire-level close reply, so this reports
// handled=true and the caller must not write its own close frame on top
// of whatever the handler already wrote.
func dispatchClose(hc *HandlerConn, payload []byte) (shouldClose bool, code uint16, reason string, handled bool) {
	if hc.caps.closeHandler != nil {
		hc.caps.closeHandler.HandleClose(payload)
		return true, protocol.CloseNormalClosure, "", true
	}

	switch len(payload) {
	case 0:
		return true, protocol.CloseNormalClosure, "", false
	case 1:
		return true, protocol.CloseProtocolError, "", false
	}

	closeCode := binary.BigEndian.Uint16(payload[:2])
	if !validCloseCode(closeCode) {
		return true, protocol.CloseProtocolError, "", false
	}
	if len(payload) > 2 && !utf8.Valid(payload[2:]) {
		return true, protocol.CloseProtocolError, "", false
	}
	return true, protocol.CloseNormalClosure, "", false
}

// validCloseCode implements the range spec §4.8 and §9 describe: reject
// codes below 1000, the three explicitly reserved codes (1004, 1005,
// 1006 — the latter two are never legitimately present on the wire since
// they're locally-generated-only per RFC 6455 §7.4.1), and the reserved
// (1013, 3000) open interval, which also rejects 1014 and 1015 as spec §9
// notes matches common RFC 6455 registry interpretation.
func validCloseCode(code uint16) bool {
	if code < 1000 {
		return false
	}
	if code == 1004 || code == 1005 || code == 1006 {
		return false
	}
	if code > 1013 && code < 3000 {
		return false
	}
	return true
}
