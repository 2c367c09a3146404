// File: protocol/handshake_client.go
// Client-side handshake: request generation and response verification,
// per spec §4.4. Grounded on the teacher's client/client.go
// (dialAndHandshake) and protocol/native_handshake.go (ComputeAcceptKey),
// unified with the server-side digest computation in handshake.go rather
// than duplicating it.
package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// NewClientKey returns a fresh, random 16-byte Sec-WebSocket-Key, base64
// encoded, as RFC 6455 §4.1 requires.
func NewClientKey() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// BuildUpgradeRequest renders the literal HTTP/1.1 Upgrade request bytes
// a client sends to open a handshake, for the given host, request path,
// and Sec-WebSocket-Key.
func BuildUpgradeRequest(host, path, key string) []byte {
	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(path)
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(host)
	b.WriteString("\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Key: ")
	b.WriteString(key)
	b.WriteString("\r\n")
	b.WriteString("Sec-WebSocket-Version: 13\r\n\r\n")
	return []byte(b.String())
}

// ParseUpgradeResponse parses a server's handshake response out of buf,
// verifying it is a 101 Switching Protocols reply whose Sec-WebSocket-
// Accept matches the digest expected for clientKey. It returns the bytes
// of buf following the CRLFCRLF terminator unconsumed — per spec §8's
// boundary scenario, any surplus bytes the server wrote immediately after
// the handshake response (the start of the first WebSocket frame) must be
// preserved for the frame reader, not discarded.
//
// ok=false with a nil error means the response is not yet complete;
// callers should read more bytes and retry.
func ParseUpgradeResponse(buf []byte, clientKey string) (ok bool, surplus []byte, err error) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return false, nil, nil
	}
	head := string(buf[:idx])
	surplus = buf[idx+4:]

	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 {
		return false, nil, ErrInvalidStatusLine
	}
	statusParts := strings.SplitN(lines[0], " ", 3)
	if len(statusParts) < 2 || !strings.HasPrefix(statusParts[0], "HTTP/1.1") || statusParts[1] != "101" {
		return false, nil, ErrInvalidStatusLine
	}

	var accept string
	for _, line := range lines[1:] {
		sep := strings.IndexByte(line, ':')
		if sep < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:sep]))
		if key == "sec-websocket-accept" {
			accept = strings.TrimSpace(line[sep+1:])
		}
	}
	if accept == "" || accept != ComputeAccept(clientKey) {
		return false, nil, ErrInvalidWebsocketAcceptHeader
	}
	return true, surplus, nil
}
