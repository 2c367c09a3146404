// File: client/handler.go
// The client-side application callback set, mirroring server.Handler's
// capability-detection shape (spec §9: the same feature-detect-once
// approach applies equally to either endpoint's handler object).
// Grounded on the teacher's client.ConnEventHandler (OnConnect/OnClose/
// OnError), extended with the data and control-frame callbacks this
// module's client needs since it has no separate recvChan/dispatcher.
package client

import "github.com/wsforge/wsforge/protocol"

// Handler is the required capability: handling of inbound data messages.
type Handler interface {
	HandleMessage(data []byte, kind protocol.MessageType)
}

// Connecter is called once the handshake completes successfully.
type Connecter interface {
	OnConnect()
}

// Disconnecter is called when the connection ends. err is the transport
// error that ended the read loop, or nil when the connection ends through
// Client.Close (a local call, a received close frame, or a protocol
// error).
type Disconnecter interface {
	OnDisconnect(err error)
}

// PingHandler overrides the default ping behavior (auto-pong).
type PingHandler interface {
	HandlePing(data []byte)
}

// PongHandler receives incoming pongs. If absent, pongs are dropped.
type PongHandler interface {
	HandlePong(data []byte)
}

// CloseHandler takes full responsibility for a received close frame.
type CloseHandler interface {
	HandleClose(data []byte)
}

type capabilities struct {
	connecter    Connecter
	disconnecter Disconnecter
	pingHandler  PingHandler
	pongHandler  PongHandler
	closeHandler CloseHandler
}

func detectCapabilities(h Handler) capabilities {
	var c capabilities
	c.connecter, _ = h.(Connecter)
	c.disconnecter, _ = h.(Disconnecter)
	c.pingHandler, _ = h.(PingHandler)
	c.pongHandler, _ = h.(PongHandler)
	c.closeHandler, _ = h.(CloseHandler)
	return c
}
