package websocket

import "context"

// Conn is a minimal interface for a WebSocket connection.
type Conn interface {
	ReadMessage(ctx context.Context) (msgType MessageType, payload []byte, err error)
	WriteMessage(ctx context.Context, msgType MessageType, payload []byte) error
	Close(code CloseCode, reason string) error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}
