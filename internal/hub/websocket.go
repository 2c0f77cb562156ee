package hub

import (
	"time"

	"golang.org/x/net/websocket"
)

// WSTransport adapts a golang.org/x/net/websocket connection to Transport.
// Frames are sent as text.
type WSTransport struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// NewWSTransport wraps ws.  writeTimeout bounds each frame write so one
// stalled viewer cannot pin its writer goroutine forever.
func NewWSTransport(ws *websocket.Conn, writeTimeout time.Duration) *WSTransport {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSTransport{ws: ws, writeTimeout: writeTimeout}
}

func (t *WSTransport) Send(msg []byte) error {
	if err := t.ws.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
		return err
	}
	return websocket.Message.Send(t.ws, string(msg))
}

func (t *WSTransport) Receive(timeout time.Duration) ([]byte, error) {
	if err := t.ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var frame []byte
	if err := websocket.Message.Receive(t.ws, &frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (t *WSTransport) Close() error { return t.ws.Close() }
